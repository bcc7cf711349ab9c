// Package store owns the compiled output database: schema management,
// the per-row writers for every domain type in spec.md §3, the generic
// positional-transform primitive the derived-value passes share, and the
// transaction discipline described in spec.md §4.12/§5.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the output database connection. Grounded on the teacher's
// internal/storage/db.go Open/Close/CreateSchemas wrapper shape,
// reimplemented over modernc.org/sqlite (pure Go, supports ATTACH
// DATABASE) instead of the teacher's ClickHouse+Postgres pair, since the
// compiler's output is a single file-based transactional store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the output database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for components (adapters,
// orchestrator phases) that need direct statement access.
func (s *Store) DB() *sql.DB { return s.db }

// AttachSource attaches a sibling source database under alias, per
// spec.md §4.3's "sibling source database (attached by logical name)".
func (s *Store) AttachSource(ctx context.Context, path, alias string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE ? AS %s", quoteIdent(alias)), path)
	if err != nil {
		return fmt.Errorf("store: attach %s as %s: %w", path, alias, err)
	}
	return nil
}

// DetachSource detaches a previously attached source database.
func (s *Store) DetachSource(ctx context.Context, alias string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DETACH DATABASE %s", quoteIdent(alias)))
	if err != nil {
		return fmt.Errorf("store: detach %s: %w", alias, err)
	}
	return nil
}

func quoteIdent(ident string) string {
	return `"` + ident + `"`
}

// WithTx runs fn inside a single committed transaction; any error (from
// fn or from commit) rolls the transaction back. This is the unit the
// orchestrator uses for "every phase commits; abort rolls back" (spec.md
// §4.12): each phase is one WithTx call.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
