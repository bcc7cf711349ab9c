package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PositionalRow is one row passed to a Transform function: its position
// columns plus its primary key for the eventual UPDATE.
type PositionalRow struct {
	ID  int64
	Lon float64
	Lat float64
}

// Transform computes a new value for the update column given a row's
// position. ok=false leaves that row's column untouched (e.g. the
// magnetic model has no sample at that position).
type Transform func(row PositionalRow) (value float64, ok bool)

// ApplyPositionalTransform is the generic "(select-columns, update-
// columns, transform-fn) tabular update primitive" spec.md §4.8
// describes: it selects (id, lonColumn, latColumn) from table, computes
// transform for each row, and writes the result back into updateColumn.
// Used for the magnetic-variation pass (internal/magvar.Grid.Lookup). It
// reads only position columns and writes a float64, so the TACAN channel
// pass (frequency and type in, text channel out) does not use it.
func (s *Store) ApplyPositionalTransform(ctx context.Context, table, idColumn, lonColumn, latColumn, updateColumn string, transform Transform) (int, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s, %s, %s FROM %s", idColumn, lonColumn, latColumn, table))
	if err != nil {
		return 0, fmt.Errorf("store: selecting positional rows from %s: %w", table, err)
	}

	var targets []PositionalRow
	for rows.Next() {
		var r PositionalRow
		if err := rows.Scan(&r.ID, &r.Lon, &r.Lat); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("store: scanning positional row from %s: %w", table, err)
		}
		targets = append(targets, r)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	_ = rows.Close()

	updateSQL := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", table, updateColumn, idColumn)
	updated := 0
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, updateSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range targets {
			value, ok := transform(r)
			if !ok {
				continue
			}
			if _, err := stmt.ExecContext(ctx, value, r.ID); err != nil {
				return fmt.Errorf("store: updating %s.%s for id %d: %w", table, updateColumn, r.ID, err)
			}
			updated++
		}
		return nil
	})
	return updated, err
}
