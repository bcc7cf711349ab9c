// Package telemetry implements the optional progress/cancellation
// transport and analytics sink described in SPEC_FULL.md §5.1: a
// ClickHouse row per compile phase for cross-run dashboards, and an
// opt-in NATS transport that mirrors the orchestrator's synchronous
// progress callback onto a subject and lets an external subscriber
// request cooperative cancellation. Both are additive — the core
// contract (a plain Go func value, cancellation checked at phase
// boundaries) works identically with either, or both, disabled.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/nats-io/nats.go"

	"navdbcompiler/internal/clog"
)

// Config describes the optional sinks. A zero Config disables both; Run
// works the same as if telemetry were never wired in.
type Config struct {
	ClickHouse       *ClickHouseConfig
	NATSURL          string
	NATSSubjectEvent string // progress events published here; defaults to "navcompile.progress" if empty.
	NATSSubjectAbort string // subscribed for cancellation; defaults to "navcompile.abort" if empty.
}

// ClickHouseConfig holds the analytics-sink connection settings, mirroring
// the shape of a typical ClickHouse DSN.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PhaseRow is one compile-phase telemetry record: duration, row counts,
// and error count, enriching the bare progress callback with a record a
// fleet operator can query across many compiles.
type PhaseRow struct {
	RunID      string
	Phase      string
	StartedAt  time.Time
	FinishedAt time.Time
	RowsWritten int64
	Errors     int64
}

// Sink receives one PhaseRow per completed phase and tracks cooperative
// cancellation requested over NATS. A nil *Sink is valid and a no-op, so
// callers can wire one in unconditionally and only pay the cost when
// Config names a real ClickHouse/NATS endpoint.
type Sink struct {
	ch        driver.Conn
	nc        *nats.Conn
	eventSubj string
	abortSubj string
	runID     string
	aborted   atomic.Bool
	log       *clog.Logger
}

// Open connects the sinks named by cfg. Either half may be left
// unconfigured; Open only dials the transports actually named. The
// returned Sink's methods are safe to call even when both halves are
// nil internally.
func Open(ctx context.Context, runID string, cfg Config, log *clog.Logger) (*Sink, error) {
	if log == nil {
		log = clog.New(nil)
	}
	s := &Sink{runID: runID, log: log}

	if cfg.ClickHouse != nil {
		conn, err := clickhouse.Open(&clickhouse.Options{
			Addr: []string{fmt.Sprintf("%s:%d", cfg.ClickHouse.Host, cfg.ClickHouse.Port)},
			Auth: clickhouse.Auth{
				Database: cfg.ClickHouse.Database,
				Username: cfg.ClickHouse.User,
				Password: cfg.ClickHouse.Password,
			},
			DialTimeout:  10 * time.Second,
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry: open clickhouse: %w", err)
		}
		if err := conn.Ping(ctx); err != nil {
			return nil, fmt.Errorf("telemetry: ping clickhouse: %w", err)
		}
		if err := createSchema(ctx, conn); err != nil {
			return nil, err
		}
		s.ch = conn
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("telemetry: connect nats: %w", err)
		}
		s.nc = nc
		s.eventSubj = cfg.NATSSubjectEvent
		if s.eventSubj == "" {
			s.eventSubj = "navcompile.progress"
		}
		s.abortSubj = cfg.NATSSubjectAbort
		if s.abortSubj == "" {
			s.abortSubj = "navcompile.abort"
		}
		if _, err := nc.Subscribe(s.abortSubj, func(*nats.Msg) {
			s.log.Info("cancellation requested over nats", "subject", s.abortSubj)
			s.aborted.Store(true)
		}); err != nil {
			nc.Close()
			return nil, fmt.Errorf("telemetry: subscribe abort subject: %w", err)
		}
	}

	return s, nil
}

func createSchema(ctx context.Context, conn driver.Conn) error {
	return conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS compile_phases (
		run_id       String,
		phase        LowCardinality(String),
		started_at   DateTime64(3),
		finished_at  DateTime64(3),
		rows_written Int64,
		errors       Int64
	)
	ENGINE = MergeTree()
	ORDER BY (run_id, started_at)`)
}

// Close releases both transports. It is safe to call on a Sink returned
// by Open even if one or both halves were never configured.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	if s.nc != nil {
		s.nc.Close()
	}
	if s.ch != nil {
		return s.ch.Close()
	}
	return nil
}

// progressEvent is the JSON shape published to the NATS event subject.
type progressEvent struct {
	RunID      string `json:"run_id"`
	PhaseIndex int    `json:"phase_index"`
	PhaseCount int    `json:"phase_count"`
	Phase      string `json:"phase"`
}

// Publish mirrors one progress callback invocation onto the configured
// NATS subject. It never blocks the compile on a slow or absent broker:
// publish errors are logged, not returned, since telemetry is strictly
// additive to the synchronous progress contract.
func (s *Sink) Publish(phaseIndex, phaseCount int, phase string) {
	if s == nil || s.nc == nil {
		return
	}
	body, err := json.Marshal(progressEvent{
		RunID:      s.runID,
		PhaseIndex: phaseIndex,
		PhaseCount: phaseCount,
		Phase:      phase,
	})
	if err != nil {
		s.log.Warn("telemetry: marshal progress event", "error", err)
		return
	}
	if err := s.nc.Publish(s.eventSubj, body); err != nil {
		s.log.Warn("telemetry: publish progress event", "error", err)
	}
}

// Aborted reports whether a cancellation request has arrived over the
// NATS abort subject since Open. It is a supplement to, not a
// replacement for, ctx cancellation: cmd/navcompile's progress callback
// ORs this with statusapi's CancelRequested at each phase boundary, and
// the orchestrator checks ctx.Err() separately.
func (s *Sink) Aborted() bool {
	if s == nil {
		return false
	}
	return s.aborted.Load()
}

// RecordPhase writes one PhaseRow to the ClickHouse sink, if configured.
// A nil Sink, or one opened without a ClickHouse config, is a no-op.
func (s *Sink) RecordPhase(ctx context.Context, row PhaseRow) error {
	if s == nil || s.ch == nil {
		return nil
	}
	row.RunID = s.runID
	return s.ch.Exec(ctx, `
		INSERT INTO compile_phases (run_id, phase, started_at, finished_at, rows_written, errors)
		VALUES (?, ?, ?, ?, ?, ?)
	`, row.RunID, row.Phase, row.StartedAt, row.FinishedAt, row.RowsWritten, row.Errors)
}

// Phases returns every recorded PhaseRow for a run, ordered by start
// time with the earliest phase first, for a status surface or CLI to
// report on.
func (s *Sink) Phases(ctx context.Context, runID string) ([]PhaseRow, error) {
	if s == nil || s.ch == nil {
		return nil, nil
	}
	rows, err := s.ch.Query(ctx, `
		SELECT run_id, phase, started_at, finished_at, rows_written, errors
		FROM compile_phases WHERE run_id = ? ORDER BY started_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query phases: %w", err)
	}
	defer rows.Close()

	var out []PhaseRow
	for rows.Next() {
		var r PhaseRow
		if err := rows.Scan(&r.RunID, &r.Phase, &r.StartedAt, &r.FinishedAt, &r.RowsWritten, &r.Errors); err != nil {
			return nil, fmt.Errorf("telemetry: scan phase row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("telemetry: iterate phase rows: %w", err)
	}
	return out, nil
}
