package store

import (
	"context"
	"fmt"

	"github.com/roach88/mpisim/internal/trace"
)

// WriteRun inserts a run, or updates the outcome of an existing run with the
// same ID. Workload, Procs and Strict are fixed at first insert.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("write run: empty id")
	}
	diags, err := marshalDiagnostics(run.Diagnostics)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, workload, procs, strict, status, error, diagnostics)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			diagnostics = excluded.diagnostics
	`,
		run.ID,
		run.Workload,
		run.Procs,
		boolToInt(run.Strict),
		string(run.Status),
		run.Error,
		diags,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEvents appends a run's trace in a single transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting an event with the
// same (run_id, seq) is silently ignored.
//
// Note: the run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteEvents(ctx context.Context, runID string, events []trace.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, kind, rank, peer, tag, collective, count, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			runID,
			e.Seq,
			string(e.Kind),
			e.Rank,
			e.Peer,
			e.Tag,
			e.Collective,
			e.Count,
			e.Detail,
		); err != nil {
			return fmt.Errorf("write event %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
