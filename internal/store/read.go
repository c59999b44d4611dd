package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/mpisim/internal/trace"
)

const runColumns = `id, workload, procs, strict, status, error, diagnostics`

// ReadRun returns the run with the given ID.
// Returns ErrNotFound if no such run exists.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// FindRun resolves an ID prefix to exactly one run.
func (s *Store) FindRun(ctx context.Context, prefix string) (Run, error) {
	if prefix == "" {
		return Run{}, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE substr(id, 1, ?) = ?
		ORDER BY id COLLATE BINARY ASC
		LIMIT 2
	`, len(prefix), strings.ToLower(prefix))
	if err != nil {
		return Run{}, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("iterate runs: %w", err)
	}

	switch len(runs) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return runs[0], nil
	}
	return Run{}, fmt.Errorf("run id prefix %q is ambiguous", prefix)
}

// ReadRuns returns every run in creation order.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns a run's trace ordered by seq. When kinds is non-empty
// only events of those kinds are returned.
//
// Returns an empty slice (not nil) if the run has no matching events.
func (s *Store) ReadEvents(ctx context.Context, runID string, kinds ...trace.Kind) ([]trace.Event, error) {
	query := `
		SELECT seq, kind, rank, peer, tag, collective, count, detail
		FROM events
		WHERE run_id = ?`
	args := []any{runID}
	if len(kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(", ?", len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []trace.Event{}
	for rows.Next() {
		var e trace.Event
		var kind string
		if err := rows.Scan(&e.Seq, &kind, &e.Rank, &e.Peer, &e.Tag, &e.Collective, &e.Count, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = trace.Kind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var strict int
	var status, diags string
	if err := row.Scan(&run.ID, &run.Workload, &run.Procs, &strict, &status, &run.Error, &diags); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Strict = strict != 0
	run.Status = RunStatus(status)

	var err error
	if run.Diagnostics, err = unmarshalDiagnostics(diags); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return run, nil
}
