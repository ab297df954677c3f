package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveRun inserts or replaces a run record
func (db *DB) SaveRun(r *Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, source, config, traces, points, failures, skipped, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			config = excluded.config,
			traces = excluded.traces,
			points = excluded.points,
			failures = excluded.failures,
			skipped = excluded.skipped,
			started_at = excluded.started_at
	`, r.ID, r.Source, r.Config, r.Traces, r.Points, r.Failures, r.Skipped,
		r.StartedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, source, config, traces, points, failures, skipped, started_at
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// LatestRun returns the most recently started run
func (db *DB) LatestRun() (*Run, error) {
	row := db.QueryRow(`
		SELECT id, source, config, traces, points, failures, skipped, started_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1
	`)
	return scanRun(row)
}

// ListRuns returns runs, most recent first. limit <= 0 returns all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT id, source, config, traces, points, failures, skipped, started_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run together with its traces and points
func (db *DB) DeleteRun(id string) error {
	result, err := db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveFailures records the traces that failed during a run
func (db *DB) SaveFailures(failures []TraceError) error {
	if len(failures) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO trace_failures (run_id, trace_id, source_id, error)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range failures {
		if _, err := stmt.Exec(f.RunID, f.TraceID, f.SourceID, f.Message); err != nil {
			return fmt.Errorf("inserting failure for trace %d: %w", f.TraceID, err)
		}
	}
	return tx.Commit()
}

// ListFailures returns the failed traces of a run ordered by trace id
func (db *DB) ListFailures(runID string) ([]TraceError, error) {
	rows, err := db.Query(`
		SELECT run_id, trace_id, source_id, error
		FROM trace_failures
		WHERE run_id = ?
		ORDER BY trace_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TraceError
	for rows.Next() {
		var f TraceError
		if err := rows.Scan(&f.RunID, &f.TraceID, &f.SourceID, &f.Message); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var startedAt string
	err := row.Scan(&r.ID, &r.Source, &r.Config, &r.Traces, &r.Points, &r.Failures, &r.Skipped, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
	}
	return &r, nil
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func nullStringToTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing time %q: %w", s.String, err)
	}
	return &t, nil
}

func ptrToNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullFloat64ToPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
