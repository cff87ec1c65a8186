package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/digest"
	"github.com/roach88/decodecheck/internal/harness"
)

// Run modes.
const (
	ModeTest  = "test"
	ModeRegen = "regen"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one row of history.
type Run struct {
	ID          string         `json:"id"`
	Mode        string         `json:"mode"`
	Tool        string         `json:"tool"`
	Catalogs    []string       `json:"catalogs"`
	Jobs        int            `json:"jobs"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	ExitCode    *int           `json:"exit_code,omitempty"`
	Interrupted bool           `json:"interrupted"`
	Counts      map[string]int `json:"counts,omitempty"`
}

// Outcome is one recorded Job result.
type Outcome struct {
	Index      int               `json:"index"`
	Triple     catalog.Triple    `json:"triple"`
	Kind       string            `json:"kind"`
	Detail     string            `json:"detail,omitempty"`
	Mismatches []digest.Mismatch `json:"mismatches,omitempty"`
	Elapsed    time.Duration     `json:"elapsed_ns"`
}

const timeLayout = time.RFC3339Nano

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.Mode != ModeTest && run.Mode != ModeRegen {
		return fmt.Errorf("begin run: unknown mode %q", run.Mode)
	}
	catalogs, err := json.Marshal(nonNil(run.Catalogs))
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, tool, catalogs, jobs, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Mode, run.Tool, string(catalogs), run.Jobs, run.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordOutcomes stores every completed result of a report in one
// transaction.
func (s *Store) RecordOutcomes(ctx context.Context, runID string, results []harness.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record outcomes: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (run_id, idx, decoder, sample, test, kind, detail, mismatches, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("record outcomes: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		if !res.Completed {
			continue
		}
		mismatches, err := json.Marshal(nonNil(res.Outcome.Mismatches))
		if err != nil {
			return fmt.Errorf("record outcomes: %w", err)
		}
		t := res.Job.Triple
		if _, err := stmt.ExecContext(ctx,
			runID, res.Index, t.Decoder, t.Sample, t.Test,
			res.Outcome.Kind.String(), res.Outcome.Detail(), string(mismatches),
			res.Elapsed.Milliseconds(),
		); err != nil {
			return fmt.Errorf("record outcome %s: %w", t, err)
		}
	}
	return tx.Commit()
}

// FinishRun stamps the end of a run with its verdict.
func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time, sum harness.Summary) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, exit_code = ?, interrupted = ?
		WHERE id = ?
	`, finishedAt.UTC().Format(timeLayout), sum.ExitCode, sum.Interrupted, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first, with outcome counts.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, tool, catalogs, jobs, started_at, finished_at, exit_code, interrupted
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("recent runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		counts, err := s.counts(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Counts = counts
	}
	return runs, nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, tool, catalogs, jobs, started_at, finished_at, exit_code, interrupted
		FROM runs WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Counts, err = s.counts(ctx, runID)
	return run, err
}

// Outcomes returns the recorded outcomes of a run in Job order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, decoder, sample, test, kind, detail, mismatches, elapsed_ms
		FROM outcomes WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o          Outcome
			mismatches string
			elapsedMS  int64
		)
		if err := rows.Scan(&o.Index, &o.Triple.Decoder, &o.Triple.Sample, &o.Triple.Test,
			&o.Kind, &o.Detail, &mismatches, &elapsedMS); err != nil {
			return nil, fmt.Errorf("outcomes: %w", err)
		}
		if err := json.Unmarshal([]byte(mismatches), &o.Mismatches); err != nil {
			return nil, fmt.Errorf("outcomes: decode mismatches: %w", err)
		}
		if len(o.Mismatches) == 0 {
			o.Mismatches = nil
		}
		o.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) counts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM outcomes WHERE run_id = ? GROUP BY kind ORDER BY kind
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("count outcomes: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run         Run
		catalogs    string
		startedAt   string
		finishedAt  sql.NullString
		exitCode    sql.NullInt64
		interrupted bool
	)
	if err := sc.Scan(&run.ID, &run.Mode, &run.Tool, &catalogs, &run.Jobs,
		&startedAt, &finishedAt, &exitCode, &interrupted); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(catalogs), &run.Catalogs); err != nil {
		return Run{}, fmt.Errorf("decode catalogs: %w", err)
	}
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	run.Interrupted = interrupted
	return run, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
