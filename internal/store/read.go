package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dbgconform/internal/harness"
)

// RunSummary is one row of the run history listing.
type RunSummary struct {
	RunID       string          `json:"run_id"`
	Scenario    string          `json:"scenario"`
	Debugger    string          `json:"debugger"`
	Outcome     harness.Outcome `json:"outcome"`
	Fingerprint string          `json:"fingerprint"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
}

// ListOptions filter ListRuns. Zero values match everything.
type ListOptions struct {
	Scenario string
	Outcome  harness.Outcome
	Limit    int
}

// ListRuns returns run summaries, most recently written first.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]RunSummary, error) {
	query := `
		SELECT id, scenario, debugger, outcome, fingerprint, started_at, duration_ns
		FROM runs
		WHERE (? = '' OR scenario = ?) AND (? = '' OR outcome = ?)
		ORDER BY seq DESC`
	args := []any{opts.Scenario, opts.Scenario, string(opts.Outcome), string(opts.Outcome)}
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			sum       RunSummary
			outcome   string
			startedAt int64
			duration  int64
		)
		if err := rows.Scan(&sum.RunID, &sum.Scenario, &sum.Debugger, &outcome, &sum.Fingerprint, &startedAt, &duration); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.Outcome = harness.Outcome(outcome)
		sum.StartedAt = time.Unix(0, startedAt).UTC()
		sum.Duration = time.Duration(duration)
		runs = append(runs, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns the stored run with its steps in index order.
// The returned Result has no Err values; Error and ErrorKind carry them.
func (s *Store) ReadRun(ctx context.Context, runID string) (*harness.Result, error) {
	var (
		r         harness.Result
		outcome   string
		state     string
		pass      int
		states    string
		regs      string
		startedAt int64
		duration  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, debugger, outcome, state, pass, states, registers,
		       error, error_kind, skip_reason, bug, build_log, fingerprint, started_at, duration_ns
		FROM runs
		WHERE id = ?
	`, runID).Scan(
		&r.RunID, &r.Scenario, &r.Debugger, &outcome, &state, &pass, &states, &regs,
		&r.Error, &r.ErrorKind, &r.SkipReason, &r.Bug, &r.BuildLog, &r.Fingerprint, &startedAt, &duration,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}

	r.Outcome = harness.Outcome(outcome)
	r.State = harness.State(state)
	r.Pass = pass != 0
	r.StartedAt = time.Unix(0, startedAt).UTC()
	r.Duration = time.Duration(duration)
	if r.States, err = unmarshalStates(states); err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	if r.Registers, err = unmarshalRegisters(regs); err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}

	if r.Steps, err = s.readSteps(ctx, runID); err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	return &r, nil
}

func (s *Store) readSteps(ctx context.Context, runID string) ([]harness.StepResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, name, kind, input, output, succeeded, outcome, registers, error, error_kind, bug, duration_ns
		FROM steps
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []harness.StepResult{}
	for rows.Next() {
		var (
			step      harness.StepResult
			succeeded int
			outcome   string
			regs      string
			duration  int64
		)
		if err := rows.Scan(&step.Index, &step.Name, &step.Kind, &step.Input, &step.Output, &succeeded,
			&outcome, &regs, &step.Error, &step.ErrorKind, &step.Bug, &duration); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Succeeded = succeeded != 0
		step.Outcome = harness.Outcome(outcome)
		step.Duration = time.Duration(duration)
		if step.Registers, err = unmarshalRegisters(regs); err != nil {
			return nil, fmt.Errorf("step %d: %w", step.Index, err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}
