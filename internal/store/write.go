package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/dbgconform/internal/harness"
)

// WriteRun inserts a run and its steps in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - writing the same run
// ID again leaves the stored run unchanged.
func (s *Store) WriteRun(ctx context.Context, r *harness.Result) error {
	if r == nil || r.RunID == "" {
		return fmt.Errorf("write run: result has no run ID")
	}

	states, err := marshalStates(r.States)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	regs, err := marshalRegisters(r.Registers)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, scenario, debugger, outcome, state, pass, states, registers,
		 error, error_kind, skip_reason, bug, build_log, fingerprint, started_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.RunID,
		r.Scenario,
		r.Debugger,
		string(r.Outcome),
		string(r.State),
		boolInt(r.Pass),
		states,
		regs,
		r.Error,
		r.ErrorKind,
		r.SkipReason,
		r.Bug,
		r.BuildLog,
		r.Fingerprint,
		r.StartedAt.UTC().UnixNano(),
		int64(r.Duration),
	)
	if err != nil {
		return fmt.Errorf("write run %s: %w", r.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	for _, step := range r.Steps {
		if err := writeStep(ctx, tx, r.RunID, step); err != nil {
			return fmt.Errorf("write run %s: %w", r.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run %s: commit: %w", r.RunID, err)
	}
	return nil
}

func writeStep(ctx context.Context, tx *sql.Tx, runID string, step harness.StepResult) error {
	regs, err := marshalRegisters(step.Registers)
	if err != nil {
		return fmt.Errorf("step %d: %w", step.Index, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO steps
		(run_id, idx, name, kind, input, output, succeeded, outcome, registers, error, error_kind, bug, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		step.Index,
		step.Name,
		step.Kind,
		step.Input,
		step.Output,
		boolInt(step.Succeeded),
		string(step.Outcome),
		regs,
		step.Error,
		step.ErrorKind,
		step.Bug,
		int64(step.Duration),
	)
	if err != nil {
		return fmt.Errorf("step %d: %w", step.Index, err)
	}
	return nil
}
