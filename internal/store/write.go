package store

import (
	"context"
	"fmt"

	"github.com/roach88/nsboot/internal/ir"
)

// BeginRun inserts the header of a new run.
// A duplicate run ID is ignored.
func (s *Store) BeginRun(ctx context.Context, run ir.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, topology, plan_hash, operator, total_steps, start_index, status, failed_index, failed_key, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Topology,
		run.PlanHash,
		run.Operator,
		run.TotalSteps,
		run.StartIndex,
		string(run.Status),
		run.FailedIndex,
		run.FailedKey,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordStep inserts the record of one executed plan step.
// Each (run, index) is written once; later writes are ignored.
//
// Note: the run must exist (foreign key constraint).
func (s *Store) RecordStep(ctx context.Context, rec ir.StepRecord) error {
	argsJSON, err := marshalArgs(rec.Args)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steps
		(run_id, idx, seq, key, type, kind, artifact, target, method, args, address, tx_hash, block, status, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO NOTHING
	`,
		rec.RunID,
		rec.Index,
		rec.Seq,
		rec.Key,
		string(rec.Type),
		string(rec.Kind),
		rec.Artifact,
		rec.Target,
		rec.Method,
		argsJSON,
		rec.Address,
		rec.TxHash,
		int64(rec.Block),
		string(rec.Status),
		rec.Error,
		rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// RecordResolution appends a resolution table entry for runID.
//
// A kind is resolved once per run: writing the same address again is a
// no-op, a different address is an error.
func (s *Store) RecordResolution(ctx context.Context, runID string, dc ir.DeployedComponent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record resolution: begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT address FROM resolutions WHERE run_id = ? AND kind = ?`,
		runID, string(dc.Kind),
	).Scan(&existing)
	switch {
	case err == nil:
		if existing != dc.Address {
			return fmt.Errorf("record resolution: %s already resolved to %s in run %s", dc.Kind, existing, runID)
		}
		return nil
	case !isNoRows(err):
		return fmt.Errorf("record resolution: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resolutions (run_id, kind, address, seq, pos)
		VALUES (?, ?, ?, ?, (SELECT COUNT(*) FROM resolutions WHERE run_id = ?))
	`, runID, string(dc.Kind), dc.Address, dc.Seq, runID)
	if err != nil {
		return fmt.Errorf("record resolution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record resolution: commit: %w", err)
	}
	return nil
}

// FinishRun stores the final status of a run.
func (s *Store) FinishRun(ctx context.Context, run ir.RunRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, failed_index = ?, failed_key = ?, error = ?
		WHERE id = ?
	`,
		string(run.Status),
		run.FailedIndex,
		run.FailedKey,
		run.Error,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: %w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}
