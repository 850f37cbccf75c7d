package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nsboot/internal/ir"
)

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("run not found")

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

const runColumns = `id, topology, plan_hash, operator, total_steps, start_index, status, failed_index, failed_key, error`

// ReadRun returns the header of a run.
func (s *Store) ReadRun(ctx context.Context, runID string) (ir.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if isNoRows(err) {
		return ir.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("read run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, most recently started first.
// A limit of zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ir.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadSteps returns the step records of a run ordered by seq, then index.
// Returns an empty slice (not nil) if the run has no records.
func (s *Store) ReadSteps(ctx context.Context, runID string) ([]ir.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, idx, seq, key, type, kind, artifact, target, method, args,
		       address, tx_hash, block, status, error, duration_ms
		FROM steps
		WHERE run_id = ?
		ORDER BY seq ASC, idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	records := []ir.StepRecord{}
	for rows.Next() {
		rec, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return records, nil
}

// ReadResolutions returns the resolution table of a run in deployment order.
func (s *Store) ReadResolutions(ctx context.Context, runID string) ([]ir.DeployedComponent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, address, seq FROM resolutions
		WHERE run_id = ?
		ORDER BY pos ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	out := []ir.DeployedComponent{}
	for rows.Next() {
		var dc ir.DeployedComponent
		var kind string
		if err := rows.Scan(&kind, &dc.Address, &dc.Seq); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		dc.Kind = ir.ComponentKind(kind)
		out = append(out, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resolutions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (ir.RunRecord, error) {
	var run ir.RunRecord
	var status string
	err := row.Scan(
		&run.ID,
		&run.Topology,
		&run.PlanHash,
		&run.Operator,
		&run.TotalSteps,
		&run.StartIndex,
		&status,
		&run.FailedIndex,
		&run.FailedKey,
		&run.Error,
	)
	run.Status = ir.RunStatus(status)
	return run, err
}

func scanStep(row scanner) (ir.StepRecord, error) {
	var rec ir.StepRecord
	var stepType, kind, argsJSON, status string
	var block int64
	err := row.Scan(
		&rec.RunID,
		&rec.Index,
		&rec.Seq,
		&rec.Key,
		&stepType,
		&kind,
		&rec.Artifact,
		&rec.Target,
		&rec.Method,
		&argsJSON,
		&rec.Address,
		&rec.TxHash,
		&block,
		&status,
		&rec.Error,
		&rec.DurationMs,
	)
	if err != nil {
		return ir.StepRecord{}, fmt.Errorf("scan step: %w", err)
	}
	rec.Type = ir.StepType(stepType)
	rec.Kind = ir.ComponentKind(kind)
	rec.Status = ir.StepStatus(status)
	rec.Block = uint64(block)
	rec.Args, err = unmarshalArgs(argsJSON)
	if err != nil {
		return ir.StepRecord{}, err
	}
	return rec, nil
}

// Query executes an ad-hoc read against the journal tables.
// Callers own the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}
