package store

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/nsboot/internal/engine"
	"github.com/roach88/nsboot/internal/ir"
)

// ReplayResolutions rebuilds the resolution table of a run from its step
// records alone: every confirmed deploy record contributes its address.
func (s *Store) ReplayResolutions(ctx context.Context, runID string) ([]ir.DeployedComponent, error) {
	records, err := s.ReadSteps(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay resolutions: %w", err)
	}

	table := engine.NewResolutionTable()
	for _, rec := range records {
		if rec.Type != ir.StepDeploy || rec.Status != ir.StatusOK {
			continue
		}
		if err := table.Record(rec.Kind, common.HexToAddress(rec.Address), rec.Seq); err != nil {
			return nil, fmt.Errorf("replay resolutions: step %s: %w", rec.Key, err)
		}
	}
	return table.Snapshot(), nil
}

// ResumePoint derives the resumption of a halted run: the failed step
// index and every address the run (or the runs it resumed) confirmed.
//
// The plan hash must match the run's; resuming a different plan from the
// same index would skip steps that never ran.
func (s *Store) ResumePoint(ctx context.Context, runID string, planHash string) (engine.Resume, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return engine.Resume{}, err
	}
	if run.Status != ir.RunFailed {
		return engine.Resume{}, invalidResume(fmt.Sprintf("run %s is %s, not failed", runID, run.Status))
	}
	if run.PlanHash != planHash {
		return engine.Resume{}, invalidResume(fmt.Sprintf("run %s executed plan %s, not %s", runID, run.PlanHash, planHash))
	}

	resolved, err := s.ReadResolutions(ctx, runID)
	if err != nil {
		return engine.Resume{}, err
	}
	r := engine.Resume{
		StartAt:  run.FailedIndex,
		Resolved: make(map[ir.ComponentKind]common.Address, len(resolved)),
	}
	for _, dc := range resolved {
		r.Resolved[dc.Kind] = common.HexToAddress(dc.Address)
	}

	// A run halted by a journal write after the ledger confirmed the step
	// has an ok record at its failed index.
	records, err := s.ReadSteps(ctx, runID)
	if err != nil {
		return engine.Resume{}, err
	}
	for _, rec := range records {
		if rec.Index != run.FailedIndex || rec.Status != ir.StatusOK {
			continue
		}
		r.StartAt++
		if rec.Type == ir.StepDeploy {
			r.Resolved[rec.Kind] = common.HexToAddress(rec.Address)
		}
	}
	return r, nil
}

func invalidResume(msg string) error {
	return &ir.ConfigurationError{Code: ir.ErrCodeInvalidResume, Message: msg}
}
