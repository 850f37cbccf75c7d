package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nsboot/internal/compiler"
	"github.com/roach88/nsboot/internal/engine"
	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/ledger/memledger"
	"github.com/roach88/nsboot/internal/testutil"
	"github.com/roach88/nsboot/internal/topology"
)

func defaultPlan(t *testing.T) *ir.Plan {
	t.Helper()
	topo, err := topology.Default()
	require.NoError(t, err)
	plan, err := compiler.BuildPlan(topo, compiler.PlanOptions{})
	require.NoError(t, err)
	return plan
}

func journaledOrchestrator(s *Store, l *memledger.Ledger, runID string) *engine.Orchestrator {
	return engine.New(l,
		engine.WithJournal(s),
		engine.WithRunIDs(testutil.NewFixedRunID(runID)),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithNow(testutil.FrozenNow),
		engine.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)
}

// TestJournal_CompletedRun tests that a journaled run reads back exactly
// as the orchestrator reported it.
func TestJournal_CompletedRun(t *testing.T) {
	s := createTestStore(t)
	plan := defaultPlan(t)

	report, err := journaledOrchestrator(s, memledger.New(), "run-1").Run(t.Context(), plan)
	require.NoError(t, err)

	run, err := s.ReadRun(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, ir.RunCompleted, run.Status)
	assert.Equal(t, report.PlanHash, run.PlanHash)
	assert.Equal(t, len(plan.Steps), run.TotalSteps)

	steps, err := s.ReadSteps(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, report.Records, steps)

	resolved, err := s.ReadResolutions(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, report.Resolved, resolved)

	replayed, err := s.ReplayResolutions(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, report.Resolved, replayed)
}

// TestJournal_ResumeFailedRun tests resuming a failed run from its journal.
func TestJournal_ResumeFailedRun(t *testing.T) {
	s := createTestStore(t)
	plan := defaultPlan(t)
	planHash := ir.MustPlanHash(plan)

	failing := true
	l := memledger.New(memledger.WithFault(func(_ context.Context, op memledger.Op) error {
		if failing && op.Artifact == "PublicResolver" {
			return errors.New("replacement transaction underpriced")
		}
		return nil
	}))

	_, err := journaledOrchestrator(s, l, "run-1").Run(t.Context(), plan)
	require.Error(t, err)

	run, err := s.ReadRun(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, ir.RunFailed, run.Status)
	assert.Equal(t, "deploy:resolver", run.FailedKey)

	r, err := s.ResumePoint(t.Context(), "run-1", planHash)
	require.NoError(t, err)
	assert.Equal(t, run.FailedIndex, r.StartAt)
	assert.Len(t, r.Resolved, 7)
	require.NoError(t, engine.ValidateResume(plan, r))

	failing = false
	report, err := journaledOrchestrator(s, l, "run-2").Resume(t.Context(), plan, r)
	require.NoError(t, err)
	assert.Len(t, report.Resolved, 8)

	resumed, err := s.ReadRun(t.Context(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, ir.RunCompleted, resumed.Status)
	assert.Equal(t, r.StartAt, resumed.StartIndex)

	resolved, err := s.ReadResolutions(t.Context(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, report.Resolved, resolved)

	// Step records of the resumed run cover only what it executed.
	replayed, err := s.ReplayResolutions(t.Context(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, []ir.ComponentKind{ir.KindResolver}, kinds(replayed))
}

func TestResumePoint_Rejects(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.BeginRun(t.Context(), testRun("running")))

	failed := testRun("failed")
	require.NoError(t, s.BeginRun(t.Context(), failed))
	failed.Status = ir.RunFailed
	failed.FailedIndex = 1
	require.NoError(t, s.FinishRun(t.Context(), failed))

	_, err := s.ResumePoint(t.Context(), "ghost", "plan-hash")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	_, err = s.ResumePoint(t.Context(), "running", "plan-hash")
	assert.True(t, ir.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "not failed")

	_, err = s.ResumePoint(t.Context(), "failed", "other-hash")
	assert.True(t, ir.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "executed plan plan-hash")
}

// TestResumePoint_ConfirmedFailedStep tests a run halted after the ledger
// confirmed its last step: resumption starts after that step.
func TestResumePoint_ConfirmedFailedStep(t *testing.T) {
	s := createTestStore(t)
	run := testRun("run-1")
	require.NoError(t, s.BeginRun(t.Context(), run))
	require.NoError(t, s.RecordStep(t.Context(), deployRecord("run-1", 0, 1, ir.KindRegistry, "0x0000000000000000000000000000000000000001")))
	require.NoError(t, s.RecordResolution(t.Context(), "run-1", ir.DeployedComponent{Kind: ir.KindRegistry, Address: "0x0000000000000000000000000000000000000001", Seq: 1}))
	require.NoError(t, s.RecordStep(t.Context(), deployRecord("run-1", 1, 2, ir.KindFallbackRegistry, "0x0000000000000000000000000000000000000002")))

	run.Status = ir.RunFailed
	run.FailedIndex = 1
	run.Error = "journal resolution fallback-registry: disk full"
	require.NoError(t, s.FinishRun(t.Context(), run))

	r, err := s.ResumePoint(t.Context(), "run-1", "plan-hash")
	require.NoError(t, err)
	assert.Equal(t, 2, r.StartAt)
	assert.Len(t, r.Resolved, 2)
	assert.Contains(t, r.Resolved, ir.KindFallbackRegistry)
}

func TestReplayResolutions_SkipsFailed(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.BeginRun(t.Context(), testRun("run-1")))

	ok := deployRecord("run-1", 0, 1, ir.KindRegistry, "0x0000000000000000000000000000000000000001")
	bad := deployRecord("run-1", 1, 2, ir.KindFallbackRegistry, "")
	bad.Status = ir.StatusFailed
	require.NoError(t, s.RecordStep(t.Context(), ok))
	require.NoError(t, s.RecordStep(t.Context(), bad))

	got, err := s.ReplayResolutions(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, []ir.ComponentKind{ir.KindRegistry}, kinds(got))
	assert.Equal(t, int64(1), got[0].Seq)
}

func kinds(dcs []ir.DeployedComponent) []ir.ComponentKind {
	out := make([]ir.ComponentKind, len(dcs))
	for i, dc := range dcs {
		out[i] = dc.Kind
	}
	return out
}
