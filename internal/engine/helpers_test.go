package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nsboot/internal/compiler"
	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/ledger/memledger"
	"github.com/roach88/nsboot/internal/testutil"
	"github.com/roach88/nsboot/internal/topology"
)

const (
	kindA = ir.KindRegistry
	kindB = ir.KindFallbackRegistry
	kindC = ir.KindController
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// abcPlan deploys A, then B(A), then C(A, B).
func abcPlan(t *testing.T) *ir.Plan {
	t.Helper()
	topo := &ir.Topology{
		Name: "abc",
		Components: []ir.ComponentDescriptor{
			{Kind: kindA, Artifact: "ArtifactA"},
			{Kind: kindB, Artifact: "ArtifactB", Args: []ir.ArgumentSpec{ir.Ref(kindA)}},
			{Kind: kindC, Artifact: "ArtifactC", Args: []ir.ArgumentSpec{ir.Ref(kindA), ir.Ref(kindB)}},
		},
	}
	plan, err := compiler.BuildPlan(topo, compiler.PlanOptions{})
	require.NoError(t, err)
	return plan
}

func defaultPlan(t *testing.T) *ir.Plan {
	t.Helper()
	topo, err := topology.Default()
	require.NoError(t, err)
	plan, err := compiler.BuildPlan(topo, compiler.PlanOptions{})
	require.NoError(t, err)
	return plan
}

// newTestOrchestrator wires deterministic run IDs, clock and durations.
func newTestOrchestrator(l *memledger.Ledger, opts ...Option) *Orchestrator {
	base := []Option{
		WithRunIDs(NewFixedGenerator("run-1", "run-2", "run-3")),
		WithClock(testutil.NewDeterministicClock()),
		WithNow(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}
	return New(l, append(base, opts...)...)
}

// attempts records every operation the fault hook sees.
type attempts struct {
	mu  sync.Mutex
	ops []memledger.Op
}

func (a *attempts) record(op memledger.Op) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ops = append(a.ops, op)
}

func (a *attempts) artifacts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, op := range a.ops {
		if op.Type == memledger.OpDeploy {
			out = append(out, op.Artifact)
		}
	}
	return out
}

// failDeploy rejects the deployment of artifact and records every attempt.
func failDeploy(artifact string, seen *attempts) memledger.FaultFunc {
	return func(_ context.Context, op memledger.Op) error {
		seen.record(op)
		if op.Type == memledger.OpDeploy && op.Artifact == artifact {
			return errors.New("insufficient funds for gas")
		}
		return nil
	}
}

// memJournal is an in-memory Journal.
type memJournal struct {
	runs        []ir.RunRecord
	steps       []ir.StepRecord
	resolutions []ir.DeployedComponent
	finished    []ir.RunRecord
	failStepAt  int // RecordStep fails on this call number (1-based); 0 never
	calls       int
}

func (j *memJournal) BeginRun(_ context.Context, run ir.RunRecord) error {
	j.runs = append(j.runs, run)
	return nil
}

func (j *memJournal) RecordStep(_ context.Context, rec ir.StepRecord) error {
	j.calls++
	if j.failStepAt > 0 && j.calls == j.failStepAt {
		return errors.New("disk full")
	}
	j.steps = append(j.steps, rec)
	return nil
}

func (j *memJournal) RecordResolution(_ context.Context, _ string, dc ir.DeployedComponent) error {
	j.resolutions = append(j.resolutions, dc)
	return nil
}

func (j *memJournal) FinishRun(_ context.Context, run ir.RunRecord) error {
	j.finished = append(j.finished, run)
	return nil
}

func resolvedKinds(dcs []ir.DeployedComponent) []ir.ComponentKind {
	out := make([]ir.ComponentKind, len(dcs))
	for i, dc := range dcs {
		out[i] = dc.Kind
	}
	return out
}
