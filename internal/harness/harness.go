package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/nsboot/internal/compiler"
	"github.com/roach88/nsboot/internal/engine"
	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/ledger"
	"github.com/roach88/nsboot/internal/ledger/memledger"
	"github.com/roach88/nsboot/internal/store"
	"github.com/roach88/nsboot/internal/testutil"
	"github.com/roach88/nsboot/internal/topology"
)

// Harness executes the runs of one scenario against shared state.
type Harness struct {
	store  *store.Store
	ledger *memledger.Ledger
	faults *faultInjector
	clock  *testutil.DeterministicClock
	logger *slog.Logger
	plan   *ir.Plan
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh in-memory ledger and journal. The returned
// error covers setup problems only (bad topology, unknown fault step); a
// run that ends differently than expected is reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	topo, err := topology.Load(scenario.Topology, scenario.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to load topology: %w", err)
	}
	plan, err := compiler.BuildPlan(topo, compiler.PlanOptions{Steps: scenario.Steps})
	if err != nil {
		return nil, fmt.Errorf("failed to build plan: %w", err)
	}
	hash, err := ir.PlanHash(plan)
	if err != nil {
		return nil, err
	}

	faults, err := newFaultInjector(plan, scenario.Faults)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		ledger: memledger.New(memledger.WithFault(faults.fault)),
		faults: faults,
		clock:  testutil.NewDeterministicClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		plan:   plan,
	}

	result := NewResult()
	result.PlanHash = hash

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	report, runErr := h.execute(ctx, runID, nil)
	if err := result.addRun(report, runErr); err != nil {
		return nil, err
	}

	if scenario.Resume && runErr != nil {
		r, err := st.ResumePoint(ctx, runID, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to compute resume point: %w", err)
		}
		faults.clear()
		report, runErr = h.execute(ctx, runID+"-resume", &r)
		if err := result.addRun(report, runErr); err != nil {
			return nil, err
		}
	}

	for _, msg := range checkExpectation(result.Final(), scenario.Expect) {
		result.AddError(msg)
	}

	actx := &AssertionContext{
		Ctx:    ctx,
		Store:  st,
		Ledger: h.ledger,
		RunID:  result.Final().RunID,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// execute runs the plan once, from the start or from r.
func (h *Harness) execute(ctx context.Context, runID string, r *engine.Resume) (*engine.Report, error) {
	orch := engine.New(h.ledger,
		engine.WithJournal(h.store),
		engine.WithLogger(h.logger),
		engine.WithClock(h.clock),
		engine.WithRunIDs(engine.NewFixedGenerator(runID)),
		engine.WithNow(testutil.FrozenNow),
	)

	if r == nil {
		h.faults.startAt(0)
		return orch.Run(ctx, h.plan)
	}
	h.faults.startAt(r.StartAt)
	h.logger.Info("resuming", "run", runID, "start_at", r.StartAt)
	return orch.Resume(ctx, h.plan, *r)
}

// addRun records the outcome of one run. Errors that did not come from an
// executed step mean the scenario itself is broken.
func (r *Result) addRun(report *engine.Report, runErr error) error {
	if report == nil {
		return fmt.Errorf("run did not start: %w", runErr)
	}

	outcome := RunOutcome{
		RunID:       report.RunID,
		Status:      ir.RunCompleted,
		StartIndex:  report.StartIndex,
		Completed:   report.Completed,
		Total:       report.Total,
		FailedIndex: -1,
	}
	if runErr != nil {
		re, ok := engine.AsRunError(runErr)
		if !ok {
			return fmt.Errorf("run %s: %w", report.RunID, runErr)
		}
		outcome.Status = ir.RunFailed
		outcome.FailedIndex = re.Index
		outcome.FailedKey = re.Key
		outcome.Reason = failureReason(re.Err)
		outcome.Error = re.Err.Error()
	}

	r.Runs = append(r.Runs, outcome)
	r.Trace = append(r.Trace, report.Records...)
	r.Resolved = append([]ir.DeployedComponent{}, report.Resolved...)
	return nil
}

func failureReason(err error) string {
	var tf *ledger.TransactionFailure
	if errors.As(err, &tf) {
		return string(tf.Reason)
	}
	var ce *ir.ConfigurationError
	if errors.As(err, &ce) {
		return string(ce.Code)
	}
	return ""
}

func checkExpectation(got RunOutcome, want Expectation) []string {
	var errs []string
	if string(got.Status) != want.Status {
		msg := fmt.Sprintf("expected run %s to be %s, got %s", got.RunID, want.Status, got.Status)
		if got.Error != "" {
			msg += fmt.Sprintf(" (step %s: %s)", got.FailedKey, got.Error)
		}
		errs = append(errs, msg)
	}
	if want.FailedKey != "" && got.FailedKey != want.FailedKey {
		errs = append(errs, fmt.Sprintf("expected failure at %s, got %q", want.FailedKey, got.FailedKey))
	}
	if want.Reason != "" && got.Reason != want.Reason {
		errs = append(errs, fmt.Sprintf("expected failure reason %s, got %q", want.Reason, got.Reason))
	}
	if want.Completed != nil && got.Completed != *want.Completed {
		errs = append(errs, fmt.Sprintf("expected %d completed steps, got %d", *want.Completed, got.Completed))
	}
	return errs
}

// faultInjector maps ledger transactions to plan steps. Every executed step
// submits exactly one transaction, so the n-th transaction of a run that
// starts at index s belongs to step s+n.
type faultInjector struct {
	mu      sync.Mutex
	byIndex map[int]Fault
	next    int
}

func newFaultInjector(plan *ir.Plan, faults []Fault) (*faultInjector, error) {
	f := &faultInjector{byIndex: make(map[int]Fault, len(faults))}
	for _, fault := range faults {
		step, ok := plan.StepByKey(fault.Step)
		if !ok {
			return nil, fmt.Errorf("fault on unknown step %q", fault.Step)
		}
		f.byIndex[step.Index] = fault
	}
	return f, nil
}

func (f *faultInjector) startAt(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = index
}

func (f *faultInjector) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byIndex = map[int]Fault{}
}

func (f *faultInjector) fault(ctx context.Context, op memledger.Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	index := f.next
	f.next++
	fault, ok := f.byIndex[index]
	if !ok {
		return nil
	}
	return fault.err(op)
}

func (f Fault) err(op memledger.Op) error {
	msg := f.Message
	if msg == "" {
		msg = "injected fault"
	}
	switch f.Reason {
	case FaultTimeout:
		return fmt.Errorf("%s: %w", msg, context.DeadlineExceeded)
	case FaultReverted:
		name := op.Method
		if op.Type == memledger.OpDeploy {
			name = op.Artifact
		}
		return &ledger.TransactionFailure{Op: string(op.Type) + " " + name, Reason: ledger.ReasonReverted, Err: errors.New(msg)}
	default:
		return errors.New(msg)
	}
}
