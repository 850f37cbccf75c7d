package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/ledger"
	"github.com/roach88/nsboot/internal/namehash"
)

// DefaultStepTimeout bounds the wait for one transaction's confirmation.
const DefaultStepTimeout = 2 * time.Minute

// Journal persists the observable records of a run.
// Implemented by store.Store; a nil journal disables persistence.
type Journal interface {
	BeginRun(ctx context.Context, run ir.RunRecord) error
	RecordStep(ctx context.Context, rec ir.StepRecord) error
	RecordResolution(ctx context.Context, runID string, dc ir.DeployedComponent) error
	FinishRun(ctx context.Context, run ir.RunRecord) error
}

// Report is the outcome of a run. On failure it is returned together with
// a *RunError and holds the records emitted up to and including the
// failed step.
type Report struct {
	RunID      string
	PlanHash   string
	StartIndex int
	Records    []ir.StepRecord
	Resolved   []ir.DeployedComponent // deployment order
	Completed  int
	Total      int
}

// Orchestrator executes plans against a ledger client, one step at a time.
// A single Orchestrator must not run two plans concurrently.
type Orchestrator struct {
	client   ledger.Client
	journal  Journal
	logger   *slog.Logger
	clock    SeqClock
	runIDs   RunIDGenerator
	hasher   *namehash.Hasher
	timeout  time.Duration
	now      func() time.Time
	observer func(ir.StepRecord)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal persists runs to j.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithClock sets the logical clock used to stamp step records.
func WithClock(c SeqClock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithRunIDs sets the run ID generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(o *Orchestrator) {
		o.runIDs = g
	}
}

// WithHasher shares a namehash memo across runs.
func WithHasher(h *namehash.Hasher) Option {
	return func(o *Orchestrator) {
		o.hasher = h
	}
}

// WithStepTimeout bounds each confirmation wait. Default: DefaultStepTimeout.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithNow replaces the wall clock used for step durations.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithObserver registers a callback invoked with every emitted step record.
func WithObserver(fn func(ir.StepRecord)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// New creates an Orchestrator for client.
func New(client ledger.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:  client,
		logger:  slog.Default(),
		clock:   NewClock(),
		runIDs:  UUIDv7Generator{},
		hasher:  namehash.NewHasher(),
		timeout: DefaultStepTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes plan from its first step.
func (o *Orchestrator) Run(ctx context.Context, plan *ir.Plan) (*Report, error) {
	return o.run(ctx, plan, Resume{})
}

// Resume executes plan from r.StartAt, seeding the resolution table with
// the addresses an earlier run confirmed. Skipped steps emit nothing.
func (o *Orchestrator) Resume(ctx context.Context, plan *ir.Plan, r Resume) (*Report, error) {
	if err := ValidateResume(plan, r); err != nil {
		return nil, err
	}
	return o.run(ctx, plan, r)
}

func (o *Orchestrator) run(ctx context.Context, plan *ir.Plan, r Resume) (*Report, error) {
	planHash, err := ir.PlanHash(plan)
	if err != nil {
		return nil, fmt.Errorf("hash plan: %w", err)
	}

	runID := o.runIDs.Generate()
	operator := o.client.Operator()
	table := NewResolutionTable()
	report := &Report{
		RunID:      runID,
		PlanHash:   planHash,
		StartIndex: r.StartAt,
		Completed:  r.StartAt,
		Total:      len(plan.Steps),
	}

	run := ir.RunRecord{
		ID:          runID,
		Topology:    plan.Topology,
		PlanHash:    planHash,
		Operator:    operator.Hex(),
		TotalSteps:  len(plan.Steps),
		StartIndex:  r.StartAt,
		Status:      ir.RunRunning,
		FailedIndex: -1,
	}
	if o.journal != nil {
		if err := o.journal.BeginRun(ctx, run); err != nil {
			return nil, fmt.Errorf("journal run start: %w", err)
		}
	}

	o.logger.Info("run starting",
		"run", runID,
		"topology", plan.Topology,
		"plan_hash", planHash,
		"steps", len(plan.Steps),
		"start_at", r.StartAt,
		"operator", operator.Hex())

	// Seeded entries carry seq 0: they were confirmed by an earlier run.
	for _, s := range plan.Steps[:r.StartAt] {
		if s.Type != ir.StepDeploy {
			continue
		}
		addr := r.Resolved[s.Kind]
		if err := table.Record(s.Kind, addr, 0); err != nil {
			return nil, &ir.ConfigurationError{Code: ir.ErrCodeInvalidResume, Message: err.Error(), Kind: s.Kind}
		}
		if err := o.journalResolution(ctx, runID, table); err != nil {
			return nil, err
		}
	}

	args := argResolver{table: table, operator: operator, hasher: o.hasher}
	for i := r.StartAt; i < len(plan.Steps); i++ {
		step := plan.Steps[i]
		rec, stepErr := o.execute(ctx, runID, step, table, args)
		report.Records = append(report.Records, rec)

		if stepErr == nil {
			report.Completed++
		}
		emitErr := o.emit(ctx, rec, stepErr, table)
		if stepErr == nil && emitErr != nil {
			stepErr = emitErr
		}
		if stepErr != nil {
			report.Resolved = table.Snapshot()
			runErr := &RunError{
				RunID:     runID,
				Index:     step.Index,
				Key:       step.Key,
				Kind:      step.Kind,
				Resolved:  report.Resolved,
				Completed: report.Completed,
				Total:     report.Total,
				Err:       stepErr,
			}
			run.Status = ir.RunFailed
			run.FailedIndex = step.Index
			run.FailedKey = step.Key
			run.Error = stepErr.Error()
			o.finish(ctx, run)
			return report, runErr
		}
	}

	report.Resolved = table.Snapshot()
	run.Status = ir.RunCompleted
	o.finish(ctx, run)
	o.logger.Info("run completed",
		"run", runID,
		"steps", report.Completed,
		"resolved", len(report.Resolved))
	return report, nil
}

// execute runs one plan step. The record is always returned; err is non-nil
// when the step failed.
func (o *Orchestrator) execute(ctx context.Context, runID string, step ir.PlanStep, table *ResolutionTable, args argResolver) (ir.StepRecord, error) {
	start := o.now()
	rec := ir.StepRecord{
		RunID: runID,
		Index: step.Index,
		Key:   step.Key,
		Type:  step.Type,
		Kind:  step.Kind,
		Args:  []string{},
	}
	finish := func(err error) (ir.StepRecord, error) {
		rec.Seq = o.clock.Next()
		rec.DurationMs = o.now().Sub(start).Milliseconds()
		rec.Status = ir.StatusOK
		if err != nil {
			rec.Status = ir.StatusFailed
			rec.Error = err.Error()
		}
		return rec, err
	}

	if step.Type == ir.StepDeploy {
		rec.Artifact = step.Descriptor.Artifact
	} else {
		rec.Method = step.Wiring.Method
	}

	// Fail fast: nothing is submitted for a step whose dependencies are
	// not in the table.
	for _, k := range step.Requires() {
		if !table.Has(k) {
			return finish(ir.NewUnresolvedError(step.Key, k))
		}
	}

	values, rendered, err := args.resolveAll(step.Key, step.Args())
	if err != nil {
		return finish(err)
	}
	rec.Args = rendered

	stepCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if step.Type == ir.StepDeploy {
		o.logger.Debug("deploying", "key", step.Key, "artifact", rec.Artifact, "args", rendered)
		receipt, err := o.client.Deploy(stepCtx, rec.Artifact, values)
		if err != nil {
			return finish(ledger.Classify("deploy "+rec.Artifact, common.Hash{}, err, ledger.ReasonRejected))
		}
		rec.Address = receipt.Address.Hex()
		rec.TxHash = receipt.TxHash.Hex()
		rec.Block = receipt.Block
		rec, _ = finish(nil)
		if err := table.Record(step.Kind, receipt.Address, rec.Seq); err != nil {
			rec.Status = ir.StatusFailed
			rec.Error = err.Error()
			return rec, err
		}
		return rec, nil
	}

	target, _ := table.Lookup(step.Wiring.Target)
	rec.Target = target.Hex()
	o.logger.Debug("calling", "key", step.Key, "target", rec.Target, "method", rec.Method, "args", rendered)
	receipt, err := o.client.Call(stepCtx, target, rec.Method, values)
	if err != nil {
		return finish(ledger.Classify("call "+rec.Method, common.Hash{}, err, ledger.ReasonRejected))
	}
	rec.TxHash = receipt.TxHash.Hex()
	rec.Block = receipt.Block
	return finish(nil)
}

// emit logs rec, notifies the observer, and journals it. A deploy record
// is followed by its resolution entry.
func (o *Orchestrator) emit(ctx context.Context, rec ir.StepRecord, stepErr error, table *ResolutionTable) error {
	attrs := []any{
		"run", rec.RunID,
		"index", rec.Index,
		"seq", rec.Seq,
		"key", rec.Key,
		"step", string(rec.Type),
		"kind", string(rec.Kind),
		"target", rec.Target,
		"method", rec.Method,
		"args", rec.Args,
		"address", rec.Address,
		"tx", rec.TxHash,
		"duration_ms", rec.DurationMs,
	}
	if stepErr != nil {
		attrs = append(attrs, "error", stepErr.Error(), "resolved", renderTable(table))
		o.logger.Error("step failed", attrs...)
	} else {
		o.logger.Info("step completed", attrs...)
	}

	if o.observer != nil {
		o.observer(rec)
	}

	if o.journal == nil {
		return nil
	}
	// Journal writes use a context detached from cancellation: a run cut
	// short by its caller still records what the ledger confirmed.
	jctx := context.WithoutCancel(ctx)
	if err := o.journal.RecordStep(jctx, rec); err != nil {
		o.logger.Error("journal write failed", "run", rec.RunID, "key", rec.Key, "error", err)
		return fmt.Errorf("journal step %s: %w", rec.Key, err)
	}
	if rec.Type == ir.StepDeploy && rec.Status == ir.StatusOK {
		return o.journalResolution(jctx, rec.RunID, table)
	}
	return nil
}

// journalResolution writes the most recent table entry.
func (o *Orchestrator) journalResolution(ctx context.Context, runID string, table *ResolutionTable) error {
	if o.journal == nil {
		return nil
	}
	snap := table.Snapshot()
	dc := snap[len(snap)-1]
	if err := o.journal.RecordResolution(ctx, runID, dc); err != nil {
		o.logger.Error("journal write failed", "run", runID, "kind", string(dc.Kind), "error", err)
		return fmt.Errorf("journal resolution %s: %w", dc.Kind, err)
	}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, run ir.RunRecord) {
	if o.journal == nil {
		return
	}
	if err := o.journal.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Error("journal write failed", "run", run.ID, "error", err)
	}
}

func renderTable(table *ResolutionTable) string {
	snap := table.Snapshot()
	parts := make([]string, len(snap))
	for i, dc := range snap {
		parts[i] = string(dc.Kind) + "=" + dc.Address
	}
	return strings.Join(parts, " ")
}
