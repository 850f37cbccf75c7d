package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/nsboot/internal/config"
	"github.com/roach88/nsboot/internal/engine"
	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/ledger"
	"github.com/roach88/nsboot/internal/ledger/ethledger"
	"github.com/roach88/nsboot/internal/ledger/memledger"
	"github.com/roach88/nsboot/internal/store"
)

// ProvisionOptions holds flags for the provision command.
type ProvisionOptions struct {
	*RootOptions
	ConfigPath string
	Topology   string
	DryRun     bool
	Database   string
	NoJournal  bool
	ResumeRun  string

	// Ledger overrides the client chosen from the run file (for testing).
	Ledger ledger.Client

	// RunIDs overrides the run ID generator (for testing).
	RunIDs engine.RunIDGenerator

	// Getenv reads the signing key. Defaults to os.Getenv.
	Getenv func(string) string
}

// ProvisionResult is the JSON payload of a completed run.
type ProvisionResult struct {
	RunID     string                 `json:"run_id"`
	PlanHash  string                 `json:"plan_hash"`
	DryRun    bool                   `json:"dry_run"`
	Operator  string                 `json:"operator"`
	Completed int                    `json:"completed"`
	Total     int                    `json:"total"`
	Resolved  []ir.DeployedComponent `json:"resolved"`
	Records   []ir.StepRecord        `json:"records"`
}

// RunFailure is the JSON detail of a halted run.
type RunFailure struct {
	RunID       string                 `json:"run_id"`
	FailedIndex int                    `json:"failed_index"`
	FailedKey   string                 `json:"failed_key"`
	Completed   int                    `json:"completed"`
	Total       int                    `json:"total"`
	Resolved    []ir.DeployedComponent `json:"resolved"`
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand(rootOpts *RootOptions) *cobra.Command {
	return newProvisionCommand(&ProvisionOptions{RootOptions: rootOpts})
}

func newProvisionCommand(opts *ProvisionOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Deploy and wire the namespace service",
		Long: `Execute the plan against the ledger named in the run file, one
confirmed transaction at a time, journaling every step.

A failed step halts the run. The diagnostic lists the failed step and
every address resolved so far; copy them into the run file's [resume]
section (or pass --resume-from with the failed run's ID) to continue.
Nothing is retried or rolled back automatically.

--dry-run executes the plan against an in-memory ledger and does not
journal unless --db is given.

Examples:
  nsboot provision --config nsboot.toml
  nsboot provision --dry-run
  nsboot provision --config nsboot.toml --resume-from 0192f3c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "run file (required unless --dry-run)")
	cmd.Flags().StringVar(&opts.Topology, "topology", "", "topology directory (overrides the run file)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "execute against an in-memory ledger")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database (overrides the run file)")
	cmd.Flags().BoolVar(&opts.NoJournal, "no-journal", false, "do not journal the run")
	cmd.Flags().StringVar(&opts.ResumeRun, "resume-from", "", "resume the failed run with this ID from the journal")

	return cmd
}

func runProvision(opts *ProvisionOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if opts.ConfigPath == "" && !opts.DryRun {
		_ = formatter.Error(ErrCodeConfig, "--config is required unless --dry-run", nil)
		return NewExitError(ExitCommandError, "--config is required unless --dry-run")
	}
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	dryRun := opts.DryRun || cfg.Ledger.Mode == config.ModeMemory

	in, err := loadPlan(cfg, opts.Topology)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build plan", err)
	}
	slog.Info("plan built", "topology", in.Plan.Topology, "steps", len(in.Plan.Steps), "plan_hash", in.Hash, "dry_run", dryRun)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var st *store.Store
	if journalPath := journalPath(opts, cfg, dryRun); journalPath != "" {
		st, err = store.Open(journalPath)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		slog.Info("journal ready", "path", journalPath)
	}

	resume, err := resumeRequest(ctx, opts, cfg, st, in.Hash)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid resumption", err)
	}

	client, closeClient, err := ledgerClient(ctx, opts, cfg, dryRun)
	if err != nil {
		_ = formatter.Error(ErrCodeLedger, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to connect to ledger", err)
	}
	defer closeClient()

	orchOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithStepTimeout(cfg.ConfirmTimeout()),
	}
	if st != nil {
		orchOpts = append(orchOpts, engine.WithJournal(st))
	}
	if opts.RunIDs != nil {
		orchOpts = append(orchOpts, engine.WithRunIDs(opts.RunIDs))
	}
	if opts.Format != "json" {
		orchOpts = append(orchOpts, engine.WithObserver(progressPrinter(formatter.Writer, len(in.Plan.Steps))))
	}
	orch := engine.New(client, orchOpts...)

	var report *engine.Report
	if resume != nil {
		report, err = orch.Resume(ctx, in.Plan, *resume)
	} else {
		report, err = orch.Run(ctx, in.Plan)
	}
	if err != nil {
		return reportRunError(formatter, err)
	}

	if opts.Format == "json" {
		return formatter.Success(ProvisionResult{
			RunID:     report.RunID,
			PlanHash:  report.PlanHash,
			DryRun:    dryRun,
			Operator:  client.Operator().Hex(),
			Completed: report.Completed,
			Total:     report.Total,
			Resolved:  report.Resolved,
			Records:   report.Records,
		})
	}
	fmt.Fprintf(formatter.Writer, "%s run %s completed: %d/%d steps\n", okMark(), report.RunID, report.Completed, report.Total)
	writeResolved(formatter.Writer, report.Resolved)
	return nil
}

// journalPath picks the journal database. Dry runs journal only when --db
// is given.
func journalPath(opts *ProvisionOptions, cfg config.Config, dryRun bool) string {
	switch {
	case opts.NoJournal:
		return ""
	case opts.Database != "":
		return opts.Database
	case dryRun:
		return ""
	default:
		return cfg.Journal.Path
	}
}

func resumeRequest(ctx context.Context, opts *ProvisionOptions, cfg config.Config, st *store.Store, planHash string) (*engine.Resume, error) {
	if opts.ResumeRun == "" {
		return cfg.ResumeRequest(), nil
	}
	if cfg.Resume != nil {
		return nil, fmt.Errorf("--resume-from and a [resume] section are mutually exclusive")
	}
	if st == nil {
		return nil, fmt.Errorf("--resume-from needs a journal")
	}
	r, err := st.ResumePoint(ctx, opts.ResumeRun, planHash)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func ledgerClient(ctx context.Context, opts *ProvisionOptions, cfg config.Config, dryRun bool) (ledger.Client, func(), error) {
	if opts.Ledger != nil {
		return opts.Ledger, func() {}, nil
	}
	if dryRun {
		return memledger.New(), func() {}, nil
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	key, err := cfg.PrivateKey(getenv)
	if err != nil {
		return nil, nil, err
	}
	client, err := ethledger.Dial(ctx, cfg.EthConfig(key))
	if err != nil {
		return nil, nil, err
	}
	slog.Info("ledger connected", "rpc_url", cfg.Ledger.RPCURL, "chain_id", cfg.Ledger.ChainID, "operator", client.Operator().Hex())
	return client, client.Close, nil
}

// signalContext cancels on SIGINT or SIGTERM. A cancelled run halts at its
// current step with a cancelled failure, kept apart from confirmation
// timeouts in the diagnostic and the journal.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, halting run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// progressPrinter prints one line per executed step.
func progressPrinter(w io.Writer, total int) func(ir.StepRecord) {
	width := len(fmt.Sprint(total))
	return func(rec ir.StepRecord) {
		ok := rec.Status == ir.StatusOK
		detail := rec.Address
		switch {
		case !ok:
			detail = rec.Error
		case rec.Type != ir.StepDeploy:
			detail = "tx " + rec.TxHash
		}
		fmt.Fprintf(w, "%s [%*d/%d] %-30s %s\n", mark(ok), width, rec.Index+1, total, rec.Key, detail)
	}
}

func reportRunError(formatter *OutputFormatter, err error) error {
	runErr, ok := engine.AsRunError(err)
	if !ok {
		// Rejected before the first step: bad resumption or unusable plan.
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "run not started", err)
	}

	if formatter.Format == "json" {
		_ = formatter.Error(ErrCodeRunFailed, runErr.Err.Error(), RunFailure{
			RunID:       runErr.RunID,
			FailedIndex: runErr.Index,
			FailedKey:   runErr.Key,
			Completed:   runErr.Completed,
			Total:       runErr.Total,
			Resolved:    nonNil(runErr.Resolved),
		})
	} else {
		fmt.Fprintf(formatter.Writer, "%s run %s halted\n", failMark(), runErr.RunID)
		fmt.Fprint(formatter.Writer, runErr.Diagnostic())
	}

	var ce *ir.ConfigurationError
	if errors.As(err, &ce) {
		return WrapExitError(ExitFailure, "run halted on a configuration error", err)
	}
	return WrapExitError(ExitFailure, "run halted", err)
}

func writeResolved(w io.Writer, resolved []ir.DeployedComponent) {
	fmt.Fprintln(w, "resolved:")
	for _, dc := range resolved {
		fmt.Fprintf(w, "  %-18s %s\n", dc.Kind, dc.Address)
	}
}

func nonNil(dcs []ir.DeployedComponent) []ir.DeployedComponent {
	if dcs == nil {
		return []ir.DeployedComponent{}
	}
	return dcs
}
