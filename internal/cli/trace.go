package cli

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/roach88/nsboot/internal/config"
	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// TraceOutput is the JSON payload of the trace command.
type TraceOutput struct {
	Run      ir.RunRecord           `json:"run"`
	Steps    []ir.StepRecord        `json:"steps"`
	Resolved []ir.DeployedComponent `json:"resolved"`
	Resume   *config.ResumeConfig   `json:"resume,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled steps of a run",
		Long: `Print every journaled step of a run in execution order, the
addresses it resolved and, for a halted run, a [resume] section ready to
paste into the run file.

Examples:
  nsboot trace --run 0192f3c4-...
  nsboot trace --db ./nsboot.db --run 0192f3c4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", config.DefaultJournalPath, "journal database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to trace (required)")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	steps, err := st.ReadSteps(ctx, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read steps", err)
	}
	resolved, err := st.ReadResolutions(ctx, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read resolutions", err)
	}

	var resume *config.ResumeConfig
	if run.Status == ir.RunFailed {
		r, err := st.ResumePoint(ctx, run.ID, run.PlanHash)
		if err != nil {
			_ = formatter.Error(errorCode(err), err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to compute resume point", err)
		}
		resume = config.ResumeSection(r)
	}

	if opts.Format == "json" {
		if steps == nil {
			steps = []ir.StepRecord{}
		}
		return formatter.Success(TraceOutput{
			Run:      run,
			Steps:    steps,
			Resolved: nonNil(resolved),
			Resume:   resume,
		})
	}

	w := formatter.Writer
	writeRunHeader(w, run)
	for _, rec := range steps {
		detail := rec.Address
		if rec.Type != ir.StepDeploy {
			detail = fmt.Sprintf("%s.%s", rec.Target, rec.Method)
		}
		fmt.Fprintf(w, "%s %4d  seq=%-4d %-30s %s (%dms)\n",
			mark(rec.Status == ir.StatusOK), rec.Index, rec.Seq, rec.Key, detail, rec.DurationMs)
		if rec.Status == ir.StatusFailed {
			fmt.Fprintf(w, "        error: %s\n", rec.Error)
		}
	}
	writeResolved(w, resolved)

	if resume != nil {
		out, err := toml.Marshal(struct {
			Resume *config.ResumeConfig `toml:"resume"`
		}{resume})
		if err != nil {
			return WrapExitError(ExitFailure, "failed to render resume section", err)
		}
		fmt.Fprintln(w, "\nto resume, add to the run file:")
		fmt.Fprint(w, string(out))
	}
	return nil
}

func writeRunHeader(w io.Writer, run ir.RunRecord) {
	fmt.Fprintf(w, "run %s [%s]\n", run.ID, run.Status)
	fmt.Fprintf(w, "topology: %s\n", run.Topology)
	fmt.Fprintf(w, "plan:     %s (%d steps, from %d)\n", run.PlanHash, run.TotalSteps, run.StartIndex)
	if run.Operator != "" {
		fmt.Fprintf(w, "operator: %s\n", run.Operator)
	}
	if run.Status == ir.RunFailed {
		fmt.Fprintf(w, "failed:   step %d %s: %s\n", run.FailedIndex, run.FailedKey, run.Error)
	}
}
