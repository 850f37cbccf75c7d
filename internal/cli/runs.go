package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nsboot/internal/config"
	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "runs",
		Short:         "List journaled runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", config.DefaultJournalPath, "journal database")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		if runs == nil {
			runs = []ir.RunRecord{}
		}
		return formatter.Success(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "no runs journaled")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(formatter.Writer, "%s  %-9s  %-10s  %2d/%d from %d  %s\n",
			r.ID, r.Status, r.Topology, progress(r), r.TotalSteps, r.StartIndex, shortHash(r.PlanHash))
	}
	return nil
}

// progress is the index a run reached: the failed step, or the plan length.
func progress(r ir.RunRecord) int {
	if r.Status == ir.RunFailed {
		return r.FailedIndex
	}
	if r.Status == ir.RunCompleted {
		return r.TotalSteps
	}
	return r.StartIndex
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
