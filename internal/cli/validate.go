package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nsboot/internal/compiler"
	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/topology"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ConfigPath string
}

// ValidationIssue is one problem found in a topology.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Topology   string            `json:"topology,omitempty"`
	Components int               `json:"components,omitempty"`
	Steps      int               `json:"steps,omitempty"`
	Issues     []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [topology-dir]",
		Short: "Check a topology without touching the ledger",
		Long: `Compile and validate a topology, analyze its dependency graph for
cycles, and build its execution plan. Every problem found is reported
with its code; nothing is submitted to any ledger.

Without a directory the built-in topology is validated.

Examples:
  nsboot validate
  nsboot validate ./topology --config nsboot.toml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "run file supplying params and step overrides")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if dir == "" {
		dir = cfg.Topology
	}

	topo, err := topology.Load(dir, cfg.Params)
	if err != nil {
		return reportIssues(formatter, ValidationResult{Issues: []ValidationIssue{issueFromError(err)}})
	}
	formatter.VerboseLog("Compiled topology %s: %d components, %d policy steps", topo.Name, len(topo.Components), len(topo.Policy))

	var issues []ValidationIssue
	for _, ve := range compiler.Validate(topo) {
		issues = append(issues, ValidationIssue{Code: ve.Code, Field: ve.Field, Message: ve.Message})
	}
	for _, cycle := range compiler.FindCycles(topo) {
		path := make([]string, len(cycle))
		for i, k := range cycle {
			path[i] = string(k)
		}
		issues = append(issues, ValidationIssue{
			Code:    string(ir.ErrCodeCycle),
			Message: strings.Join(path, " → "),
		})
	}
	if len(issues) > 0 {
		return reportIssues(formatter, ValidationResult{Topology: topo.Name, Issues: issues})
	}

	plan, err := compiler.BuildPlan(topo, compiler.PlanOptions{Steps: cfg.Steps})
	if err != nil {
		return reportIssues(formatter, ValidationResult{Topology: topo.Name, Issues: []ValidationIssue{issueFromError(err)}})
	}

	result := ValidationResult{
		Valid:      true,
		Topology:   topo.Name,
		Components: len(plan.Order),
		Steps:      len(plan.Steps),
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "%s topology %s is valid: %d components, %d steps\n",
		okMark(), result.Topology, result.Components, result.Steps)
	return nil
}

func issueFromError(err error) ValidationIssue {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return ValidationIssue{Code: ErrCodeConfig, Field: compileErr.Field, Message: compileErr.Message}
	}
	var ce *ir.ConfigurationError
	if errors.As(err, &ce) {
		return ValidationIssue{Code: string(ce.Code), Field: ce.StepKey, Message: ce.Message}
	}
	return ValidationIssue{Code: errorCode(err), Message: err.Error()}
}

func reportIssues(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		_ = formatter.Error(result.Issues[0].Code, fmt.Sprintf("%d validation issue(s)", len(result.Issues)), result)
	} else {
		for _, issue := range result.Issues {
			if issue.Field != "" {
				fmt.Fprintf(formatter.Writer, "%s [%s] %s: %s\n", failMark(), issue.Code, issue.Field, issue.Message)
			} else {
				fmt.Fprintf(formatter.Writer, "%s [%s] %s\n", failMark(), issue.Code, issue.Message)
			}
		}
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("validation failed with %d issue(s)", len(result.Issues)))
}
