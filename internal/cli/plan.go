package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nsboot/internal/compiler"
	"github.com/roach88/nsboot/internal/ir"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	ConfigPath string
	Topology   string
}

// PlanOutput is the JSON form of a plan.
type PlanOutput struct {
	Topology string     `json:"topology"`
	Hash     string     `json:"hash"`
	Order    []string   `json:"order"`
	Steps    []PlanLine `json:"steps"`
}

// PlanLine is one plan step with its declared arguments.
type PlanLine struct {
	Index    int      `json:"index"`
	Key      string   `json:"key"`
	Type     string   `json:"type"`
	Kind     string   `json:"kind"`
	Artifact string   `json:"artifact,omitempty"`
	Target   string   `json:"target,omitempty"`
	Method   string   `json:"method,omitempty"`
	Args     []string `json:"args"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the ordered execution plan",
		Long: `Print the ordered execution plan of a topology: every deployment,
setup and policy step with its declared arguments, and the plan hash.

Two runs with the same plan hash submit the same transactions in the
same order.

Examples:
  nsboot plan
  nsboot plan --config nsboot.toml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "run file supplying params and step overrides")
	cmd.Flags().StringVar(&opts.Topology, "topology", "", "topology directory (overrides the run file)")

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command) error {
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

	in, err := loadPlan(cfg, opts.Topology)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build plan", err)
	}

	if opts.Format == "json" {
		return formatter.Success(planOutput(in.Plan, in.Hash))
	}
	fmt.Fprint(formatter.Writer, compiler.FormatPlan(in.Plan, in.Hash))
	return nil
}

func planOutput(p *ir.Plan, hash string) PlanOutput {
	out := PlanOutput{Topology: p.Topology, Hash: hash, Order: make([]string, len(p.Order))}
	for i, k := range p.Order {
		out.Order[i] = string(k)
	}
	for _, s := range p.Steps {
		line := PlanLine{Index: s.Index, Key: s.Key, Type: string(s.Type), Kind: string(s.Kind), Args: []string{}}
		if s.Type == ir.StepDeploy {
			line.Artifact = s.Descriptor.Artifact
		} else {
			line.Target = string(s.Wiring.Target)
			line.Method = s.Wiring.Method
		}
		for _, a := range s.Args() {
			line.Args = append(line.Args, a.String())
		}
		out.Steps = append(out.Steps, line)
	}
	return out
}
