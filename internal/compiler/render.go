package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/nsboot/internal/ir"
)

// FormatPlan renders a plan as text, one line per step, with the declared
// (unresolved) arguments of each call.
func FormatPlan(p *ir.Plan, hash string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan %s: %d components, %d steps\n", p.Topology, len(p.Order), len(p.Steps))
	fmt.Fprintf(&b, "hash: %s\n", hash)

	order := make([]string, len(p.Order))
	for i, k := range p.Order {
		order[i] = string(k)
	}
	fmt.Fprintf(&b, "order: %s\n", strings.Join(order, " → "))

	for _, s := range p.Steps {
		fmt.Fprintf(&b, "%3d  %-30s %s\n", s.Index, s.Key, FormatStep(s))
	}
	return b.String()
}

// FormatStep renders the call a step makes, e.g.
// `registry.setSubnodeOwner(node(""), label("reverse"), operator)`.
func FormatStep(s ir.PlanStep) string {
	args := make([]string, 0, len(s.Args()))
	for _, a := range s.Args() {
		args = append(args, a.String())
	}
	joined := strings.Join(args, ", ")

	if s.Type == ir.StepDeploy {
		return fmt.Sprintf("new %s(%s)", s.Descriptor.Artifact, joined)
	}
	name, _, _ := strings.Cut(s.Wiring.Method, "(")
	return fmt.Sprintf("%s.%s(%s)", s.Wiring.Target, name, joined)
}
