package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/nsboot/internal/ir"
)

// PlanOptions carries run configuration that shapes the plan.
type PlanOptions struct {
	// Steps overrides the enabled flag of steps by id. Only optional steps
	// may be disabled.
	Steps map[string]bool
}

// BuildPlan validates t, applies step overrides, derives the deployment
// order, and lays out the linear plan:
//
//	deploy:<k>, its enabled setup steps, policy steps anchored after k
//	... for each k in deployment order ...
//	unanchored policy steps, in declaration order
//
// Every step's dependencies are then checked against the components
// deployed before it. Any problem is a ConfigurationError; t is not
// modified.
func BuildPlan(t *ir.Topology, opts PlanOptions) (*ir.Plan, error) {
	t, err := applyOverrides(t, opts.Steps)
	if err != nil {
		return nil, err
	}
	if err := Check(t); err != nil {
		return nil, err
	}

	order, err := Order(t)
	if err != nil {
		return nil, err
	}

	plan := &ir.Plan{Topology: t.Name, Order: order}
	add := func(s ir.PlanStep) {
		s.Index = len(plan.Steps)
		plan.Steps = append(plan.Steps, s)
	}
	addPolicy := func(after ir.ComponentKind) {
		for i := range t.Policy {
			p := &t.Policy[i]
			if p.After == after && p.Enabled {
				add(ir.PlanStep{Key: ir.PolicyKey(p.ID), Type: ir.StepPolicy, Kind: p.Target, Wiring: p})
			}
		}
	}

	for _, kind := range order {
		d, _ := t.Descriptor(kind)
		add(ir.PlanStep{Key: ir.DeployKey(kind), Type: ir.StepDeploy, Kind: kind, Descriptor: d})
		for i := range d.Setup {
			s := &d.Setup[i]
			if s.Enabled {
				add(ir.PlanStep{Key: ir.SetupKey(kind, s.ID), Type: ir.StepSetup, Kind: kind, Wiring: s})
			}
		}
		addPolicy(kind)
	}
	addPolicy("")

	if err := checkAvailability(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// checkAvailability walks the plan in order and rejects any step that
// depends on a component not deployed before it.
func checkAvailability(plan *ir.Plan) error {
	deployed := make(map[ir.ComponentKind]bool)
	for _, s := range plan.Steps {
		for _, k := range s.Requires() {
			if !deployed[k] {
				return ir.NewUnresolvedError(s.Key, k)
			}
		}
		if s.Type == ir.StepDeploy {
			deployed[s.Kind] = true
		}
	}
	return nil
}

// applyOverrides returns a copy of t with step enabled flags replaced from
// overrides. Unknown ids and attempts to disable required steps fail.
func applyOverrides(t *ir.Topology, overrides map[string]bool) (*ir.Topology, error) {
	out := &ir.Topology{
		Name:       t.Name,
		Components: make([]ir.ComponentDescriptor, len(t.Components)),
		Policy:     slices.Clone(t.Policy),
	}
	for i, d := range t.Components {
		d.Setup = slices.Clone(d.Setup)
		out.Components[i] = d
	}

	// Sorted for a deterministic first error.
	ids := make([]string, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		step, key := findStep(out, id)
		if step == nil {
			return nil, &ir.ConfigurationError{
				Code:    ir.ErrCodeUnknownStep,
				Message: fmt.Sprintf("no step with id %q", id),
			}
		}
		enabled := overrides[id]
		if !enabled && !step.Optional {
			return nil, &ir.ConfigurationError{
				Code:    ir.ErrCodeRequiredStepDisabled,
				Message: fmt.Sprintf("step %q is not optional and cannot be disabled", id),
				StepKey: key,
			}
		}
		step.Enabled = enabled
	}
	return out, nil
}

func findStep(t *ir.Topology, id string) (*ir.WiringStep, string) {
	for i := range t.Components {
		d := &t.Components[i]
		for j := range d.Setup {
			if d.Setup[j].ID == id {
				return &d.Setup[j], ir.SetupKey(d.Kind, id)
			}
		}
	}
	for i := range t.Policy {
		if t.Policy[i].ID == id {
			return &t.Policy[i], ir.PolicyKey(id)
		}
	}
	return nil, ""
}
