package compiler

import (
	"fmt"

	"github.com/roach88/nsboot/internal/ir"
)

// Order derives the deployment order from constructor references using
// Kahn's algorithm. When several components are ready, the earliest
// declared goes first, so the result depends only on the descriptors.
//
// Returns MISSING_DEPENDENCY for a reference to an undeclared kind and
// CYCLE (with the cycle path) when no total order exists.
func Order(t *ir.Topology) ([]ir.ComponentKind, error) {
	position := make(map[ir.ComponentKind]int, len(t.Components))
	for i, d := range t.Components {
		position[d.Kind] = i
	}

	indegree := make([]int, len(t.Components))
	dependents := make([][]int, len(t.Components))
	for i, d := range t.Components {
		for _, ref := range d.References() {
			j, ok := position[ref]
			if !ok {
				return nil, &ir.ConfigurationError{
					Code:    ir.ErrCodeMissingDependency,
					Message: fmt.Sprintf("constructor references undeclared component %q", ref),
					Kind:    d.Kind,
					StepKey: ir.DeployKey(d.Kind),
				}
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	done := make([]bool, len(t.Components))
	order := make([]ir.ComponentKind, 0, len(t.Components))
	for len(order) < len(t.Components) {
		// Lowest declaration index among ready components.
		next := -1
		for i := range t.Components {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			if err := CheckCycles(t); err != nil {
				return nil, err
			}
			return nil, &ir.ConfigurationError{
				Code:    ir.ErrCodeCycle,
				Message: "constructor references admit no deployment order",
			}
		}
		done[next] = true
		order = append(order, t.Components[next].Kind)
		for _, dep := range dependents[next] {
			indegree[dep]--
		}
	}
	return order, nil
}
