package compiler

import "github.com/roach88/nsboot/internal/ir"

const (
	kindA = ir.KindRegistry
	kindB = ir.KindFallbackRegistry
	kindC = ir.KindController
)

func component(kind ir.ComponentKind, args ...ir.ArgumentSpec) ir.ComponentDescriptor {
	return ir.ComponentDescriptor{Kind: kind, Artifact: "Artifact_" + string(kind), Args: args}
}

func wiring(id string, action ir.StepAction, target ir.ComponentKind, args ...ir.ArgumentSpec) ir.WiringStep {
	return ir.WiringStep{
		ID:      id,
		Action:  action,
		Target:  target,
		Method:  ir.ActionMethods[action],
		Args:    args,
		Enabled: true,
	}
}

// abcTopology is A (no deps), B (depends on A), C (depends on A and B),
// declared in reverse so the order must come from the references.
func abcTopology() *ir.Topology {
	return &ir.Topology{
		Name: "abc",
		Components: []ir.ComponentDescriptor{
			component(kindC, ir.Ref(kindA), ir.Ref(kindB)),
			component(kindB, ir.Ref(kindA)),
			component(kindA),
		},
	}
}
