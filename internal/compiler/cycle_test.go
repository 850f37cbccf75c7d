package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nsboot/internal/ir"
)

// TestFindCycles_DAG tests that an acyclic topology has no cycles.
func TestFindCycles_DAG(t *testing.T) {
	assert.Empty(t, FindCycles(abcTopology()))
	assert.NoError(t, CheckCycles(abcTopology()))
}

// TestFindCycles_SelfLoop tests a component referencing itself.
func TestFindCycles_SelfLoop(t *testing.T) {
	topo := &ir.Topology{Components: []ir.ComponentDescriptor{
		component(kindA, ir.Ref(kindA)),
	}}
	cycles := FindCycles(topo)
	require.Len(t, cycles, 1)
	assert.Equal(t, []ir.ComponentKind{kindA, kindA}, cycles[0])
}

// TestFindCycles_ThreeNode tests the path of a three-component cycle.
func TestFindCycles_ThreeNode(t *testing.T) {
	topo := &ir.Topology{Components: []ir.ComponentDescriptor{
		component(kindA, ir.Ref(kindC)),
		component(kindB, ir.Ref(kindA)),
		component(kindC, ir.Ref(kindB)),
	}}
	cycles := FindCycles(topo)
	require.Len(t, cycles, 1)
	assert.Equal(t, []ir.ComponentKind{kindA, kindC, kindB, kindA}, cycles[0])
}

// TestFindCycles_IgnoresWiringReferences tests that setup and policy
// references are not deployment edges.
func TestFindCycles_IgnoresWiringReferences(t *testing.T) {
	a := component(kindA)
	a.Setup = []ir.WiringStep{wiring("ctl", ir.ActionAddController, kindA, ir.Ref(kindB))}
	topo := &ir.Topology{
		Components: []ir.ComponentDescriptor{a, component(kindB, ir.Ref(kindA))},
		Policy:     []ir.WiringStep{wiring("p", ir.ActionAddController, kindB, ir.Ref(kindA))},
	}
	assert.Empty(t, FindCycles(topo))
}

// TestCheckCycles tests the ConfigurationError for a cycle.
func TestCheckCycles(t *testing.T) {
	topo := &ir.Topology{Components: []ir.ComponentDescriptor{
		component(kindA, ir.Ref(kindB)),
		component(kindB, ir.Ref(kindA)),
		component(kindC),
	}}
	err := CheckCycles(topo)
	var ce *ir.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ir.ErrCodeCycle, ce.Code)
	assert.Equal(t, []ir.ComponentKind{kindA, kindB, kindA}, ce.Path)
	assert.Contains(t, ce.Message, "registry → fallback-registry → registry")
}
