package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nsboot/internal/compiler"
	"github.com/roach88/nsboot/internal/ir"
)

var defaultKeys = []string{
	"deploy:registry",
	"policy:registry-reverse",
	"policy:registry-resolver",
	"deploy:fallback-registry",
	"policy:fallback-reverse",
	"policy:fallback-resolver",
	"deploy:registrar",
	"policy:tld-registrar",
	"deploy:reverse-registrar",
	"policy:reverse-addr",
	"deploy:base-registrar",
	"policy:tld-base-registrar",
	"deploy:price-oracle",
	"deploy:controller",
	"policy:base-controller",
	"policy:reverse-controller",
	"deploy:resolver",
	"policy:base-uri",
	"policy:default-resolver",
	"policy:resolver-addr",
	"policy:resolver-record",
}

func planKeys(p *ir.Plan) []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Key
	}
	return out
}

// TestDefault tests that the built-in topology compiles and validates.
func TestDefault(t *testing.T) {
	topo, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "monad-ns", topo.Name)
	assert.Len(t, topo.Components, len(ir.AllKinds))
	assert.Empty(t, compiler.Validate(topo))

	d, ok := topo.Descriptor(ir.KindController)
	require.True(t, ok)
	assert.Equal(t, "MONRegistrarControllerV2", d.Artifact)
	assert.Equal(t, []ir.ComponentKind{
		ir.KindBaseRegistrar, ir.KindPriceOracle, ir.KindReverseRegistrar, ir.KindFallbackRegistry,
	}, d.References())
}

// TestDefault_Plan tests the deployment order and step layout of the built-in topology.
func TestDefault_Plan(t *testing.T) {
	topo, err := Default()
	require.NoError(t, err)

	plan, err := compiler.BuildPlan(topo, compiler.PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, ir.AllKinds, plan.Order)
	assert.Equal(t, defaultKeys, planKeys(plan))
}

// TestDefault_OptionalSteps tests enabling the price and commitment-age steps.
func TestDefault_OptionalSteps(t *testing.T) {
	topo, err := Default()
	require.NoError(t, err)

	plan, err := compiler.BuildPlan(topo, compiler.PlanOptions{Steps: map[string]bool{
		"set-prices":          true,
		"set-commitment-ages": true,
	}})
	require.NoError(t, err)
	assert.Len(t, plan.Steps, len(defaultKeys)+2)

	prices, ok := plan.StepByKey("setup:price-oracle:set-prices")
	require.True(t, ok)
	assert.Equal(t, ir.Uints("15823180000000", "6310240000000", "3139260000000", "1553770000000", "1585489600000000000"), prices.Wiring.Args[0])

	ages, ok := plan.StepByKey("setup:controller:set-commitment-ages")
	require.True(t, ok)
	assert.Equal(t, []ir.ArgumentSpec{ir.Lit(ir.ArgUint, "5"), ir.Lit(ir.ArgUint, "86400")}, ages.Wiring.Args)
	assert.Equal(t, plan.DeployIndex(ir.KindController)+1, ages.Index)
}

// TestLoad_Params tests that params flow into arguments.
func TestLoad_Params(t *testing.T) {
	topo, err := Load("", map[string]any{
		"tld":                "test",
		"base_uri":           "https://meta.example/",
		"prices":             []string{"1", "2"},
		"max_commitment_age": 3600,
	})
	require.NoError(t, err)

	d, _ := topo.Descriptor(ir.KindRegistrar)
	assert.Equal(t, ir.Node("test"), d.Args[1])

	var baseURI, tld ir.WiringStep
	for _, s := range topo.Policy {
		switch s.ID {
		case "base-uri":
			baseURI = s
		case "tld-base-registrar":
			tld = s
		}
	}
	assert.Equal(t, ir.Template("https://meta.example/${base-registrar}/"), baseURI.Args[0])
	assert.Equal(t, ir.Label("test"), tld.Args[1])

	oracle, _ := topo.Descriptor(ir.KindPriceOracle)
	assert.Equal(t, ir.Uints("1", "2"), oracle.Setup[0].Args[0])
	ctrl, _ := topo.Descriptor(ir.KindController)
	assert.Equal(t, ir.Lit(ir.ArgUint, "3600"), ctrl.Setup[0].Args[1])
}

// TestLoad_Directory tests loading a topology from CUE files on disk.
func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	src := `package custom

name: "custom"
params: tld: string | *"x"
components: [
	{kind: "registry", artifact: "ENSRegistry"},
	{kind: "registrar", artifact: "FIFSRegistrar", args: [{ref: "registry"}, {node: params.tld}]},
]
policy: [{
	id:     "tld"
	action: "set-subnode-owner"
	target: "registry"
	args: [{node: ""}, {label: params.tld}, {ref: "registrar"}]
}]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "topology.cue"), []byte(src), 0o644))

	topo, err := Load(dir, map[string]any{"tld": "y"})
	require.NoError(t, err)
	assert.Equal(t, "custom", topo.Name)
	require.Len(t, topo.Components, 2)
	assert.Equal(t, ir.Node("y"), topo.Components[1].Args[1])

	plan, err := compiler.BuildPlan(topo, compiler.PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy:registry", "deploy:registrar", "policy:tld"}, planKeys(plan))
}

// TestLoad_ParamConflict tests that params cannot override concrete values.
func TestLoad_ParamConflict(t *testing.T) {
	dir := t.TempDir()
	src := `package custom

params: tld: "fixed"
components: [{kind: "registrar", artifact: "FIFSRegistrar", args: [{node: params.tld}]}]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "topology.cue"), []byte(src), 0o644))

	_, err := Load(dir, map[string]any{"tld": "other"})
	require.Error(t, err)
}

// TestLoad_Errors tests directory problems.
func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"), nil)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)

	_, err = Load(t.TempDir(), nil)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNoFiles, le.Code)
}
