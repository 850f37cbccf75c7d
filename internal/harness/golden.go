package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/nsboot/internal/compiler"
	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/topology"
)

// HashPlaceholder stands in for the plan hash in golden snapshots. The hash
// has its own stability tests; the snapshot tracks the rendered steps.
const HashPlaceholder = "<plan-hash>"

// AssertPlanGolden renders plan and compares it against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertPlanGolden(t *testing.T, name string, plan *ir.Plan) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(compiler.FormatPlan(plan, HashPlaceholder)))
}

// RunWithGolden builds the plan a scenario would execute and compares it
// against the golden file named after the scenario.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	topo, err := topology.Load(scenario.Topology, scenario.Params)
	if err != nil {
		return err
	}
	plan, err := compiler.BuildPlan(topo, compiler.PlanOptions{Steps: scenario.Steps})
	if err != nil {
		return err
	}

	AssertPlanGolden(t, scenario.Name, plan)
	return nil
}
