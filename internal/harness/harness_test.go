package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nsboot/internal/ir"
)

func intPtr(n int) *int { return &n }

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_DefaultCompletes(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "built-in topology",
		Expect:      Expectation{Status: "completed", Completed: intPtr(21)},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Runs, 1)
	run := result.Runs[0]
	assert.Equal(t, DefaultRunID, run.RunID)
	assert.Equal(t, ir.RunCompleted, run.Status)
	assert.Equal(t, -1, run.FailedIndex)
	assert.Len(t, result.Trace, 21)
	assert.Len(t, result.Resolved, 8)
	assert.NotEmpty(t, result.PlanHash)
}

func TestRun_Deterministic(t *testing.T) {
	scenario := &Scenario{
		Name:        "determinism",
		Description: "same scenario, same trace",
		Faults:      []Fault{{Step: "deploy:controller"}},
		Expect:      Expectation{Status: "failed"},
	}

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.PlanHash, second.PlanHash)
	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Resolved, second.Resolved)
	assert.Equal(t, first.Runs, second.Runs)
}

func TestRun_FaultOutcome(t *testing.T) {
	scenario := &Scenario{
		Name:        "reverted",
		Description: "reverted policy step",
		Faults:      []Fault{{Step: "policy:base-controller", Reason: FaultReverted, Message: "not owner"}},
		Expect:      Expectation{Status: "failed", FailedKey: "policy:base-controller", Reason: "reverted"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	final := result.Final()
	assert.Equal(t, ir.RunFailed, final.Status)
	assert.Contains(t, final.Error, "not owner")

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, "policy:base-controller", last.Key)
	assert.Equal(t, ir.StatusFailed, last.Status)
}

func TestRun_ResumeRecordsBothRuns(t *testing.T) {
	scenario := &Scenario{
		Name:        "resume",
		Description: "resume after a timeout",
		Faults:      []Fault{{Step: "deploy:resolver", Reason: FaultTimeout}},
		Resume:      true,
		Expect:      Expectation{Status: "completed", Completed: intPtr(21)},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Runs, 2)
	assert.Equal(t, ir.RunFailed, result.Runs[0].Status)
	assert.Equal(t, "timeout", result.Runs[0].Reason)
	assert.Equal(t, DefaultRunID+"-resume", result.Runs[1].RunID)
	assert.Equal(t, 16, result.Runs[1].StartIndex)
	assert.Len(t, result.Resolved, 8)
}

func TestRun_ExpectationMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "expects a failure that never happens",
		Expect:      Expectation{Status: "failed", FailedKey: "deploy:controller", Completed: intPtr(13)},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "to be failed, got completed")
	assert.Contains(t, result.Errors[1], "expected failure at deploy:controller")
	assert.Contains(t, result.Errors[2], "expected 13 completed steps, got 21")
}

func TestRun_FailingAssertionIsReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong owner",
		Description: "owner assertion that does not hold",
		Expect:      Expectation{Status: "completed"},
		Assertions: []Assertion{
			{Type: AssertOwner, Registry: "fallback-registry", Name: "mon", Is: "registrar"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "(base-registrar)")
}

func TestRun_UnknownFaultStep(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad fault",
		Description: "fault on a step the plan does not have",
		Faults:      []Fault{{Step: "deploy:oracle"}},
		Expect:      Expectation{Status: "failed"},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown step "deploy:oracle"`)
}

func TestRun_DisabledStepFaultIsUnknown(t *testing.T) {
	scenario := &Scenario{
		Name:        "disabled",
		Description: "set-prices is optional and off by default",
		Faults:      []Fault{{Step: "setup:price-oracle:set-prices"}},
		Expect:      Expectation{Status: "failed"},
	}

	_, err := Run(scenario)
	require.Error(t, err)
}
