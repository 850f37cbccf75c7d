package harness

import "github.com/roach88/nsboot/internal/ir"

// RunOutcome summarizes one orchestrator run within a scenario.
type RunOutcome struct {
	RunID       string       `json:"run_id"`
	Status      ir.RunStatus `json:"status"`
	StartIndex  int          `json:"start_index"`
	Completed   int          `json:"completed"`
	Total       int          `json:"total"`
	FailedIndex int          `json:"failed_index"`
	FailedKey   string       `json:"failed_key,omitempty"`
	// Reason is the failure reason of a TransactionFailure, or the code of
	// a ConfigurationError.
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if the expectation and every assertion held.
	Pass bool `json:"pass"`

	PlanHash string `json:"plan_hash"`

	// Runs holds the first run and, for resumed scenarios, the resumption.
	Runs []RunOutcome `json:"runs"`

	// Trace holds every step record of every run, in emission order.
	Trace []ir.StepRecord `json:"trace"`

	// Resolved is the resolution table at the end of the last run.
	Resolved []ir.DeployedComponent `json:"resolved"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Runs:     []RunOutcome{},
		Trace:    []ir.StepRecord{},
		Resolved: []ir.DeployedComponent{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Final returns the outcome of the last run.
func (r *Result) Final() RunOutcome {
	if len(r.Runs) == 0 {
		return RunOutcome{}
	}
	return r.Runs[len(r.Runs)-1]
}
