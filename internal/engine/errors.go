package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/ledger"
)

// RunError reports a run that halted partway: the partial completion state
// an operator needs to resume by hand.
//
// Err is the cause: an *ir.ConfigurationError when the step was rejected
// before submission (unresolved dependency, bad argument), or a
// *ledger.TransactionFailure when the ledger rejected, reverted, or did not
// confirm it in time.
type RunError struct {
	// RunID identifies the halted run in the journal.
	RunID string

	// Index and Key identify the failed plan step.
	Index int
	Key   string
	Kind  ir.ComponentKind

	// Resolved is the resolution table at the moment of failure, in
	// deployment order. It holds exactly the components whose deployment
	// was confirmed.
	Resolved []ir.DeployedComponent

	// Completed counts plan steps confirmed before the failure, including
	// steps skipped by a resume. It exceeds Index only when the journal
	// could not record a step the ledger had already confirmed.
	Completed int
	Total     int

	Err error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("run %s halted at step %d/%d (%s) after %d completed: %v",
		e.RunID, e.Index, e.Total, e.Key, e.Completed, e.Err)
}

// Unwrap returns the cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// Diagnostic renders the failure and every resolved address, one per line.
func (e *RunError) Diagnostic() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed step: %d %s\n", e.Index, e.Key)
	fmt.Fprintf(&b, "cause: %v\n", e.Err)
	fmt.Fprintf(&b, "completed: %d/%d\n", e.Completed, e.Total)
	b.WriteString("resolved:\n")
	if len(e.Resolved) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, dc := range e.Resolved {
		fmt.Fprintf(&b, "  %-18s %s\n", dc.Kind, dc.Address)
	}
	return b.String()
}

// AsRunError extracts a RunError from err.
func AsRunError(err error) (*RunError, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsTimeout returns true if err was caused by a confirmation timeout.
func IsTimeout(err error) bool {
	var tf *ledger.TransactionFailure
	if errors.As(err, &tf) {
		return tf.Reason == ledger.ReasonTimeout
	}
	return false
}
