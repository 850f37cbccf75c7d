package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/nsboot/internal/ir"
)

// Resume describes a manual resumption of a halted run.
//
// StartAt is the plan index of the first step to execute. Resolved must hold
// the address of every component deployed before StartAt, and nothing else.
type Resume struct {
	StartAt  int
	Resolved map[ir.ComponentKind]common.Address
}

// ValidateResume checks r against plan.
func ValidateResume(plan *ir.Plan, r Resume) error {
	if r.StartAt < 0 || r.StartAt > len(plan.Steps) {
		return invalidResume("", fmt.Sprintf("start index %d outside plan of %d steps", r.StartAt, len(plan.Steps)))
	}

	want := make(map[ir.ComponentKind]bool)
	for _, s := range plan.Steps[:r.StartAt] {
		if s.Type != ir.StepDeploy {
			continue
		}
		want[s.Kind] = true
		addr, ok := r.Resolved[s.Kind]
		if !ok {
			return invalidResume(s.Kind, fmt.Sprintf("no address for %s, deployed at step %d", s.Kind, s.Index))
		}
		if addr == (common.Address{}) {
			return invalidResume(s.Kind, fmt.Sprintf("zero address for %s", s.Kind))
		}
	}
	for k := range r.Resolved {
		if !want[k] {
			return invalidResume(k, fmt.Sprintf("%s is not deployed before step %d", k, r.StartAt))
		}
	}
	return nil
}

func invalidResume(kind ir.ComponentKind, msg string) error {
	return &ir.ConfigurationError{Code: ir.ErrCodeInvalidResume, Message: msg, Kind: kind}
}
