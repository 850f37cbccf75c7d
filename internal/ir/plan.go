package ir

import "fmt"

// StepType classifies a plan step.
type StepType string

const (
	StepDeploy StepType = "deploy"
	StepSetup  StepType = "setup"
	StepPolicy StepType = "policy"
)

// PlanStep is one entry of the linear execution plan.
// Deploy steps carry Descriptor; setup and policy steps carry Wiring.
type PlanStep struct {
	Index      int                  `json:"index"`
	Key        string               `json:"key"`
	Type       StepType             `json:"type"`
	Kind       ComponentKind        `json:"kind"` // deployed kind, or the wiring target
	Descriptor *ComponentDescriptor `json:"descriptor,omitempty"`
	Wiring     *WiringStep          `json:"wiring,omitempty"`
}

// Requires returns the component kinds that must be resolved before the
// step runs. A deploy step requires its constructor references.
func (s PlanStep) Requires() []ComponentKind {
	if s.Type == StepDeploy {
		return s.Descriptor.References()
	}
	return s.Wiring.Dependencies()
}

// Args returns the declared arguments of the step.
func (s PlanStep) Args() []ArgumentSpec {
	if s.Type == StepDeploy {
		return s.Descriptor.Args
	}
	return s.Wiring.Args
}

// Plan is the ordered, validated execution plan for a topology.
type Plan struct {
	Topology string          `json:"topology"`
	Order    []ComponentKind `json:"order"` // deployment order
	Steps    []PlanStep      `json:"steps"`
}

// DeployKey returns the plan key of a deployment step.
func DeployKey(k ComponentKind) string { return "deploy:" + string(k) }

// SetupKey returns the plan key of a component's setup step.
func SetupKey(k ComponentKind, id string) string { return fmt.Sprintf("setup:%s:%s", k, id) }

// PolicyKey returns the plan key of a policy step.
func PolicyKey(id string) string { return "policy:" + id }

// StepByKey finds a plan step by key.
func (p *Plan) StepByKey(key string) (*PlanStep, bool) {
	for i := range p.Steps {
		if p.Steps[i].Key == key {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// DeployIndex returns the plan index of kind's deployment, or -1.
func (p *Plan) DeployIndex(kind ComponentKind) int {
	for _, s := range p.Steps {
		if s.Type == StepDeploy && s.Kind == kind {
			return s.Index
		}
	}
	return -1
}
