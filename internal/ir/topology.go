package ir

// StepAction names the shape of a WiringStep.
type StepAction string

const (
	ActionSetSubnodeOwner    StepAction = "set-subnode-owner"
	ActionAddController      StepAction = "add-controller"
	ActionSetController      StepAction = "set-controller"
	ActionSetResolver        StepAction = "set-resolver"
	ActionSetAddr            StepAction = "set-addr"
	ActionSetDefaultResolver StepAction = "set-default-resolver"
	ActionSetBaseURI         StepAction = "set-base-uri"
	ActionSetPrices          StepAction = "set-prices"
	// ActionCall invokes an explicitly declared method signature.
	ActionCall StepAction = "call"
)

// ActionMethods maps each built-in action to the method signature it calls.
// ActionCall has no default; the step must declare Method.
var ActionMethods = map[StepAction]string{
	ActionSetSubnodeOwner:    "setSubnodeOwner(bytes32,bytes32,address)",
	ActionAddController:      "addController(address)",
	ActionSetController:      "setController(address,bool)",
	ActionSetResolver:        "setResolver(bytes32,address)",
	ActionSetAddr:            "setAddr(bytes32,address)",
	ActionSetDefaultResolver: "setDefaultResolver(address)",
	ActionSetBaseURI:         "setBaseUri(string)",
	ActionSetPrices:          "setPrices(uint256[])",
}

// WiringStep is a post-deployment transaction that establishes ownership,
// authorization, or a cross-reference between deployed components.
type WiringStep struct {
	ID     string         `json:"id"`
	Action StepAction     `json:"action"`
	Target ComponentKind  `json:"target"`
	Method string         `json:"method"` // resolved signature; defaults from ActionMethods
	Args   []ArgumentSpec `json:"args"`

	// Requires lists dependencies not visible in Target or Args.
	Requires []ComponentKind `json:"requires,omitempty"`

	// After anchors a policy step right after the named component's
	// deployment and setup. Empty means after all deployments.
	After ComponentKind `json:"after,omitempty"`

	// Optional steps may be disabled by run configuration.
	Optional bool `json:"optional"`
	Enabled  bool `json:"enabled"`
}

// Dependencies returns every component kind this step needs resolved before
// it runs: the target, argument references, and explicit requirements.
// Order is first appearance; duplicates are removed.
func (s WiringStep) Dependencies() []ComponentKind {
	var deps []ComponentKind
	seen := make(map[ComponentKind]bool)
	add := func(k ComponentKind) {
		if k != "" && !seen[k] {
			seen[k] = true
			deps = append(deps, k)
		}
	}
	add(s.Target)
	for _, a := range s.Args {
		for _, k := range a.References() {
			add(k)
		}
	}
	for _, k := range s.Requires {
		add(k)
	}
	return deps
}

// ComponentDescriptor is the static metadata of one deployable unit.
type ComponentDescriptor struct {
	Kind     ComponentKind  `json:"kind"`
	Artifact string         `json:"artifact"` // contract artifact name
	Args     []ArgumentSpec `json:"args"`
	Setup    []WiringStep   `json:"setup,omitempty"`
}

// References returns the component kinds named by constructor arguments.
// These are the deployment-order edges of the dependency graph.
func (d ComponentDescriptor) References() []ComponentKind {
	var refs []ComponentKind
	seen := make(map[ComponentKind]bool)
	for _, a := range d.Args {
		for _, k := range a.References() {
			if !seen[k] {
				seen[k] = true
				refs = append(refs, k)
			}
		}
	}
	return refs
}

// Topology is the complete declarative description of a provisioning run:
// components in declaration order plus the namespace tree wiring policy.
type Topology struct {
	Name       string                `json:"name"`
	Components []ComponentDescriptor `json:"components"`
	Policy     []WiringStep          `json:"policy"`
}

// Descriptor returns the descriptor for kind, if declared.
func (t *Topology) Descriptor(kind ComponentKind) (*ComponentDescriptor, bool) {
	for i := range t.Components {
		if t.Components[i].Kind == kind {
			return &t.Components[i], true
		}
	}
	return nil, false
}
