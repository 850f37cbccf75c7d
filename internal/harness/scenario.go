package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nsboot/internal/ir"
)

// Scenario defines one provisioning scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Topology is a CUE topology directory, relative to the scenario file.
	// Empty means the built-in topology.
	Topology string `yaml:"topology,omitempty"`

	// Params fill the topology's params, as in a run file.
	Params map[string]any `yaml:"params,omitempty"`

	// Steps enables or disables optional steps by ID.
	Steps map[string]bool `yaml:"steps,omitempty"`

	// RunID is the ID of the first run. Defaults to DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	// Faults fail the ledger transaction of the named plan steps.
	Faults []Fault `yaml:"faults,omitempty"`

	// Resume continues a failed first run from its journaled resume point,
	// with faults cleared.
	Resume bool `yaml:"resume,omitempty"`

	// Expect describes the outcome of the last run.
	Expect Expectation `yaml:"expect"`

	// Assertions validate the final trace, journal and ledger state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// DefaultRunID is the first run's ID when a scenario names none.
const DefaultRunID = "scenario-run"

// Fault fails one plan step's transaction.
type Fault struct {
	// Step is the plan step key, e.g. "deploy:controller".
	Step string `yaml:"step"`

	// Reason is rejected (default), reverted or timeout.
	Reason string `yaml:"reason,omitempty"`

	Message string `yaml:"message,omitempty"`
}

// Expectation describes how a run ends.
type Expectation struct {
	// Status is completed or failed.
	Status string `yaml:"status"`

	FailedKey string `yaml:"failed_key,omitempty"`

	// Reason is a failure reason (rejected, reverted, timeout) or a
	// configuration error code.
	Reason string `yaml:"reason,omitempty"`

	// Completed, when set, is the number of confirmed plan steps.
	Completed *int `yaml:"completed,omitempty"`
}

// Assertion validates trace, journal or ledger state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kinds is the expected resolution table (resolved).
	Kinds []string `yaml:"kinds,omitempty"`

	// Key is a plan step key (trace_contains).
	Key string `yaml:"key,omitempty"`

	// Keys are plan step keys in expected order (trace_order).
	Keys []string `yaml:"keys,omitempty"`

	// Status filters records by outcome (trace_contains, trace_count).
	Status string `yaml:"status,omitempty"`

	// StepType filters records by deploy, setup or policy (trace_count).
	StepType string `yaml:"step_type,omitempty"`

	// Count is the expected number of matching records (trace_count).
	Count int `yaml:"count,omitempty"`

	// Args are the expected rendered arguments (trace_contains).
	Args []string `yaml:"args,omitempty"`

	// Table, Where and Expect query the journal (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Registry, Name and Is check ledger state (owner, resolver). Is is a
	// component kind, "operator", or "none".
	Registry string `yaml:"registry,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Is       string `yaml:"is,omitempty"`
}

// Assertion type constants.
const (
	AssertResolved      = "resolved"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertOwner         = "owner"
	AssertResolver      = "resolver"
)

// Fault reasons.
const (
	FaultRejected = "rejected"
	FaultReverted = "reverted"
	FaultTimeout  = "timeout"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Topology != "" && !filepath.IsAbs(scenario.Topology) {
		scenario.Topology = filepath.Join(filepath.Dir(path), scenario.Topology)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Topology != "" {
		if _, err := os.Stat(s.Topology); os.IsNotExist(err) {
			return fmt.Errorf("topology directory not found: %s", s.Topology)
		}
	}

	seen := make(map[string]bool)
	for i, f := range s.Faults {
		if f.Step == "" {
			return fmt.Errorf("faults[%d]: step is required", i)
		}
		if seen[f.Step] {
			return fmt.Errorf("faults[%d]: step %q already has a fault", i, f.Step)
		}
		seen[f.Step] = true
		switch f.Reason {
		case "", FaultRejected, FaultReverted, FaultTimeout:
		default:
			return fmt.Errorf("faults[%d]: unknown reason %q", i, f.Reason)
		}
	}

	if s.Resume && len(s.Faults) == 0 {
		return fmt.Errorf("resume needs at least one fault to resume from")
	}

	switch ir.RunStatus(s.Expect.Status) {
	case ir.RunCompleted:
		if s.Expect.FailedKey != "" || s.Expect.Reason != "" {
			return fmt.Errorf("expect: failed_key and reason apply only to failed runs")
		}
	case ir.RunFailed:
	case "":
		return fmt.Errorf("expect.status is required")
	default:
		return fmt.Errorf("expect.status must be %q or %q, got %q", ir.RunCompleted, ir.RunFailed, s.Expect.Status)
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertResolved:
		for _, k := range a.Kinds {
			if _, err := ir.ParseKind(k); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertTraceContains:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Keys) < 2 {
			return fmt.Errorf("assertions[%d]: at least two keys are required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertOwner, AssertResolver:
		if _, err := ir.ParseKind(a.Registry); err != nil {
			return fmt.Errorf("assertions[%d]: registry: %w", index, err)
		}
		if a.Is == "" {
			return fmt.Errorf("assertions[%d]: is is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
