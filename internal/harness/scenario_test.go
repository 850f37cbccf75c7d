package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: halt
description: "Controller deployment is rejected"
faults:
  - step: deploy:controller
    reason: rejected
expect:
  status: failed
  failed_key: deploy:controller
  completed: 13
assertions:
  - type: trace_count
    status: failed
    count: 1
  - type: final_state
    table: runs
    expect:
      status: failed
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "halt", scenario.Name)
	assert.Empty(t, scenario.Topology)
	require.Len(t, scenario.Faults, 1)
	assert.Equal(t, FaultRejected, scenario.Faults[0].Reason)
	assert.Equal(t, "failed", scenario.Expect.Status)
	require.NotNil(t, scenario.Expect.Completed)
	assert.Equal(t, 13, *scenario.Expect.Completed)
	require.Len(t, scenario.Assertions, 2)
	assert.Equal(t, "failed", scenario.Assertions[1].Expect["status"])
}

func TestLoadScenario_TopologyRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "topo"), 0o755))
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: custom
description: "custom topology"
topology: topo
expect:
  status: completed
`), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "topo"), scenario.Topology)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "misspelled key"
expect:
  status: completed
assertion:
  - type: resolved
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: x\nexpect: {status: completed}\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\nexpect: {status: completed}\n",
			wantErr: "description is required",
		},
		{
			name:    "missing topology dir",
			content: "name: x\ndescription: x\ntopology: nope\nexpect: {status: completed}\n",
			wantErr: "topology directory not found",
		},
		{
			name:    "missing expect status",
			content: "name: x\ndescription: x\n",
			wantErr: "expect.status is required",
		},
		{
			name:    "bad expect status",
			content: "name: x\ndescription: x\nexpect: {status: halted}\n",
			wantErr: "expect.status must be",
		},
		{
			name:    "failed key on completed run",
			content: "name: x\ndescription: x\nexpect: {status: completed, failed_key: deploy:registry}\n",
			wantErr: "apply only to failed runs",
		},
		{
			name:    "fault without step",
			content: "name: x\ndescription: x\nfaults: [{reason: rejected}]\nexpect: {status: failed}\n",
			wantErr: "faults[0]: step is required",
		},
		{
			name:    "duplicate fault",
			content: "name: x\ndescription: x\nfaults: [{step: deploy:registry}, {step: deploy:registry}]\nexpect: {status: failed}\n",
			wantErr: "already has a fault",
		},
		{
			name:    "unknown fault reason",
			content: "name: x\ndescription: x\nfaults: [{step: deploy:registry, reason: gas}]\nexpect: {status: failed}\n",
			wantErr: `unknown reason "gas"`,
		},
		{
			name:    "resume without faults",
			content: "name: x\ndescription: x\nresume: true\nexpect: {status: completed}\n",
			wantErr: "resume needs at least one fault",
		},
		{
			name:    "assertion without type",
			content: "name: x\ndescription: x\nexpect: {status: completed}\nassertions: [{key: deploy:registry}]\n",
			wantErr: "assertions[0]: type is required",
		},
		{
			name:    "unknown assertion type",
			content: "name: x\ndescription: x\nexpect: {status: completed}\nassertions: [{type: balance}]\n",
			wantErr: `unknown assertion type "balance"`,
		},
		{
			name:    "unknown kind",
			content: "name: x\ndescription: x\nexpect: {status: completed}\nassertions: [{type: resolved, kinds: [registry, oracle]}]\n",
			wantErr: "assertions[0]",
		},
		{
			name:    "trace_contains without key",
			content: "name: x\ndescription: x\nexpect: {status: completed}\nassertions: [{type: trace_contains}]\n",
			wantErr: "key is required for trace_contains",
		},
		{
			name:    "trace_order with one key",
			content: "name: x\ndescription: x\nexpect: {status: completed}\nassertions: [{type: trace_order, keys: [deploy:registry]}]\n",
			wantErr: "at least two keys",
		},
		{
			name:    "final_state without table",
			content: "name: x\ndescription: x\nexpect: {status: completed}\nassertions: [{type: final_state, expect: {status: completed}}]\n",
			wantErr: "table is required for final_state",
		},
		{
			name:    "final_state without expect",
			content: "name: x\ndescription: x\nexpect: {status: completed}\nassertions: [{type: final_state, table: runs}]\n",
			wantErr: "expect is required for final_state",
		},
		{
			name:    "owner without is",
			content: "name: x\ndescription: x\nexpect: {status: completed}\nassertions: [{type: owner, registry: registry, name: mon}]\n",
			wantErr: "is is required for owner",
		},
		{
			name:    "owner with bad registry",
			content: "name: x\ndescription: x\nexpect: {status: completed}\nassertions: [{type: owner, registry: ledger, name: mon, is: none}]\n",
			wantErr: "registry:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_Testdata(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.Len(t, scenarios, 5)

	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	assert.Equal(t, []string{
		"controller_rejected",
		"default_completes",
		"nad_with_prices",
		"resolver_timeout",
		"resume_after_revert",
	}, names)
}
