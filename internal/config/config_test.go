package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nsboot/internal/engine"
	"github.com/roach88/nsboot/internal/ir"
)

const fullConfig = `
topology = "topo"

[ledger]
mode = "rpc"
rpc_url = "https://testnet-rpc.monad.xyz"
chain_id = 10143
key_env = "MY_KEY"
artifacts_dir = "build/artifacts"
confirm_timeout = "90s"

[journal]
path = "runs.db"

[params]
tld = "mon"
prices = ["1", "2", "3", "4", "5"]
min_commitment_age = 60

[steps]
set-prices = true
set-commitment-ages = false

[resume]
start_at = 3
resolved = { registry = "0x00000000000000000000000000000000000000a1", "fallback-registry" = "0x00000000000000000000000000000000000000a2" }
`

// TestParse_Full tests every section of a run file.
func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "topo", cfg.Topology)
	assert.Equal(t, LedgerConfig{
		Mode:           ModeRPC,
		RPCURL:         "https://testnet-rpc.monad.xyz",
		ChainID:        10143,
		KeyEnv:         "MY_KEY",
		ArtifactsDir:   "build/artifacts",
		ConfirmTimeout: "90s",
	}, cfg.Ledger)
	assert.Equal(t, "runs.db", cfg.Journal.Path)
	assert.Equal(t, 90*time.Second, cfg.ConfirmTimeout())

	assert.Equal(t, "mon", cfg.Params["tld"])
	assert.Equal(t, []any{"1", "2", "3", "4", "5"}, cfg.Params["prices"])
	assert.Equal(t, int64(60), cfg.Params["min_commitment_age"])

	assert.Equal(t, map[string]bool{"set-prices": true, "set-commitment-ages": false}, cfg.Steps)

	r := cfg.ResumeRequest()
	require.NotNil(t, r)
	assert.Equal(t, 3, r.StartAt)
	assert.Equal(t, map[ir.ComponentKind]common.Address{
		ir.KindRegistry:         common.HexToAddress("0xa1"),
		ir.KindFallbackRegistry: common.HexToAddress("0xa2"),
	}, r.Resolved)
}

// TestParse_Defaults tests a minimal memory-mode file.
func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("[ledger]\nmode = \"memory\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Topology)
	assert.Equal(t, DefaultRPCURL, cfg.Ledger.RPCURL)
	assert.Equal(t, DefaultKeyEnv, cfg.Ledger.KeyEnv)
	assert.Equal(t, DefaultArtifactsDir, cfg.Ledger.ArtifactsDir)
	assert.Equal(t, 2*time.Minute, cfg.ConfirmTimeout())
	assert.Equal(t, DefaultJournalPath, cfg.Journal.Path)
	assert.Nil(t, cfg.ResumeRequest())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ModeRPC, cfg.Ledger.Mode)
	assert.Equal(t, DefaultJournalPath, cfg.Journal.Path)
	assert.Empty(t, cfg.Params)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{"rpc without chain id", "[ledger]\nmode = \"rpc\"\n", "chain_id is required"},
		{"unknown mode", "[ledger]\nmode = \"ipc\"\n", `ledger.mode must be "rpc" or "memory"`},
		{"bad timeout", "[ledger]\nmode = \"memory\"\nconfirm_timeout = \"soon\"\n", "confirm_timeout"},
		{"negative timeout", "[ledger]\nmode = \"memory\"\nconfirm_timeout = \"-1s\"\n", "must be positive"},
		{"unknown key", "[ledger]\nmode = \"memory\"\nrpc = \"x\"\n", "parse failed"},
		{"malformed", "[ledger\n", "parse failed"},
		{"resume unknown kind", "[ledger]\nmode = \"memory\"\n[resume]\nresolved = { oracle = \"0x01\" }\n", "unknown component kind"},
		{"resume bad address", "[ledger]\nmode = \"memory\"\n[resume]\nresolved = { registry = \"0x1\" }\n", "not a hex address"},
		{"resume negative", "[ledger]\nmode = \"memory\"\n[resume]\nstart_at = -2\n", "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nsboot.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ledger]\nmode = \"memory\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeMemory, cfg.Ledger.Mode)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config load failed")
}

func TestPrivateKey(t *testing.T) {
	cfg := Default()
	env := map[string]string{DefaultKeyEnv: "  0xabc  "}

	key, err := cfg.PrivateKey(func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, "0xabc", key)

	cfg.Ledger.KeyEnv = "UNSET"
	_, err = cfg.PrivateKey(func(k string) string { return env[k] })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNSET is not set")
}

func TestEthConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	ec := cfg.EthConfig("0xkey")
	assert.Equal(t, "https://testnet-rpc.monad.xyz", ec.RPCURL)
	assert.Equal(t, int64(10143), ec.ChainID)
	assert.Equal(t, "0xkey", ec.PrivateKey)
	assert.Equal(t, "build/artifacts", ec.ArtifactsDir)
}

// TestResumeSection tests that a computed resume point renders into a
// section that parses back to the same request.
func TestResumeSection(t *testing.T) {
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	rc := ResumeSection(engine.Resume{
		StartAt:  3,
		Resolved: map[ir.ComponentKind]common.Address{ir.KindRegistry: addr},
	})

	assert.Equal(t, 3, rc.StartAt)
	assert.Equal(t, map[string]string{"registry": addr.Hex()}, rc.Resolved)

	cfg := Default()
	cfg.Resume = rc
	require.NoError(t, Validate(Config{Ledger: LedgerConfig{Mode: ModeMemory, ConfirmTimeout: "1s"}, Resume: rc}))

	r := cfg.ResumeRequest()
	require.NotNil(t, r)
	assert.Equal(t, 3, r.StartAt)
	assert.Equal(t, addr, r.Resolved[ir.KindRegistry])
}
