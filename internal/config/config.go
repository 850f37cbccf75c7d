// Package config loads the TOML run file of a provisioning run.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"

	"github.com/roach88/nsboot/internal/engine"
	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/ledger/ethledger"
)

// Ledger modes.
const (
	ModeRPC    = "rpc"
	ModeMemory = "memory"
)

const (
	DefaultRPCURL         = "http://127.0.0.1:8545"
	DefaultKeyEnv         = "NSBOOT_PRIVATE_KEY"
	DefaultArtifactsDir   = "artifacts"
	DefaultConfirmTimeout = "2m"
	DefaultJournalPath    = "nsboot.db"
)

// Config is a run file.
type Config struct {
	// Topology is a directory of CUE files; empty selects the embedded default.
	Topology string        `toml:"topology"`
	Ledger   LedgerConfig  `toml:"ledger"`
	Journal  JournalConfig `toml:"journal"`

	// Params fill the topology's params struct.
	Params map[string]any `toml:"params"`

	// Steps enables or disables optional steps by id.
	Steps map[string]bool `toml:"steps"`

	Resume *ResumeConfig `toml:"resume"`
}

type LedgerConfig struct {
	Mode           string `toml:"mode"`
	RPCURL         string `toml:"rpc_url"`
	ChainID        int64  `toml:"chain_id"`
	KeyEnv         string `toml:"key_env"`
	ArtifactsDir   string `toml:"artifacts_dir"`
	ConfirmTimeout string `toml:"confirm_timeout"`
}

type JournalConfig struct {
	Path string `toml:"path"`
}

// ResumeConfig is an operator-supplied manual resumption.
type ResumeConfig struct {
	StartAt  int               `toml:"start_at" json:"start_at"`
	Resolved map[string]string `toml:"resolved" json:"resolved"`
}

// Default returns the configuration used when no run file is given.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// Load reads, defaults and validates the run file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a run file. Unknown keys are errors.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse failed: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Ledger.Mode == "" {
		cfg.Ledger.Mode = ModeRPC
	}
	if cfg.Ledger.RPCURL == "" {
		cfg.Ledger.RPCURL = DefaultRPCURL
	}
	if cfg.Ledger.KeyEnv == "" {
		cfg.Ledger.KeyEnv = DefaultKeyEnv
	}
	if cfg.Ledger.ArtifactsDir == "" {
		cfg.Ledger.ArtifactsDir = DefaultArtifactsDir
	}
	if cfg.Ledger.ConfirmTimeout == "" {
		cfg.Ledger.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
}

// Validate checks a defaulted configuration.
func Validate(cfg Config) error {
	switch cfg.Ledger.Mode {
	case ModeMemory:
	case ModeRPC:
		if strings.TrimSpace(cfg.Ledger.RPCURL) == "" {
			return fmt.Errorf("ledger.rpc_url is required in rpc mode")
		}
		if cfg.Ledger.ChainID <= 0 {
			return fmt.Errorf("ledger.chain_id is required in rpc mode")
		}
	default:
		return fmt.Errorf("ledger.mode must be %q or %q, got %q", ModeRPC, ModeMemory, cfg.Ledger.Mode)
	}

	d, err := time.ParseDuration(cfg.Ledger.ConfirmTimeout)
	if err != nil {
		return fmt.Errorf("ledger.confirm_timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("ledger.confirm_timeout must be positive")
	}

	for id := range cfg.Steps {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("steps: empty step id")
		}
	}

	if cfg.Resume != nil {
		if cfg.Resume.StartAt < 0 {
			return fmt.Errorf("resume.start_at must not be negative")
		}
		for kind, addr := range cfg.Resume.Resolved {
			if _, err := ir.ParseKind(kind); err != nil {
				return fmt.Errorf("resume.resolved: %w", err)
			}
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("resume.resolved.%s: %q is not a hex address", kind, addr)
			}
		}
	}
	return nil
}

// ConfirmTimeout returns the parsed confirmation timeout.
func (c Config) ConfirmTimeout() time.Duration {
	d, err := time.ParseDuration(c.Ledger.ConfirmTimeout)
	if err != nil {
		return engine.DefaultStepTimeout
	}
	return d
}

// PrivateKey reads the signing key from the environment variable named by
// ledger.key_env.
func (c Config) PrivateKey(getenv func(string) string) (string, error) {
	key := strings.TrimSpace(getenv(c.Ledger.KeyEnv))
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.Ledger.KeyEnv)
	}
	return key, nil
}

// EthConfig returns the JSON-RPC client configuration for key.
func (c Config) EthConfig(key string) ethledger.Config {
	return ethledger.Config{
		RPCURL:       c.Ledger.RPCURL,
		ChainID:      c.Ledger.ChainID,
		PrivateKey:   key,
		ArtifactsDir: c.Ledger.ArtifactsDir,
	}
}

// ResumeRequest converts the resume section, or returns nil if absent.
func (c Config) ResumeRequest() *engine.Resume {
	if c.Resume == nil {
		return nil
	}
	r := &engine.Resume{
		StartAt:  c.Resume.StartAt,
		Resolved: make(map[ir.ComponentKind]common.Address, len(c.Resume.Resolved)),
	}
	for kind, addr := range c.Resume.Resolved {
		r.Resolved[ir.ComponentKind(kind)] = common.HexToAddress(addr)
	}
	return r
}

// ResumeSection renders r as a run file resume section.
func ResumeSection(r engine.Resume) *ResumeConfig {
	rc := &ResumeConfig{StartAt: r.StartAt, Resolved: make(map[string]string, len(r.Resolved))}
	for kind, addr := range r.Resolved {
		rc.Resolved[string(kind)] = addr.Hex()
	}
	return rc
}
