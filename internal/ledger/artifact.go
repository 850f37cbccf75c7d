package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Artifact is a compiled contract: its ABI and creation bytecode.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

// hardhatArtifact is the on-disk JSON layout written by Hardhat and Foundry
// (the latter nests bytecode under an object).
type hardhatArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     json.RawMessage `json:"bytecode"`
}

// ParseArtifact decodes an artifact JSON document.
func ParseArtifact(name string, data []byte) (*Artifact, error) {
	var raw hardhatArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", name, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(raw.ABI)))
	if err != nil {
		return nil, fmt.Errorf("artifact %s: abi: %w", name, err)
	}
	code, err := decodeBytecode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", name, err)
	}
	return &Artifact{Name: name, ABI: parsed, Bytecode: code}, nil
}

func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		var nested struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, fmt.Errorf("bytecode: %w", err)
		}
		hex = nested.Object
	}
	code := common.FromHex(hex)
	if len(code) == 0 {
		return nil, errors.New("bytecode is empty (abstract contract or interface?)")
	}
	return code, nil
}

// ArtifactStore loads artifacts by contract name from a directory tree,
// matching "<Name>.json" anywhere below the root. Debug files
// ("*.dbg.json") are ignored. Loaded artifacts are cached.
type ArtifactStore struct {
	root  string
	mu    sync.Mutex
	cache map[string]*Artifact
}

// NewArtifactStore creates a store rooted at dir.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{root: dir, cache: make(map[string]*Artifact)}
}

// Load returns the artifact for the named contract.
func (s *ArtifactStore) Load(name string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.cache[name]; ok {
		return a, nil
	}

	want := name + ".json"
	var found string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == want {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan artifacts %s: %w", s.root, err)
	}
	if found == "" {
		return nil, fmt.Errorf("artifact %s not found under %s", name, s.root)
	}

	data, err := os.ReadFile(found)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", found, err)
	}
	a, err := ParseArtifact(name, data)
	if err != nil {
		return nil, err
	}
	s.cache[name] = a
	return a, nil
}
