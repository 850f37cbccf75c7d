// Package namehash derives namespace node identifiers.
//
// LabelHash is keccak256 of a single normalized label. NameHash folds the
// labels of a dotted name from the right:
//
//	node("")      = 0x00..00
//	node(l + "." + rest) = keccak256(node(rest) ++ LabelHash(l))
//
// Both are pure functions. Hasher adds memoization for callers that hash the
// same names repeatedly while building and executing a plan.
package namehash

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/text/unicode/norm"
)

// Root is the node identifier of the tree root.
var Root = common.Hash{}

// Normalize lowercases and NFC-normalizes a label or dotted name.
func Normalize(name string) string {
	return norm.NFC.String(strings.ToLower(name))
}

// LabelHash returns keccak256 of the normalized label.
func LabelHash(label string) common.Hash {
	return crypto.Keccak256Hash([]byte(Normalize(label)))
}

// NameHash returns the node identifier of a dotted name. The empty name is
// the root node.
func NameHash(name string) common.Hash {
	node := Root
	if name == "" {
		return node
	}
	labels := strings.Split(Normalize(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256Hash([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), label.Bytes())
	}
	return node
}

// Hasher memoizes NameHash and LabelHash results. The zero value is ready
// to use and safe for concurrent use.
type Hasher struct {
	mu     sync.Mutex
	nodes  map[string]common.Hash
	labels map[string]common.Hash
}

// NewHasher creates an empty memoizing Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// Node returns NameHash(name), computing it at most once.
func (h *Hasher) Node(name string) common.Hash {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.nodes[name]; ok {
		return v
	}
	if h.nodes == nil {
		h.nodes = make(map[string]common.Hash)
	}
	v := NameHash(name)
	h.nodes[name] = v
	return v
}

// Label returns LabelHash(label), computing it at most once.
func (h *Hasher) Label(label string) common.Hash {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.labels[label]; ok {
		return v
	}
	if h.labels == nil {
		h.labels = make(map[string]common.Hash)
	}
	v := LabelHash(label)
	h.labels[label] = v
	return v
}

// Size returns the number of memoized entries.
func (h *Hasher) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes) + len(h.labels)
}
