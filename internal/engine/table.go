package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/nsboot/internal/ir"
)

// ResolutionTable maps each deployed ComponentKind to its address.
//
// Keys are written once and read many times. The orchestrator is the only
// writer and runs on one goroutine, so the table has no lock.
type ResolutionTable struct {
	entries map[ir.ComponentKind]common.Address
	order   []ir.DeployedComponent
}

// NewResolutionTable creates an empty table.
func NewResolutionTable() *ResolutionTable {
	return &ResolutionTable{entries: make(map[ir.ComponentKind]common.Address)}
}

// Record stores the address of a deployed component. Recording a kind twice
// or a zero address is an error.
func (t *ResolutionTable) Record(kind ir.ComponentKind, addr common.Address, seq int64) error {
	if _, exists := t.entries[kind]; exists {
		return fmt.Errorf("component %s already resolved to %s", kind, t.entries[kind].Hex())
	}
	if addr == (common.Address{}) {
		return fmt.Errorf("component %s resolved to the zero address", kind)
	}
	t.entries[kind] = addr
	t.order = append(t.order, ir.DeployedComponent{Kind: kind, Address: addr.Hex(), Seq: seq})
	return nil
}

// Lookup returns the address of kind.
func (t *ResolutionTable) Lookup(kind ir.ComponentKind) (common.Address, bool) {
	addr, ok := t.entries[kind]
	return addr, ok
}

// Has reports whether kind is resolved.
func (t *ResolutionTable) Has(kind ir.ComponentKind) bool {
	_, ok := t.entries[kind]
	return ok
}

// Len returns the number of resolved components.
func (t *ResolutionTable) Len() int {
	return len(t.entries)
}

// Snapshot returns a copy of the entries in the order they were recorded.
func (t *ResolutionTable) Snapshot() []ir.DeployedComponent {
	out := make([]ir.DeployedComponent, len(t.order))
	copy(out, t.order)
	return out
}
