package engine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nsboot/internal/ir"
)

// TestResolutionTable_WriteOnce tests that a kind is recorded exactly once.
func TestResolutionTable_WriteOnce(t *testing.T) {
	table := NewResolutionTable()
	first := common.HexToAddress("0x01")

	require.NoError(t, table.Record(kindA, first, 1))
	err := table.Record(kindA, common.HexToAddress("0x02"), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already resolved")

	addr, ok := table.Lookup(kindA)
	require.True(t, ok)
	assert.Equal(t, first, addr)
	assert.Equal(t, 1, table.Len())
}

func TestResolutionTable_ZeroAddress(t *testing.T) {
	table := NewResolutionTable()
	err := table.Record(kindA, common.Address{}, 1)
	require.Error(t, err)
	assert.False(t, table.Has(kindA))
}

// TestResolutionTable_Snapshot tests record order and copy semantics.
func TestResolutionTable_Snapshot(t *testing.T) {
	table := NewResolutionTable()
	require.NoError(t, table.Record(kindC, common.HexToAddress("0x03"), 1))
	require.NoError(t, table.Record(kindA, common.HexToAddress("0x01"), 2))

	snap := table.Snapshot()
	assert.Equal(t, []ir.ComponentKind{kindC, kindA}, resolvedKinds(snap))
	assert.Equal(t, int64(2), snap[1].Seq)
	assert.Equal(t, common.HexToAddress("0x01").Hex(), snap[1].Address)

	snap[0].Kind = kindB
	assert.Equal(t, kindC, table.Snapshot()[0].Kind)
	assert.False(t, table.Has(kindB))
}
