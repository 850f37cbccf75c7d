package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nsboot/internal/ir"
)

// createTestStore opens a journal in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string) ir.RunRecord {
	return ir.RunRecord{
		ID:          id,
		Topology:    "monad-ns",
		PlanHash:    "plan-hash",
		Operator:    "0x6aC7Ea33F8831eA9DCC53393AAA88B25a785DBF0",
		TotalSteps:  3,
		Status:      ir.RunRunning,
		FailedIndex: -1,
	}
}

func deployRecord(runID string, index int, seq int64, kind ir.ComponentKind, addr string) ir.StepRecord {
	return ir.StepRecord{
		RunID:    runID,
		Index:    index,
		Seq:      seq,
		Key:      ir.DeployKey(kind),
		Type:     ir.StepDeploy,
		Kind:     kind,
		Artifact: "Artifact",
		Args:     []string{},
		Address:  addr,
		TxHash:   "0xabc",
		Block:    uint64(index + 1),
		Status:   ir.StatusOK,
	}
}
