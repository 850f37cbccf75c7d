package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nsboot/internal/ir"
)

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(t.Context(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
	assert.Contains(t, err.Error(), "ghost")
}

// TestListRuns tests newest-first ordering and the limit.
func TestListRuns(t *testing.T) {
	s := createTestStore(t)
	for _, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, s.BeginRun(t.Context(), testRun(id)))
	}

	all, err := s.ListRuns(t.Context(), 0)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"run-c", "run-b", "run-a"}, ids)

	two, err := s.ListRuns(t.Context(), 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
	assert.Equal(t, "run-c", two[0].ID)
}

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)
	runs, err := s.ListRuns(t.Context(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

// TestReadSteps_OrderBySeq tests that records come back in clock order
// regardless of insertion order.
func TestReadSteps_OrderBySeq(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.BeginRun(t.Context(), testRun("run-1")))

	require.NoError(t, s.RecordStep(t.Context(), deployRecord("run-1", 1, 5, ir.KindFallbackRegistry, "0x02")))
	require.NoError(t, s.RecordStep(t.Context(), deployRecord("run-1", 0, 4, ir.KindRegistry, "0x01")))

	got, err := s.ReadSteps(t.Context(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
}

func TestReadSteps_Empty(t *testing.T) {
	s := createTestStore(t)
	got, err := s.ReadSteps(t.Context(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQuery(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.BeginRun(t.Context(), testRun("run-1")))
	require.NoError(t, s.RecordStep(t.Context(), deployRecord("run-1", 0, 1, ir.KindRegistry, "0x01")))

	rows, err := s.Query(t.Context(), `SELECT key, status FROM steps WHERE run_id = ?`, "run-1")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var key, status string
	require.NoError(t, rows.Scan(&key, &status))
	assert.Equal(t, "deploy:registry", key)
	assert.Equal(t, "ok", status)
	assert.False(t, rows.Next())
	require.NoError(t, rows.Err())
}
