package testutil

// DefaultRunID is used when a scenario does not name its run.
const DefaultRunID = "run-00000000-0000-0000-0000-000000000001"

// FixedRunID hands out the same run ID on every call. It satisfies
// engine.RunIDGenerator; replayed scenarios share one ID across runs.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator for id, or DefaultRunID if id is empty.
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = DefaultRunID
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run ID.
func (g *FixedRunID) Generate() string {
	return g.id
}
