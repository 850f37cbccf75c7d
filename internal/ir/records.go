package ir

// StepStatus is the outcome of an executed plan step.
type StepStatus string

const (
	StatusOK     StepStatus = "ok"
	StatusFailed StepStatus = "failed"
)

// DeployedComponent records a successful deployment. Recorded exactly once
// per kind per run.
type DeployedComponent struct {
	Kind    ComponentKind `json:"kind"`
	Address string        `json:"address"` // 0x-prefixed, checksummed
	Seq     int64         `json:"seq"`
}

// StepRecord is the observable record of one executed plan step.
// Records are sufficient to reconstruct the resolution table of a run.
type StepRecord struct {
	RunID      string        `json:"run_id"`
	Index      int           `json:"index"`
	Seq        int64         `json:"seq"` // Logical clock
	Key        string        `json:"key"`
	Type       StepType      `json:"type"`
	Kind       ComponentKind `json:"kind"`
	Artifact   string        `json:"artifact,omitempty"` // deploy only
	Target     string        `json:"target,omitempty"`   // call target address
	Method     string        `json:"method,omitempty"`
	Args       []string      `json:"args"`              // resolved, rendered
	Address    string        `json:"address,omitempty"` // deployed address
	TxHash     string        `json:"tx_hash,omitempty"`
	Block      uint64        `json:"block,omitempty"`
	Status     StepStatus    `json:"status"`
	Error      string        `json:"error,omitempty"`
	DurationMs int64         `json:"duration_ms"`
}

// RunStatus is the lifecycle state of a journaled run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the journal header of one provisioning run.
type RunRecord struct {
	ID          string    `json:"id"`
	Topology    string    `json:"topology"`
	PlanHash    string    `json:"plan_hash"`
	Operator    string    `json:"operator"`
	TotalSteps  int       `json:"total_steps"`
	StartIndex  int       `json:"start_index"` // >0 for resumed runs
	Status      RunStatus `json:"status"`
	FailedIndex int       `json:"failed_index"` // -1 unless failed
	FailedKey   string    `json:"failed_key,omitempty"`
	Error       string    `json:"error,omitempty"`
}
