package ir

// Version constants for the plan schema and tool.
const (
	// PlanVersion is the plan schema version, part of the plan hash.
	PlanVersion = "1"

	// ToolVersion is the nsboot version.
	ToolVersion = "0.1.0"
)
