package resource

// TypedArgument declares a named input or output on a workflow.
type TypedArgument struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TypedResult carries a value across the data plane together with its
// declared type. Value stays untyped JSON; code outputs carry structured
// values while text outputs carry strings.
type TypedResult struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// StatusPending is the initial status for most resources.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDeleted = "deleted"
	StatusActive  = "active"
)
