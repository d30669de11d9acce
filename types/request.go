// Package types defines the request/response envelope shared between the
// execution engine and its transport. The transport layer (MCP server, HTTP
// handler, CLI) owns framing; these types are the contract it marshals.
package types

// GateAction selects the behaviour when a gate's retry budget is exhausted.
type GateAction string

const (
	GateActionRetry GateAction = "retry"
	GateActionSkip  GateAction = "skip"
	GateActionAbort GateAction = "abort"
)

// GateSpec is an inline gate supplied on a request. Exactly one form is used:
// a registered gate ID, a quick name+description gate, or a full definition
// expressed as a raw map the gate loader can parse.
type GateSpec struct {
	ID          string                 `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Definition  map[string]interface{} `json:"definition,omitempty" yaml:"definition,omitempty"`
}

// IsRef reports whether the spec is a bare reference to a registered gate.
func (g GateSpec) IsRef() bool {
	return g.ID != "" && g.Name == "" && len(g.Definition) == 0
}

// ExecutionRequest is the engine's inbound envelope. Command is required
// unless ChainID and UserResponse are both present (a chain resumption).
type ExecutionRequest struct {
	// Command is the symbolic command string, e.g. `>>greet name="Ada"`.
	Command string `json:"command,omitempty"`

	// ChainID resumes a chain started by a prior request.
	ChainID string `json:"chain_id,omitempty"`

	// UserResponse carries the previous step's model output on resumption.
	UserResponse string `json:"user_response,omitempty"`

	// GateVerdict is a free-form gate outcome: "GATE_REVIEW: PASS|FAIL - reason".
	GateVerdict string `json:"gate_verdict,omitempty"`

	// GateAction applies when a gate's retry limit is exhausted.
	GateAction GateAction `json:"gate_action,omitempty"`

	// Gates lists inline gate specs to apply in addition to planned gates.
	Gates []GateSpec `json:"gates,omitempty"`

	// ForceRestart discards any cached chain state for the target prompt.
	ForceRestart bool `json:"force_restart,omitempty"`

	// Options is an arbitrary key/value map merged into prompt arguments.
	// An option only fills arguments whose current value is empty.
	Options map[string]interface{} `json:"options,omitempty"`

	// Plan-time overrides.
	APIValidation *bool    `json:"api_validation,omitempty"`
	QualityGates  []string `json:"quality_gates,omitempty"`
	CustomChecks  []string `json:"custom_checks,omitempty"`

	// Framework and Style override the configured defaults for this request.
	Framework string `json:"framework,omitempty"`
	Style     string `json:"style,omitempty"`

	// Injection overrides injection decisions for this request, keyed by
	// injection type (system_prompt, gate_guidance, style_guidance).
	Injection map[string]*bool `json:"injection,omitempty"`

	// ApprovedTools and RequestedTools authorize confirm-mode script tools
	// and invoke manual-mode ones.
	ApprovedTools  []string `json:"approved_tools,omitempty"`
	RequestedTools []string `json:"requested_tools,omitempty"`

	// SessionID pins the request to an existing session (admin surfaces).
	SessionID string `json:"session_id,omitempty"`
}

// IsResumption reports whether the request rehydrates a chain instead of
// parsing a command. The chain is named by chain ID, or pinned directly by
// session ID.
func (r *ExecutionRequest) IsResumption() bool {
	return r.Command == "" && (r.ChainID != "" || r.SessionID != "") && r.UserResponse != ""
}
