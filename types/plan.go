package types

// Strategy selects between single-prompt and chain execution.
type Strategy string

const (
	StrategySingle Strategy = "single"
	StrategyChain  Strategy = "chain"
)

// PlanModifiers carries the operator modifiers resolved at plan time.
type PlanModifiers struct {
	Framework string `json:"framework,omitempty"`
	Style     string `json:"style,omitempty"`
	Lean      bool   `json:"lean,omitempty"`
	Clean     bool   `json:"clean,omitempty"`
}

// ExecutionPlan is the planning stage output: what to run, which gates
// apply, and which supporting stages the request needs.
type ExecutionPlan struct {
	Strategy             Strategy      `json:"strategy"`
	Gates                []string      `json:"gates,omitempty"`
	RequiresFramework    bool          `json:"requires_framework"`
	RequiresSession      bool          `json:"requires_session"`
	APIValidationEnabled bool          `json:"api_validation_enabled"`
	Modifiers            PlanModifiers `json:"modifiers"`
}
