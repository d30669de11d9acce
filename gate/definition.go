// Package gate provides quality-gate definitions, the hot-reloadable gate
// registry, and the gate evaluator with its built-in validation checks.
//
// A gate couples freeform guidance text (injected into prompts) with
// optional structured pass criteria evaluated against model output. Gates
// with type "validation" are checked; gates with type "guidance" contribute
// text only.
package gate

import (
	"strings"

	"github.com/promptforge/promptforge/resource"
)

// Type distinguishes checked gates from advisory ones.
type Type string

const (
	TypeValidation Type = "validation"
	TypeGuidance   Type = "guidance"
)

// Severity ranks how serious a gate failure is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// EnforcementMode controls what a failed gate does to the pipeline.
type EnforcementMode string

const (
	// EnforcementBlocking holds the response and demands a retry.
	EnforcementBlocking EnforcementMode = "blocking"
	// EnforcementAdvisory reports the failure but lets execution continue.
	EnforcementAdvisory EnforcementMode = "advisory"
	// EnforcementInformational only records the outcome.
	EnforcementInformational EnforcementMode = "informational"
)

// GateKind classifies how a gate was associated with a prompt.
type GateKind string

const (
	KindFramework GateKind = "framework"
	KindCategory  GateKind = "category"
	KindCustom    GateKind = "custom"
)

// PassCriterion is one structured check of a validation gate.
type PassCriterion struct {
	Check  string                 `yaml:"check" json:"check"`
	Params map[string]interface{} `yaml:"params" json:"params,omitempty"`
}

// Activation declares when a gate auto-applies.
type Activation struct {
	PromptCategories []string `yaml:"prompt_categories" json:"prompt_categories,omitempty"`
	FrameworkContext []string `yaml:"framework_context" json:"framework_context,omitempty"`
	ExplicitRequest  bool     `yaml:"explicit_request" json:"explicit_request,omitempty"`
}

// defaultMaxAttempts is the retry budget when a gate doesn't declare one.
const defaultMaxAttempts = 2

// RetryConfig tunes the retry loop for a blocking gate.
type RetryConfig struct {
	MaxAttempts      int      `yaml:"max_attempts" json:"max_attempts,omitempty"`
	ImprovementHints []string `yaml:"improvement_hints" json:"improvement_hints,omitempty"`
	PreserveContext  bool     `yaml:"preserve_context" json:"preserve_context,omitempty"`
}

// Definition is a fully loaded gate.
type Definition struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            Type            `json:"type"`
	Severity        Severity        `json:"severity,omitempty"`
	EnforcementMode EnforcementMode `json:"enforcement_mode,omitempty"`
	GateKind        GateKind        `json:"gate_type,omitempty"`
	Description     string          `json:"description,omitempty"`
	Guidance        string          `json:"guidance,omitempty"`
	PassCriteria    []PassCriterion `json:"pass_criteria,omitempty"`
	Activation      Activation      `json:"activation"`
	Retry           RetryConfig     `json:"retry"`
}

// ResourceID implements resource.Named.
func (d *Definition) ResourceID() string { return d.ID }

// ResourceName implements resource.Named.
func (d *Definition) ResourceName() string { return d.Name }

// IsBlocking reports whether a failure of this gate must hold the response.
func (d *Definition) IsBlocking() bool {
	return d.EnforcementMode == EnforcementBlocking
}

// MaxAttempts returns the retry budget, applying the default of 2.
func (d *Definition) MaxAttempts() int {
	if d.Retry.MaxAttempts > 0 {
		return d.Retry.MaxAttempts
	}
	return defaultMaxAttempts
}

// ActivatesFor reports whether the gate auto-applies to a prompt category.
func (d *Definition) ActivatesFor(category string) bool {
	for _, c := range d.Activation.PromptCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

var _ resource.Named = (*Definition)(nil)
