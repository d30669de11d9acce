// Package prompt provides prompt template definitions, loading, and the
// hot-reloadable prompt registry.
//
// A prompt is an identified template with typed arguments. A prompt whose
// definition carries chain steps is a chain: its steps execute one per
// resume request, each bound to another registered prompt.
package prompt

import (
	"strings"
)

// ArgType enumerates the declared type of a prompt argument.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
	ArgArray   ArgType = "array"
	ArgObject  ArgType = "object"
)

// Validation constrains a string argument's value.
type Validation struct {
	MinLength int    `yaml:"min_length" json:"min_length,omitempty"`
	MaxLength int    `yaml:"max_length" json:"max_length,omitempty"`
	Pattern   string `yaml:"pattern" json:"pattern,omitempty"`
}

// Argument declares one prompt argument.
type Argument struct {
	Name        string      `yaml:"name" json:"name"`
	Type        ArgType     `yaml:"type" json:"type"`
	Required    bool        `yaml:"required" json:"required"`
	Description string      `yaml:"description" json:"description,omitempty"`
	Default     interface{} `yaml:"default" json:"default,omitempty"`
	Validation  *Validation `yaml:"validation" json:"validation,omitempty"`
}

// ChainStep is one element of a chain prompt.
type ChainStep struct {
	StepNumber   int               `yaml:"step_number" json:"step_number"`
	PromptID     string            `yaml:"prompt_id" json:"prompt_id"`
	Args         map[string]string `yaml:"args" json:"args,omitempty"`
	VariableName string            `yaml:"variable_name" json:"variable_name,omitempty"`

	// InputMapping binds step argument names to chain variable names
	// recorded by earlier steps.
	InputMapping map[string]string `yaml:"input_mapping" json:"input_mapping,omitempty"`

	// OutputMapping publishes parts of the captured step output into the
	// chain variable namespace. Keys are JMESPath selectors over the output
	// parsed as JSON ("@" selects the whole text), values are chain
	// variable names.
	OutputMapping map[string]string `yaml:"output_mapping" json:"output_mapping,omitempty"`

	// Retries caps gate retry attempts while this step is under review,
	// overriding the failing gates' own budgets when positive.
	Retries int `yaml:"retries" json:"retries,omitempty"`

	// Injection overrides injection decisions for this step, keyed by
	// injection type (system_prompt, gate_guidance, style_guidance).
	Injection map[string]*bool `yaml:"injection" json:"injection,omitempty"`
}

// GateConfig declares which gates a prompt opts into or out of.
type GateConfig struct {
	Include        []string `yaml:"include" json:"include,omitempty"`
	Exclude        []string `yaml:"exclude" json:"exclude,omitempty"`
	FrameworkGates bool     `yaml:"framework_gates" json:"framework_gates,omitempty"`
}

// ScriptMode controls when a prompt's script tool runs.
type ScriptMode string

const (
	// ScriptAuto runs immediately when the tool's triggers match.
	ScriptAuto ScriptMode = "auto"
	// ScriptConfirm requires explicit approval before running.
	ScriptConfirm ScriptMode = "confirm"
	// ScriptManual runs only when explicitly named by the request.
	ScriptManual ScriptMode = "manual"
	// ScriptAutoApproveOnValid runs, then gates continuation on the JSON
	// output's "valid" field.
	ScriptAutoApproveOnValid ScriptMode = "auto_approve_on_valid"
)

// ScriptTool declares a subprocess tool a prompt may invoke.
type ScriptTool struct {
	ID       string     `yaml:"id" json:"id"`
	Command  string     `yaml:"command" json:"command"`
	Mode     ScriptMode `yaml:"mode" json:"mode,omitempty"`
	Triggers []string   `yaml:"triggers" json:"triggers,omitempty"`
}

// Definition is a fully loaded prompt template.
type Definition struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Category            string       `json:"category"`
	Description         string       `json:"description,omitempty"`
	SystemMessage       string       `json:"system_message,omitempty"`
	UserMessageTemplate string       `json:"user_message_template"`
	Arguments           []Argument   `json:"arguments,omitempty"`
	ChainSteps          []ChainStep  `json:"chain_steps,omitempty"`
	Gates               GateConfig   `json:"gates"`
	ScriptTools         []ScriptTool `json:"script_tools,omitempty"`

	// ChainInjection is the chain-level injection rule, consulted when a
	// step has no per-step override.
	ChainInjection map[string]*bool `json:"chain_injection,omitempty"`

	// PromptDir is the on-disk location, used to resolve local references.
	PromptDir string `json:"-"`
}

// ResourceID implements resource.Named.
func (d *Definition) ResourceID() string { return d.ID }

// ResourceName implements resource.Named.
func (d *Definition) ResourceName() string { return d.Name }

// IsChain reports whether the prompt is a chain.
func (d *Definition) IsChain() bool { return len(d.ChainSteps) > 0 }

// Argument returns the declared argument with the given name.
func (d *Definition) Argument(name string) (*Argument, bool) {
	for i := range d.Arguments {
		if strings.EqualFold(d.Arguments[i].Name, name) {
			return &d.Arguments[i], true
		}
	}
	return nil, false
}

// RequiredArguments returns the declared arguments marked required.
func (d *Definition) RequiredArguments() []Argument {
	var out []Argument
	for _, a := range d.Arguments {
		if a.Required {
			out = append(out, a)
		}
	}
	return out
}

// ScriptTool returns the declared script tool with the given ID.
func (d *Definition) ScriptTool(id string) (*ScriptTool, bool) {
	for i := range d.ScriptTools {
		if strings.EqualFold(d.ScriptTools[i].ID, id) {
			return &d.ScriptTools[i], true
		}
	}
	return nil, false
}
