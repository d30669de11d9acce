package prompt

import (
	"fmt"

	"github.com/promptforge/promptforge/resource"
)

// spec mirrors the YAML shape of a prompt manifest's spec block.
type spec struct {
	Name                string           `yaml:"name"`
	Category            string           `yaml:"category"`
	Description         string           `yaml:"description"`
	SystemMessage       string           `yaml:"system_message"`
	UserMessageTemplate string           `yaml:"user_message_template"`
	Arguments           []Argument       `yaml:"arguments"`
	ChainSteps          []ChainStep      `yaml:"chain_steps"`
	Gates               GateConfig       `yaml:"gates"`
	ScriptTools         []ScriptTool     `yaml:"script_tools"`
	ChainInjection      map[string]*bool `yaml:"chain_injection"`
}

// FromEntry builds a Definition from a loaded resource entry. The
// user-message.md companion supplies the template when the spec omits it.
func FromEntry(entry *resource.Entry) (*Definition, error) {
	var s spec
	if err := entry.Manifest.DecodeSpec(&s); err != nil {
		return nil, fmt.Errorf("prompt %q: %w", entry.Manifest.ID(), err)
	}

	def := &Definition{
		ID:                  entry.Manifest.ID(),
		Name:                s.Name,
		Category:            s.Category,
		Description:         s.Description,
		SystemMessage:       s.SystemMessage,
		UserMessageTemplate: s.UserMessageTemplate,
		Arguments:           s.Arguments,
		ChainSteps:          s.ChainSteps,
		Gates:               s.Gates,
		ScriptTools:         s.ScriptTools,
		ChainInjection:      s.ChainInjection,
		PromptDir:           entry.Dir,
	}

	if tmpl, ok := entry.Companions[resource.CompanionUserMessage]; ok && def.UserMessageTemplate == "" {
		def.UserMessageTemplate = tmpl
	}
	if def.UserMessageTemplate == "" && !def.IsChain() {
		return nil, fmt.Errorf("prompt %q has neither a user_message_template nor chain steps", def.ID)
	}

	// Default argument types and step numbering.
	for i := range def.Arguments {
		if def.Arguments[i].Type == "" {
			def.Arguments[i].Type = ArgString
		}
	}
	for i := range def.ChainSteps {
		if def.ChainSteps[i].StepNumber == 0 {
			def.ChainSteps[i].StepNumber = i + 1
		}
	}
	for i := range def.ScriptTools {
		if def.ScriptTools[i].Mode == "" {
			def.ScriptTools[i].Mode = ScriptAuto
		}
	}

	return def, nil
}
