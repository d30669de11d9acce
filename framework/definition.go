// Package framework provides methodology definitions (CAGEERF, ReACT, 5W1H,
// SCAMPER and user-defined ones), the hot-reloadable methodology registry,
// and the system prompt expansion used by the framework resolution stage.
package framework

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/promptforge/promptforge/resource"
)

// Definition describes one methodology. Loaded from a methodology manifest
// or seeded as a built-in.
type Definition struct {
	ID          string `yaml:"-" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description,omitempty"`

	// SystemPromptTemplate supports the {METHODOLOGY_GUIDANCE},
	// {PROMPT_NAME} and {FRAMEWORK_NAME} placeholders.
	SystemPromptTemplate string `yaml:"system_prompt_template" json:"system_prompt_template,omitempty"`

	// Marker is the canonical sentence injected by this methodology's system
	// prompt. Its presence in a prompt's own system message means the
	// methodology was already applied, so the engine must not inject twice.
	Marker string `yaml:"marker" json:"marker,omitempty"`

	// StepGuidance maps chain step numbers ("1", "2", ...) or step names to
	// methodology guidance for that step.
	StepGuidance map[string]string `yaml:"step_guidance" json:"step_guidance,omitempty"`

	// TemplateGuidance maps prompt categories to guidance tailored to that
	// kind of template.
	TemplateGuidance map[string]string `yaml:"template_guidance" json:"template_guidance,omitempty"`

	// Guidance is the general methodology text substituted for
	// {METHODOLOGY_GUIDANCE} when no more specific guidance applies.
	Guidance string `yaml:"guidance" json:"guidance,omitempty"`
}

// ResourceID implements resource.Named.
func (d *Definition) ResourceID() string { return d.ID }

// ResourceName implements resource.Named.
func (d *Definition) ResourceName() string { return d.Name }

var _ resource.Named = (*Definition)(nil)

// GuidanceForStep returns the step-specific guidance, falling back to the
// general guidance text.
func (d *Definition) GuidanceForStep(step int) string {
	if g, ok := d.StepGuidance[strconv.Itoa(step)]; ok {
		return g
	}
	return d.Guidance
}

// GuidanceForCategory returns guidance tailored to a prompt category,
// falling back to the general guidance text.
func (d *Definition) GuidanceForCategory(category string) string {
	if g, ok := d.TemplateGuidance[strings.ToLower(category)]; ok {
		return g
	}
	return d.Guidance
}

// SystemPrompt expands the methodology's system prompt template for a prompt.
// Guidance selection prefers category-specific text when the prompt's
// category has an entry.
func (d *Definition) SystemPrompt(promptName, category string) string {
	tmpl := d.SystemPromptTemplate
	if tmpl == "" {
		tmpl = defaultSystemPromptTemplate
	}
	guidance := d.GuidanceForCategory(category)
	out := strings.ReplaceAll(tmpl, "{METHODOLOGY_GUIDANCE}", guidance)
	out = strings.ReplaceAll(out, "{PROMPT_NAME}", promptName)
	out = strings.ReplaceAll(out, "{FRAMEWORK_NAME}", d.Name)
	return out
}

// AlreadyInjected reports whether content carries this methodology's marker.
// The scan is a literal substring match.
func (d *Definition) AlreadyInjected(content string) bool {
	return d.Marker != "" && strings.Contains(content, d.Marker)
}

const defaultSystemPromptTemplate = "{METHODOLOGY_GUIDANCE}\n\n" +
	"You are executing the {PROMPT_NAME} prompt under the {FRAMEWORK_NAME} methodology.\n"

// markerFor builds the canonical marker sentence for a methodology display
// name, matching the text the built-in system prompts embed.
func markerFor(displayName string) string {
	return fmt.Sprintf("Apply the %s methodology systematically", displayName)
}
