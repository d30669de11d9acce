// Package template provides template rendering and variable substitution.
//
// This package implements the template dialect consumed by prompt
// definitions. It supports:
//   - Variable substitution with {{variable}} syntax
//   - Conditional blocks with {%if%} / {%elif%} / {%else%} / {%endif%}
//   - Prompt inclusion with {{ref:prompt-id}}
//   - Script output inclusion with {{script:tool-id}}
//   - Recursive template resolution (variables can contain other variables)
//   - Detection of unresolved placeholders
//
// Parsing is deterministic and reflection-free: the renderer walks the text,
// evaluates conditionals against the variable map, and performs bounded
// multi-pass substitution.
package template

import (
	"fmt"
	"strings"
)

const (
	// maxPasses bounds recursive variable substitution.
	maxPasses = 3
	// maxRefDepth bounds transitive {{ref:}} inclusion.
	maxRefDepth = 5

	refPrefix    = "{{ref:"
	scriptPrefix = "{{script:"
)

// PromptResolver resolves {{ref:id}} references to another prompt's template
// text. Implemented by the prompt registry.
type PromptResolver interface {
	ResolveTemplate(id string) (string, error)
}

// ScriptResolver resolves {{script:id}} references to a script tool's output.
// Implemented by the script execution state of a request.
type ScriptResolver interface {
	ScriptOutput(id string) (string, bool)
}

// Renderer expands prompt templates with variables, conditionals, and
// reference lookups. A zero-value Renderer supports variables and
// conditionals only; resolvers are optional collaborators.
type Renderer struct {
	Prompts PromptResolver
	Scripts ScriptResolver

	// AllowUnresolved leaves unknown placeholders in place instead of
	// returning an error.
	AllowUnresolved bool
}

// NewRenderer creates a renderer without reference resolvers.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render expands templateText with the given variables.
//
// Processing order: {{ref:}} inclusion, conditional evaluation,
// {{script:}} substitution, then bounded multi-pass variable substitution.
// Returns an error if placeholders remain unresolved (unless
// AllowUnresolved is set).
func (r *Renderer) Render(templateText string, vars map[string]string) (string, error) {
	result, err := r.expandRefs(templateText, 0)
	if err != nil {
		return "", err
	}

	result, err = evalConditionals(result, vars)
	if err != nil {
		return "", err
	}

	result = r.expandScripts(result)

	// Multiple passes handle variables whose values contain variables.
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for key, value := range vars {
			placeholder := "{{" + key + "}}"
			if strings.Contains(result, placeholder) {
				result = strings.ReplaceAll(result, placeholder, value)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	if !r.AllowUnresolved {
		if unresolved := findUnresolvedPlaceholders(result); len(unresolved) > 0 {
			return "", fmt.Errorf("unresolved template placeholders: %v", unresolved)
		}
	}

	return result, nil
}

// Variables returns the names of all {{variable}} placeholders in the
// template, excluding ref: and script: references.
func Variables(templateText string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, ph := range findUnresolvedPlaceholders(templateText) {
		name := strings.TrimSuffix(strings.TrimPrefix(ph, "{{"), "}}")
		if strings.HasPrefix(name, "ref:") || strings.HasPrefix(name, "script:") {
			continue
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// MergeVars merges multiple variable maps with later maps taking precedence.
// This is useful for combining default values, context variables, and overrides.
func MergeVars(varMaps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, vars := range varMaps {
		for k, v := range vars {
			result[k] = v
		}
	}
	return result
}

// expandRefs inlines {{ref:prompt-id}} references, recursively up to
// maxRefDepth levels.
func (r *Renderer) expandRefs(text string, depth int) (string, error) {
	if !strings.Contains(text, refPrefix) {
		return text, nil
	}
	if r.Prompts == nil {
		return "", fmt.Errorf("template contains ref: references but no prompt resolver is configured")
	}
	if depth >= maxRefDepth {
		return "", fmt.Errorf("ref: inclusion exceeds maximum depth %d", maxRefDepth)
	}

	var sb strings.Builder
	rest := text
	for {
		start := strings.Index(rest, refPrefix)
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start

		sb.WriteString(rest[:start])
		id := strings.TrimSpace(rest[start+len(refPrefix) : end])
		included, err := r.Prompts.ResolveTemplate(id)
		if err != nil {
			return "", fmt.Errorf("resolving ref %q: %w", id, err)
		}
		expanded, err := r.expandRefs(included, depth+1)
		if err != nil {
			return "", err
		}
		sb.WriteString(expanded)
		rest = rest[end+2:]
	}
	return sb.String(), nil
}

// expandScripts substitutes {{script:tool-id}} references. Unknown tools are
// replaced with the empty string: a prompt may reference a tool the current
// request did not trigger.
func (r *Renderer) expandScripts(text string) string {
	if !strings.Contains(text, scriptPrefix) {
		return text
	}

	var sb strings.Builder
	rest := text
	for {
		start := strings.Index(rest, scriptPrefix)
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start

		sb.WriteString(rest[:start])
		id := strings.TrimSpace(rest[start+len(scriptPrefix) : end])
		if r.Scripts != nil {
			if out, ok := r.Scripts.ScriptOutput(id); ok {
				sb.WriteString(out)
			}
		}
		rest = rest[end+2:]
	}
	return sb.String()
}

// findUnresolvedPlaceholders extracts unresolved {{variable}} placeholders
// from text. This is used for error reporting when template rendering fails.
func findUnresolvedPlaceholders(text string) []string {
	var placeholders []string

	for i := 0; i < len(text)-3; i++ {
		if text[i:i+2] == "{{" {
			for j := i + 2; j < len(text)-1; j++ {
				if text[j:j+2] == "}}" {
					placeholders = append(placeholders, text[i:j+2])
					i = j + 1
					break
				}
			}
		}
	}

	return placeholders
}
