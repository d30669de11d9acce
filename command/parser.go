// Package command implements the symbolic command parser. A command names a
// registered prompt (or a chain of prompts) and may carry modifier operators:
//
//	@CAGEERF :: "quality" %lean >>step_one --> >>step_two key=value
//
// Grammar:
//
//	command      := { modifier-op }, prompt-ref, { chain-op, prompt-ref }, [ arg-payload ]
//	modifier-op  := "@" framework-id
//	              | "::" quoted-string
//	              | "::" gate-id ": " quoted-string
//	              | "::" gate-id ": $(" shell-text ")"
//	              | "#" style-id
//	              | "%lean" | "%clean"
//	prompt-ref   := ">>" prompt-id
//	chain-op     := "-->" | "|"
//
// A command without any symbolic token is the classic format: the first word
// is the prompt ID and the remainder is the argument payload.
package command

import (
	"regexp"
	"strings"

	"github.com/promptforge/promptforge/prompt"
)

// Format distinguishes classic from symbolic commands.
type Format string

const (
	FormatClassic  Format = "classic"
	FormatSymbolic Format = "symbolic"
)

// Type distinguishes single-prompt from chain execution.
type Type string

const (
	TypeSingle Type = "single"
	TypeChain  Type = "chain"
)

// NamedGate is an inline gate operator with an identifier: ::id: "text".
type NamedGate struct {
	ID       string
	Criteria string
}

// ShellGate is a shell verification gate operator: ::id: $(cmd).
type ShellGate struct {
	ID      string
	Command string
}

// Step is one prompt reference in a symbolic chain.
type Step struct {
	StepNumber int
	PromptID   string
	RawArgs    string
	Args       map[string]interface{}
}

// ParsedCommand is the parser output consumed by the planning stage.
type ParsedCommand struct {
	PromptID    string
	Format      Format
	CommandType Type
	RawArgs     string
	Steps       []Step

	FrameworkOverride  string
	StyleSelection     string
	Lean               bool
	Clean              bool
	InlineGateCriteria []string
	NamedInlineGates   []NamedGate
	ShellVerifyGates   []ShellGate
}

// Resolver looks prompts up during parsing. *prompt.Registry satisfies it.
type Resolver interface {
	Get(idOrName string) (*prompt.Definition, bool)
	Suggest(unknown string) []string
}

var (
	identPattern     = regexp.MustCompile(`^[\w][\w.-]*`)
	promptRefPattern = regexp.MustCompile(`^>>\s*([\w][\w.-]*)\s*`)
)

// Parse tokenizes and resolves a command string. Parsing is pure with
// respect to the command string: the same input against the same registry
// snapshot always yields the same ParsedCommand.
func Parse(raw string, registry Resolver) (*ParsedCommand, error) {
	rest := strings.TrimSpace(raw)
	if rest == "" {
		return nil, &MissingCommandError{}
	}

	parsed := &ParsedCommand{Format: FormatSymbolic, CommandType: TypeSingle}

	// Modifier operator prefix.
	var err error
	rest, err = parseModifiers(rest, parsed)
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(rest, ">>") {
		if hasModifiers(parsed) {
			return nil, &MalformedOperatorError{Token: firstToken(rest),
				Hint: "modifier operators must be followed by a >>prompt reference"}
		}
		return parseClassic(rest, parsed, registry)
	}

	// Prompt references, optionally chained with --> or |.
	segments := splitChain(rest)
	for i, segment := range segments {
		m := promptRefPattern.FindStringSubmatch(segment)
		if m == nil {
			return nil, &MalformedOperatorError{Token: firstToken(segment),
				Hint: "expected >>prompt_id"}
		}
		id := m[1]
		def, ok := registry.Get(id)
		if !ok {
			return nil, &PromptNotFoundError{ID: id, Suggestions: registry.Suggest(id)}
		}
		parsed.Steps = append(parsed.Steps, Step{
			StepNumber: i + 1,
			PromptID:   def.ID,
			RawArgs:    strings.TrimSpace(segment[len(m[0]):]),
			Args:       map[string]interface{}{},
		})
	}

	first := parsed.Steps[0]
	parsed.PromptID = first.PromptID
	parsed.RawArgs = first.RawArgs

	if len(parsed.Steps) > 1 {
		parsed.CommandType = TypeChain
		return parsed, nil
	}

	// A single reference to a chain prompt expands to its declared steps.
	if def, _ := registry.Get(first.PromptID); def != nil && def.IsChain() {
		parsed.CommandType = TypeChain
		parsed.Steps = stepsFromDefinition(def, first.RawArgs)
	}
	return parsed, nil
}

func parseClassic(rest string, parsed *ParsedCommand, registry Resolver) (*ParsedCommand, error) {
	parsed.Format = FormatClassic
	name, rawArgs, _ := strings.Cut(rest, " ")
	def, ok := registry.Get(name)
	if !ok {
		return nil, &PromptNotFoundError{ID: name, Suggestions: registry.Suggest(name)}
	}
	parsed.PromptID = def.ID
	parsed.RawArgs = strings.TrimSpace(rawArgs)
	parsed.Steps = []Step{{StepNumber: 1, PromptID: def.ID, RawArgs: parsed.RawArgs,
		Args: map[string]interface{}{}}}
	if def.IsChain() {
		parsed.CommandType = TypeChain
		parsed.Steps = stepsFromDefinition(def, parsed.RawArgs)
	}
	return parsed, nil
}

func stepsFromDefinition(def *prompt.Definition, rawArgs string) []Step {
	steps := make([]Step, 0, len(def.ChainSteps))
	for _, cs := range def.ChainSteps {
		step := Step{StepNumber: cs.StepNumber, PromptID: cs.PromptID,
			Args: map[string]interface{}{}}
		if cs.StepNumber == 1 {
			step.RawArgs = rawArgs
		}
		steps = append(steps, step)
	}
	return steps
}

func parseModifiers(rest string, parsed *ParsedCommand) (string, error) {
	for {
		rest = strings.TrimLeft(rest, " \t")
		switch {
		case strings.HasPrefix(rest, ">>"):
			return rest, nil

		case strings.HasPrefix(rest, "@"):
			id := identPattern.FindString(rest[1:])
			if id == "" {
				return "", &MalformedOperatorError{Token: "@", Hint: "expected @framework_id"}
			}
			parsed.FrameworkOverride = id
			rest = rest[1+len(id):]

		case strings.HasPrefix(rest, "#"):
			id := identPattern.FindString(rest[1:])
			if id == "" {
				return "", &MalformedOperatorError{Token: "#", Hint: "expected #style_id"}
			}
			parsed.StyleSelection = id
			rest = rest[1+len(id):]

		case strings.HasPrefix(rest, "%"):
			word := identPattern.FindString(rest[1:])
			switch word {
			case "lean":
				parsed.Lean = true
			case "clean":
				parsed.Clean = true
			default:
				return "", &MalformedOperatorError{Token: "%" + word,
					Hint: "supported flags are %lean and %clean"}
			}
			rest = rest[1+len(word):]

		case strings.HasPrefix(rest, "::"):
			var err error
			rest, err = parseGateOperator(rest[2:], parsed)
			if err != nil {
				return "", err
			}

		default:
			return rest, nil
		}
	}
}

// parseGateOperator consumes the text after "::": either a quoted anonymous
// criteria string, or "id:" followed by a quoted string or $(shell).
func parseGateOperator(rest string, parsed *ParsedCommand) (string, error) {
	rest = strings.TrimLeft(rest, " \t")

	if strings.HasPrefix(rest, `"`) {
		text, remaining, ok := takeQuoted(rest)
		if !ok {
			return "", &MalformedOperatorError{Token: "::", Hint: "unterminated quoted string"}
		}
		parsed.InlineGateCriteria = append(parsed.InlineGateCriteria, text)
		return remaining, nil
	}

	id := identPattern.FindString(rest)
	if id == "" || !strings.HasPrefix(rest[len(id):], ":") {
		return "", &MalformedOperatorError{Token: "::",
			Hint: `expected :: "criteria" or ::gate_id: "criteria"`}
	}
	rest = strings.TrimLeft(rest[len(id)+1:], " \t")

	if strings.HasPrefix(rest, "$(") {
		end := strings.Index(rest, ")")
		if end < 0 {
			return "", &MalformedOperatorError{Token: "::" + id + ":",
				Hint: "unterminated $(shell) verification"}
		}
		parsed.ShellVerifyGates = append(parsed.ShellVerifyGates, ShellGate{
			ID: id, Command: strings.TrimSpace(rest[2:end]),
		})
		return rest[end+1:], nil
	}

	text, remaining, ok := takeQuoted(rest)
	if !ok {
		return "", &MalformedOperatorError{Token: "::" + id + ":",
			Hint: "expected a quoted criteria string or $(shell)"}
	}
	parsed.NamedInlineGates = append(parsed.NamedInlineGates, NamedGate{ID: id, Criteria: text})
	return remaining, nil
}

// splitChain splits a symbolic command into its chain segments. A "-->" or
// "|" counts as a chain operator only outside double quotes and only when
// another >>prompt reference follows it, so a pipe inside a quoted value or a
// free-text payload stays part of the step's arguments.
func splitChain(s string) []string {
	var segments []string
	start := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch {
		case inQuote:
			if s[i] == '\\' {
				i++
			} else if s[i] == '"' {
				inQuote = false
			}
		case s[i] == '"':
			inQuote = true
		case s[i] == '|':
			if nextIsPromptRef(s[i+1:]) {
				segments = append(segments, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		case strings.HasPrefix(s[i:], "-->"):
			if nextIsPromptRef(s[i+3:]) {
				segments = append(segments, strings.TrimSpace(s[start:i]))
				start = i + 3
				i += 2
			}
		}
	}
	return append(segments, strings.TrimSpace(s[start:]))
}

func nextIsPromptRef(s string) bool {
	return strings.HasPrefix(strings.TrimLeft(s, " \t"), ">>")
}

// takeQuoted consumes a double-quoted string with backslash escapes.
func takeQuoted(s string) (text, rest string, ok bool) {
	if !strings.HasPrefix(s, `"`) {
		return "", s, false
	}
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), s[i+1:], true
		default:
			b.WriteByte(s[i])
		}
	}
	return "", s, false
}

func hasModifiers(p *ParsedCommand) bool {
	return p.FrameworkOverride != "" || p.StyleSelection != "" || p.Lean || p.Clean ||
		len(p.InlineGateCriteria) > 0 || len(p.NamedInlineGates) > 0 || len(p.ShellVerifyGates) > 0
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[0]
}

// MergeOptions folds request options into each step's argument map. An
// option only fills slots whose current value is nil, an empty string, or an
// empty array; inline values always win.
func MergeOptions(parsed *ParsedCommand, options map[string]interface{}) {
	if len(options) == 0 {
		return
	}
	for i := range parsed.Steps {
		step := &parsed.Steps[i]
		if step.Args == nil {
			step.Args = map[string]interface{}{}
		}
		for key, value := range options {
			if isUnfilled(step.Args[key]) {
				step.Args[key] = value
			}
		}
	}
}

func isUnfilled(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}
