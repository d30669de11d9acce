package args

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/promptforge/promptforge/prompt"
)

// Validation error codes surfaced in structured argument errors.
const (
	CodeRequiredMissing = "REQUIRED_ARGUMENT_MISSING"
	CodePatternMismatch = "PATTERN_MISMATCH"
	CodeLengthBound     = "LENGTH_BOUND"
)

// FieldError is one per-argument validation failure.
type FieldError struct {
	Argument string `json:"argument"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Example  string `json:"example"`
}

// ValidationError aggregates every argument failure for one prompt so the
// caller can repair all of them in a single retry.
type ValidationError struct {
	PromptID string
	Errors   []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Argument, fe.Message))
	}
	return fmt.Sprintf("invalid arguments for %q: %s", e.PromptID, strings.Join(parts, "; "))
}

func validate(def *prompt.Definition, p *Parsed) error {
	var errs []FieldError
	for _, arg := range def.Arguments {
		value := p.Values[arg.Name]

		if arg.Required && isEmptyValue(value) {
			errs = append(errs, FieldError{
				Argument: arg.Name,
				Code:     CodeRequiredMissing,
				Message:  fmt.Sprintf("argument %q is required", arg.Name),
				Example:  exampleFor(arg),
			})
			continue
		}

		s, isString := value.(string)
		if !isString || s == "" || arg.Validation == nil {
			continue
		}
		v := arg.Validation

		if v.MinLength > 0 && len(s) < v.MinLength {
			errs = append(errs, FieldError{
				Argument: arg.Name,
				Code:     CodeLengthBound,
				Message:  fmt.Sprintf("argument %q must be at least %d characters, got %d", arg.Name, v.MinLength, len(s)),
				Example:  exampleFor(arg),
			})
		}
		if v.MaxLength > 0 && len(s) > v.MaxLength {
			errs = append(errs, FieldError{
				Argument: arg.Name,
				Code:     CodeLengthBound,
				Message:  fmt.Sprintf("argument %q must be at most %d characters, got %d", arg.Name, v.MaxLength, len(s)),
				Example:  exampleFor(arg),
			})
		}
		if v.Pattern != "" {
			re, err := regexp.Compile(v.Pattern)
			if err == nil && !re.MatchString(s) {
				errs = append(errs, FieldError{
					Argument: arg.Name,
					Code:     CodePatternMismatch,
					Message:  fmt.Sprintf("argument %q must match %s", arg.Name, v.Pattern),
					Example:  exampleFor(arg),
				})
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{PromptID: def.ID, Errors: errs}
	}
	return nil
}

// exampleFor builds a repair example from the argument declaration.
func exampleFor(arg prompt.Argument) string {
	switch arg.Type {
	case prompt.ArgNumber:
		return fmt.Sprintf("%s=42", arg.Name)
	case prompt.ArgBoolean:
		return fmt.Sprintf("%s=true", arg.Name)
	case prompt.ArgArray:
		return fmt.Sprintf("%s=a,b,c", arg.Name)
	case prompt.ArgObject:
		return fmt.Sprintf(`%s={"key": "value"}`, arg.Name)
	}
	if arg.Description != "" {
		return fmt.Sprintf("%s=%q", arg.Name, "<"+arg.Description+">")
	}
	return fmt.Sprintf("%s=%q", arg.Name, "value")
}
