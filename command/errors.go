package command

import (
	"fmt"
	"strings"
)

// PromptNotFoundError reports an unknown prompt reference, carrying close
// matches from the registry for the error message.
type PromptNotFoundError struct {
	ID          string
	Suggestions []string
}

func (e *PromptNotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("prompt %q not found", e.ID)
	}
	return fmt.Sprintf("prompt %q not found, did you mean: %s", e.ID, strings.Join(e.Suggestions, ", "))
}

// MalformedOperatorError reports an operator token the grammar rejects.
type MalformedOperatorError struct {
	Token string
	Hint  string
}

func (e *MalformedOperatorError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("malformed operator %q", e.Token)
	}
	return fmt.Sprintf("malformed operator %q: %s", e.Token, e.Hint)
}

// MissingCommandError reports an empty command with no resumption context.
type MissingCommandError struct{}

func (e *MissingCommandError) Error() string {
	return "no command given: expected >>prompt_id or a prompt name"
}
