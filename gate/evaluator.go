package gate

import (
	"context"
	"fmt"

	"github.com/promptforge/promptforge/logger"
)

// FieldError is one structured failure from a gate check.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult is the outcome of evaluating one gate against content.
type ValidationResult struct {
	GateID     string       `json:"gate_id"`
	GateName   string       `json:"gate_name,omitempty"`
	Passed     bool         `json:"passed"`
	Blocking   bool         `json:"blocking"`
	Errors     []FieldError `json:"errors,omitempty"`
	RetryHints []string     `json:"retry_hints,omitempty"`
	// Score is a 0..1 quality signal; 1 for a clean pass.
	Score float64 `json:"score"`
}

// ShellRunner executes a shell verification command. Content is supplied on
// stdin; a zero exit status means the check passed.
type ShellRunner interface {
	Verify(ctx context.Context, command, stdin string) (output string, exitCode int, err error)
}

// Evaluator runs gate pass criteria against rendered content. Every gate in
// the slice is evaluated even after a failure, so the caller always gets the
// complete picture for retry hints.
type Evaluator struct {
	checks *Checks
	shell  ShellRunner
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithShellRunner enables shell_verify criteria.
func WithShellRunner(r ShellRunner) EvaluatorOption {
	return func(e *Evaluator) { e.shell = r }
}

// WithChecks replaces the built-in check registry.
func WithChecks(c *Checks) EvaluatorOption {
	return func(e *Evaluator) { e.checks = c }
}

// NewEvaluator creates an evaluator with the built-in checks.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{checks: NewChecks()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every gate against the content and returns one result per
// gate, in input order.
func (e *Evaluator) Evaluate(ctx context.Context, gates []*Definition, content string) []ValidationResult {
	results := make([]ValidationResult, 0, len(gates))
	for _, def := range gates {
		result := e.evaluateOne(ctx, def, content)
		logger.GateResult(def.ID, result.Passed, result.Score)
		results = append(results, result)
	}
	return results
}

func (e *Evaluator) evaluateOne(ctx context.Context, def *Definition, content string) ValidationResult {
	result := ValidationResult{
		GateID:   def.ID,
		GateName: def.Name,
		Passed:   true,
		Blocking: def.IsBlocking(),
		Score:    1,
	}

	// Guidance gates contribute text only.
	if def.Type != TypeValidation {
		return result
	}

	total := len(def.PassCriteria)
	passed := 0
	scoreSum := 0.0
	scored := 0
	for _, criterion := range def.PassCriteria {
		cr := e.runCriterion(ctx, criterion, content)
		if cr.OK {
			passed++
		} else {
			result.Errors = append(result.Errors, FieldError{
				Field:   criterion.Check,
				Message: cr.Message,
				Code:    cr.Code,
			})
		}
		if cr.Score >= 0 {
			scoreSum += cr.Score
			scored++
		}
	}

	result.Passed = passed == total
	if scored > 0 {
		result.Score = scoreSum / float64(scored)
	} else if total > 0 {
		result.Score = float64(passed) / float64(total)
	}
	if !result.Passed {
		result.RetryHints = def.Retry.ImprovementHints
	}
	return result
}

func (e *Evaluator) runCriterion(ctx context.Context, criterion PassCriterion, content string) CheckResult {
	if criterion.Check == "shell_verify" {
		return e.runShellVerify(ctx, criterion, content)
	}
	fn, ok := e.checks.Get(criterion.Check)
	if !ok {
		return fail("UNKNOWN_CHECK", "no check registered as %q", criterion.Check)
	}
	return fn(content, criterion.Params)
}

// runShellVerify pipes the content into the criterion's command. Exit 0
// passes; any other exit status fails with the command output as message.
func (e *Evaluator) runShellVerify(ctx context.Context, criterion PassCriterion, content string) CheckResult {
	command, _ := paramString(criterion.Params, "command")
	if command == "" {
		return fail("SHELL_NO_COMMAND", "shell_verify criterion has no command")
	}
	if e.shell == nil {
		return fail("SHELL_UNAVAILABLE", "shell verification is not enabled")
	}
	output, exitCode, err := e.shell.Verify(ctx, command, content)
	if err != nil {
		return fail("SHELL_ERROR", "verification command failed to run: %v", err)
	}
	if exitCode != 0 {
		return fail("SHELL_REJECTED", "verification exited %d: %s", exitCode, truncate(output, 200))
	}
	return pass()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// AllPassed reports whether every result passed.
func AllPassed(results []ValidationResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// FailedBlocking returns the failed results whose gates block the response.
func FailedBlocking(results []ValidationResult) []ValidationResult {
	var out []ValidationResult
	for _, r := range results {
		if !r.Passed && r.Blocking {
			out = append(out, r)
		}
	}
	return out
}

// ImprovementFeedback flattens failures into retry guidance for the model.
func ImprovementFeedback(results []ValidationResult) string {
	var b []byte
	for _, r := range results {
		if r.Passed {
			continue
		}
		b = append(b, fmt.Sprintf("Gate %q failed:\n", nameOrID(r))...)
		for _, e := range r.Errors {
			b = append(b, fmt.Sprintf("  - %s\n", e.Message)...)
		}
		for _, hint := range r.RetryHints {
			b = append(b, fmt.Sprintf("  Hint: %s\n", hint)...)
		}
	}
	return string(b)
}

func nameOrID(r ValidationResult) string {
	if r.GateName != "" {
		return r.GateName
	}
	return r.GateID
}
