// Package scripts runs the script tools a prompt declares. Tools are
// partitioned by mode: auto tools run immediately, confirm tools wait for
// explicit approval, manual tools run only when named, and
// auto_approve_on_valid tools run and then gate on the "valid" field of
// their JSON output. Outputs feed the template variables {{tool_<id>}} and
// {{tool_<id>_result}}.
package scripts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/promptforge/promptforge/logger"
	"github.com/promptforge/promptforge/metrics/prometheus"
	"github.com/promptforge/promptforge/prompt"
)

// Result is one command execution outcome.
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// Executor runs a shell command with the given stdin. Implementations must
// honor context cancellation.
type Executor interface {
	Execute(ctx context.Context, command, stdin string) (Result, error)
}

// ShellExecutor runs commands through sh -c.
type ShellExecutor struct {
	// Timeout bounds each command; zero means rely on the caller's context.
	Timeout time.Duration
}

// Execute runs the command, feeding stdin and capturing combined output.
func (e *ShellExecutor) Execute(ctx context.Context, command, stdin string) (Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = strings.NewReader(stdin)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	result := Result{
		Output:   out.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("running %q: %w", command, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}

// Verify implements the gate shell-verification contract: the content goes
// to stdin and a zero exit status passes.
func (e *ShellExecutor) Verify(ctx context.Context, command, stdin string) (string, int, error) {
	result, err := e.Execute(ctx, command, stdin)
	return result.Output, result.ExitCode, err
}

// Status classifies what happened to one tool.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending_confirmation"
	StatusSkipped   Status = "skipped"
	StatusInvalid   Status = "invalid"
	StatusFailed    Status = "failed"
)

// Outcome is the recorded result for one tool.
type Outcome struct {
	ToolID string
	Status Status
	Output string
	// Valid reflects the "valid" field of auto_approve_on_valid output.
	Valid *bool
}

// Report aggregates tool outcomes for one request.
type Report struct {
	Outcomes map[string]Outcome
}

// TemplateVars exposes outcomes as tool_<id> and tool_<id>_result
// placeholders.
func (r *Report) TemplateVars() map[string]interface{} {
	vars := make(map[string]interface{}, len(r.Outcomes)*2)
	for id, outcome := range r.Outcomes {
		vars["tool_"+id] = outcome.Output
		vars["tool_"+id+"_result"] = string(outcome.Status)
	}
	return vars
}

// ScriptOutput implements template.ScriptResolver: {{script:id}} inlines a
// completed tool's output.
func (r *Report) ScriptOutput(id string) (string, bool) {
	outcome, ok := r.Outcomes[id]
	if !ok || outcome.Status != StatusCompleted {
		return "", false
	}
	return outcome.Output, true
}

// AnyInvalid reports whether an auto_approve_on_valid tool rejected the
// input; the pipeline stops script-dependent rendering in that case.
func (r *Report) AnyInvalid() bool {
	for _, outcome := range r.Outcomes {
		if outcome.Status == StatusInvalid {
			return true
		}
	}
	return false
}

// Runner detects, partitions, and executes a prompt's script tools.
type Runner struct {
	executor Executor
}

// NewRunner creates a Runner; a nil executor defaults to ShellExecutor with
// a 30s per-command timeout.
func NewRunner(executor Executor) *Runner {
	if executor == nil {
		executor = &ShellExecutor{Timeout: 30 * time.Second}
	}
	return &Runner{executor: executor}
}

// Run executes the tools triggered by the input. approved names confirm-mode
// tools that the caller has authorized; requested names manual tools to run.
func (r *Runner) Run(ctx context.Context, tools []prompt.ScriptTool, input string, approved, requested []string) *Report {
	report := &Report{Outcomes: map[string]Outcome{}}
	for _, tool := range tools {
		if !triggered(tool, input) {
			continue
		}
		switch tool.Mode {
		case prompt.ScriptAuto, "":
			report.Outcomes[tool.ID] = r.execute(ctx, tool, input, false)
		case prompt.ScriptConfirm:
			if contains(approved, tool.ID) {
				report.Outcomes[tool.ID] = r.execute(ctx, tool, input, false)
			} else {
				report.Outcomes[tool.ID] = Outcome{ToolID: tool.ID, Status: StatusPending}
			}
		case prompt.ScriptManual:
			if contains(requested, tool.ID) {
				report.Outcomes[tool.ID] = r.execute(ctx, tool, input, false)
			} else {
				report.Outcomes[tool.ID] = Outcome{ToolID: tool.ID, Status: StatusSkipped}
			}
		case prompt.ScriptAutoApproveOnValid:
			report.Outcomes[tool.ID] = r.execute(ctx, tool, input, true)
		}
	}
	return report
}

func (r *Runner) execute(ctx context.Context, tool prompt.ScriptTool, input string, checkValid bool) Outcome {
	result, err := r.executor.Execute(ctx, tool.Command, input)
	outcome := Outcome{ToolID: tool.ID, Output: result.Output, Status: StatusCompleted}

	switch {
	case err != nil:
		outcome.Status = StatusFailed
		outcome.Output = err.Error()
		logger.Warn("script tool failed", "tool", tool.ID, "error", err)
	case result.ExitCode != 0:
		outcome.Status = StatusFailed
		logger.Warn("script tool exited non-zero", "tool", tool.ID, "exit_code", result.ExitCode)
	case checkValid:
		valid := parseValidField(result.Output)
		outcome.Valid = &valid
		if !valid {
			outcome.Status = StatusInvalid
		}
	}

	prometheus.RecordScript(tool.ID, string(outcome.Status), result.Duration.Seconds())
	return outcome
}

// parseValidField reads the "valid" field of a JSON tool output. Output
// that is not JSON, or that lacks the field, counts as valid: only an
// explicit false blocks.
func parseValidField(output string) bool {
	var decoded struct {
		Valid *bool `json:"valid"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &decoded); err != nil {
		return true
	}
	return decoded.Valid == nil || *decoded.Valid
}

// triggered reports whether a tool applies to the input. Tools without
// triggers always apply; otherwise any trigger substring must appear.
func triggered(tool prompt.ScriptTool, input string) bool {
	if len(tool.Triggers) == 0 {
		return true
	}
	lower := strings.ToLower(input)
	for _, trigger := range tool.Triggers {
		if strings.Contains(lower, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if strings.EqualFold(v, item) {
			return true
		}
	}
	return false
}
