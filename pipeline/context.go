// Package pipeline implements the staged execution core. A request flows
// through a fixed, ordered sequence of stages that share one mutable
// ExecutionContext; each stage has well-defined pre- and post-conditions
// and the orchestrator enforces the ordering, concurrency limits, and
// lifecycle cleanup.
package pipeline

import (
	"github.com/promptforge/promptforge/args"
	"github.com/promptforge/promptforge/command"
	"github.com/promptforge/promptforge/events"
	"github.com/promptforge/promptforge/framework"
	"github.com/promptforge/promptforge/gate"
	"github.com/promptforge/promptforge/prompt"
	"github.com/promptforge/promptforge/scripts"
	"github.com/promptforge/promptforge/session"
	"github.com/promptforge/promptforge/types"
)

// NormalizationState carries the request options resolved at entry.
type NormalizationState struct {
	Options       map[string]interface{}
	GateAction    types.GateAction
	APIValidation bool
}

// SessionState tracks chain resume bookkeeping.
type SessionState struct {
	SessionID     string
	ChainID       string
	Resumed       bool
	ChainComplete bool
	ForceRestart  bool
}

// GatesState accumulates gate work across stages.
type GatesState struct {
	// AccumulatedGateIDs are the gates active for this request, in plan
	// order with inline gates appended.
	AccumulatedGateIDs []string
	// Definitions are the resolved gates, parallel to AccumulatedGateIDs.
	Definitions []*gate.Definition
	// Guidance is the rendered guidance text per gate.
	Guidance []string
	// Results are the evaluation outcomes from the review stage.
	Results []gate.ValidationResult
}

// ScriptsState carries script tool outcomes.
type ScriptsState struct {
	Detected []prompt.ScriptTool
	Report   *scripts.Report
}

// LifecycleState holds cleanup handlers run after response emission.
type LifecycleState struct {
	cleanups []func()
}

// OnCleanup registers a handler run after the response is emitted.
// Handlers run in registration order, isolated from each other.
func (l *LifecycleState) OnCleanup(fn func()) {
	l.cleanups = append(l.cleanups, fn)
}

// State is the structured sub-object stages read and write.
type State struct {
	Normalization NormalizationState
	Injection     InjectionState
	Session       SessionState
	Gates         GatesState
	Scripts       ScriptsState
	Lifecycle     LifecycleState
}

// ExecutionContext is the per-request bundle threaded through the pipeline.
// It is owned exclusively by the pipeline driving it: stages may mutate it
// freely but it is never shared across requests.
type ExecutionContext struct {
	CommandID string
	Request   *types.ExecutionRequest

	Parsed    *command.ParsedCommand
	Plan      *types.ExecutionPlan
	Prompt    *prompt.Definition
	Arguments *args.Parsed

	Framework             *framework.Definition
	FrameworkSystemPrompt string

	Blueprint *session.Blueprint

	// StepNumber is the chain step being executed (1 for single prompts).
	StepNumber int
	// Rendered is the output of the execute stage before styling.
	Rendered string

	Response *types.ExecutionResponse
	Emitter  *events.Emitter

	State State
}

// currentStep returns the parsed command step being executed, if any.
func (ec *ExecutionContext) currentStep() *command.Step {
	if ec.Parsed == nil {
		return nil
	}
	for i := range ec.Parsed.Steps {
		if ec.Parsed.Steps[i].StepNumber == ec.StepNumber {
			return &ec.Parsed.Steps[i]
		}
	}
	return nil
}

// SetResponse records the terminal response. Once set, the orchestrator
// skips the remaining work stages and proceeds to observation and cleanup.
func (ec *ExecutionContext) SetResponse(resp *types.ExecutionResponse) {
	ec.Response = resp
}

// Responded reports whether a terminal response has been produced.
func (ec *ExecutionContext) Responded() bool { return ec.Response != nil }
