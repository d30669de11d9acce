package pipeline

import (
	"context"
	"time"

	"github.com/promptforge/promptforge/events"
	"github.com/promptforge/promptforge/framework"
	"github.com/promptforge/promptforge/gate"
	"github.com/promptforge/promptforge/prompt"
	"github.com/promptforge/promptforge/scripts"
	"github.com/promptforge/promptforge/session"
	"github.com/promptforge/promptforge/style"
	"github.com/promptforge/promptforge/types"
)

// Stage names, in execution order.
const (
	StageNormalize        = "normalize"
	StageParseCommand     = "parse_command"
	StageParseArgs        = "parse_args"
	StagePlan             = "plan"
	StageDetectScripts    = "detect_scripts"
	StageExecuteScripts   = "execute_scripts"
	StageResolveFramework = "resolve_framework"
	StageEnhanceGates     = "enhance_gates"
	StageInjectionControl = "injection_control"
	StageSession          = "session"
	StageCaptureResponse  = "capture_response"
	StageReviewGates      = "review_gates"
	StageExecuteStep      = "execute_step"
	StageAdvanceChain     = "advance_chain"
	StageApplyStyle       = "apply_style"
	StageFormatResponse   = "format_response"
	StageObserve          = "observe"
	StageCleanup          = "cleanup"
)

// Stage is one unit of the execution sequence. Execute mutates the shared
// ExecutionContext; returning an error terminates the request with an error
// response. Setting ec.Response terminates it with that response instead.
type Stage interface {
	Name() string
	Execute(ctx context.Context, ec *ExecutionContext) error
}

// Config tunes pipeline behaviour.
type Config struct {
	// DefaultFramework is the methodology applied when the plan requires one
	// and the request carries no override.
	DefaultFramework string

	// DefaultGateAction applies at retry exhaustion when the request is
	// silent. Defaults to abort.
	DefaultGateAction types.GateAction

	// CategoryInjection maps prompt category to per-type injection rules
	// (hierarchy level 5).
	CategoryInjection map[string]map[string]*bool

	// GlobalInjection holds the configured per-type defaults (level 6).
	GlobalInjection map[string]*bool

	// MaxConcurrent bounds simultaneously executing requests.
	MaxConcurrent int64

	// ExecutionTimeout bounds one request end to end.
	ExecutionTimeout time.Duration
}

// Deps bundles the collaborators every stage draws on.
type Deps struct {
	Prompts    *prompt.Registry
	Gates      *gate.Registry
	Frameworks *framework.Registry
	Styles     *style.Registry
	Sessions   session.Store
	Evaluator  *gate.Evaluator
	Scripts    *scripts.Runner
	Bus        *events.Bus
	Config     Config
}

// gateAction resolves the effective retry-exhaustion action for a request.
func (d *Deps) gateAction(req *types.ExecutionRequest) types.GateAction {
	if req.GateAction != "" {
		return req.GateAction
	}
	if d.Config.DefaultGateAction != "" {
		return d.Config.DefaultGateAction
	}
	return types.GateActionAbort
}

// stages builds the fixed stage sequence.
func (d *Deps) stages() []Stage {
	return []Stage{
		&normalizeStage{deps: d},
		&parseCommandStage{deps: d},
		&parseArgsStage{deps: d},
		&planStage{deps: d},
		&detectScriptsStage{deps: d},
		&executeScriptsStage{deps: d},
		&resolveFrameworkStage{deps: d},
		&enhanceGatesStage{deps: d},
		&injectionControlStage{deps: d},
		&sessionStage{deps: d},
		&captureResponseStage{deps: d},
		&reviewGatesStage{deps: d},
		&executeStepStage{deps: d},
		&advanceChainStage{deps: d},
		&applyStyleStage{deps: d},
		&formatResponseStage{deps: d},
		&observeStage{deps: d},
		&cleanupStage{},
	}
}
