package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/promptforge/promptforge/logger"
	"github.com/promptforge/promptforge/types"
)

// applyStyleStage merges style guidance into the rendered output. An
// explicit #style selection must resolve; otherwise the highest-priority
// style activating for the prompt's category applies.
type applyStyleStage struct{ deps *Deps }

func (s *applyStyleStage) Name() string { return StageApplyStyle }

func (s *applyStyleStage) Execute(_ context.Context, ec *ExecutionContext) error {
	if ec.Rendered == "" || !ec.State.Injection.Allows(InjectStyleGuidance) {
		return nil
	}

	selection := ec.Request.Style
	if selection == "" && ec.Plan != nil {
		selection = ec.Plan.Modifiers.Style
	}

	if selection != "" {
		def, ok := s.deps.Styles.Get(selection)
		if !ok {
			ec.SetResponse(notFoundResponse("style", selection, s.deps.Styles.Suggest(selection)))
			return nil
		}
		ec.Rendered = def.Apply(ec.Rendered)
		return nil
	}

	category, frameworkID := "", ""
	if ec.Prompt != nil {
		category = ec.Prompt.Category
	}
	if ec.Framework != nil {
		frameworkID = ec.Framework.ID
	}
	if active := s.deps.Styles.ActiveFor(category, frameworkID); len(active) > 0 {
		ec.Rendered = active[0].Apply(ec.Rendered)
	}
	return nil
}

// formatResponseStage assembles the terminal response: final for single
// prompts and completed chains, intermediate with a call to action for
// chains awaiting the next user_response.
type formatResponseStage struct{ deps *Deps }

func (s *formatResponseStage) Name() string { return StageFormatResponse }

func (s *formatResponseStage) Execute(_ context.Context, ec *ExecutionContext) error {
	if ec.Plan == nil {
		return nil
	}

	if ec.Plan.Strategy != types.StrategyChain {
		resp := types.NewTextResponse(ec.Rendered)
		resp.SetMeta("prompt_id", ec.Prompt.ID)
		ec.SetResponse(resp)
		return nil
	}

	bp := ec.Blueprint
	if ec.State.Session.ChainComplete {
		resp := types.NewTextResponse(ec.Rendered)
		resp.SetMeta("chain_id", bp.ChainID)
		resp.SetMeta("chain_complete", true)
		resp.SetMeta("total_steps", bp.TotalSteps)
		ec.SetResponse(resp)
		return nil
	}

	callToAction := fmt.Sprintf(
		"Execute step %d of %d%s, then resume with chain_id %q and the result as user_response.",
		ec.StepNumber, bp.TotalSteps, stepLabel(ec), bp.ChainID)

	resp := types.NewTextResponse(ec.Rendered + "\n\n" + callToAction)
	resp.SetMeta("chain_id", bp.ChainID)
	resp.SetMeta("current_step", ec.StepNumber)
	resp.SetMeta("total_steps", bp.TotalSteps)
	resp.SetMeta("call_to_action", callToAction)
	ec.SetResponse(resp)
	return nil
}

// stepLabel names the current step's prompt for the call to action.
func stepLabel(ec *ExecutionContext) string {
	if step := ec.currentStep(); step != nil {
		return fmt.Sprintf(" (%s)", step.PromptID)
	}
	return ""
}

// observeStage emits the chain progression notifications and the final
// request log line. It runs even for terminal error responses.
type observeStage struct{ deps *Deps }

func (s *observeStage) Name() string { return StageObserve }

func (s *observeStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	bp := ec.Blueprint
	isError := ec.Response != nil && ec.Response.IsError

	if bp != nil && !isError {
		if ec.State.Session.ChainComplete {
			ec.Emitter.ChainComplete(bp.PromptID, bp.TotalSteps, time.Since(bp.CreatedAt))
		} else if bp.PendingReview == nil {
			ec.Emitter.ChainStepComplete(bp.PromptID, ec.StepNumber, bp.TotalSteps)
		}
	}

	logger.InfoContext(ctx, "request finished",
		"command_id", ec.CommandID,
		"error", isError,
		"chain", bp != nil,
	)
	return nil
}

// cleanupStage runs the lifecycle handlers registered during the request.
// Handlers are isolated: a panicking cleanup is logged and the rest run.
type cleanupStage struct{}

func (s *cleanupStage) Name() string { return StageCleanup }

func (s *cleanupStage) Execute(_ context.Context, ec *ExecutionContext) error {
	for _, fn := range ec.State.Lifecycle.cleanups {
		runCleanup(fn)
	}
	ec.State.Lifecycle.cleanups = nil
	return nil
}

func runCleanup(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cleanup handler panicked", "panic", r)
		}
	}()
	fn()
}
