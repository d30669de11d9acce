package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/promptforge/promptforge/session"
	"github.com/promptforge/promptforge/types"
)

// executeStepStage is the sole writer of the rendered output. Single
// prompts render directly; chains render the step the session points at. A
// chain whose steps are all consumed yields a completion stub instead.
type executeStepStage struct{ deps *Deps }

func (s *executeStepStage) Name() string { return StageExecuteStep }

func (s *executeStepStage) Execute(_ context.Context, ec *ExecutionContext) error {
	if ec.Prompt == nil || ec.Plan == nil {
		return errors.New("execute reached without a resolved prompt and plan")
	}

	if ec.Plan.Strategy != types.StrategyChain {
		rendered, err := renderSingle(s.deps, ec)
		if err != nil {
			return err
		}
		ec.Rendered = rendered
		return nil
	}

	bp := ec.Blueprint
	if bp == nil {
		return errors.New("chain execution reached without a session blueprint")
	}
	if ec.StepNumber > bp.TotalSteps {
		ec.State.Session.ChainComplete = true
		ec.Rendered = fmt.Sprintf("Chain %q complete: all %d steps executed.", bp.PromptID, bp.TotalSteps)
		return nil
	}

	rendered, err := renderStep(s.deps, ec, ec.StepNumber)
	if err != nil {
		return err
	}
	ec.Rendered = rendered
	return nil
}

// advanceChainStage commits the step advance of a resumed chain with a CAS
// on the stored step counter. Concurrent resumes of the same session race
// here; exactly one wins, the loser gets a conflict response.
type advanceChainStage struct{ deps *Deps }

func (s *advanceChainStage) Name() string { return StageAdvanceChain }

func (s *advanceChainStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	if ec.Plan == nil || ec.Plan.Strategy != types.StrategyChain {
		return nil
	}
	if !ec.State.Session.Resumed {
		// First request: the session stage stored the blueprint at step 1.
		return nil
	}

	bp := ec.Blueprint
	expected := bp.CurrentStep
	if ec.StepNumber == expected {
		// Held on the same step (gate review); nothing advanced.
		return nil
	}

	bp.CurrentStep = ec.StepNumber
	if err := s.deps.Sessions.CompareAndSwap(ctx, bp.SessionID, expected, bp); err != nil {
		if errors.Is(err, session.ErrConflict) {
			bp.CurrentStep = expected
			resp := types.NewErrorResponse("chain was advanced by a concurrent request; fetch the latest step and retry")
			resp.SetMeta("error_kind", "conflict")
			resp.SetMeta("chain_id", bp.ChainID)
			ec.SetResponse(resp)
			return nil
		}
		return fmt.Errorf("advancing chain %s: %w", bp.ChainID, err)
	}
	return nil
}
