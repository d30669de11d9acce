package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/promptforge/promptforge/args"
	"github.com/promptforge/promptforge/command"
	"github.com/promptforge/promptforge/session"
	"github.com/promptforge/promptforge/types"
)

// normalizeStage captures request options and resolves the effective
// gate action before any parsing happens.
type normalizeStage struct{ deps *Deps }

func (s *normalizeStage) Name() string { return StageNormalize }

func (s *normalizeStage) Execute(_ context.Context, ec *ExecutionContext) error {
	req := ec.Request
	ec.State.Normalization = NormalizationState{
		Options:    req.Options,
		GateAction: s.deps.gateAction(req),
	}
	if req.APIValidation != nil {
		ec.State.Normalization.APIValidation = *req.APIValidation
	}
	if req.Command == "" && !req.IsResumption() {
		return &command.MissingCommandError{}
	}
	return nil
}

// parseCommandStage is the sole writer of ec.Parsed. For a resumption it
// restores the stored parsed command from the chain's blueprint instead of
// parsing; the plan stage restores the plan from the same blueprint.
type parseCommandStage struct{ deps *Deps }

func (s *parseCommandStage) Name() string { return StageParseCommand }

func (s *parseCommandStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	req := ec.Request

	if req.IsResumption() {
		return s.rehydrate(ctx, ec)
	}

	parsed, err := command.Parse(req.Command, s.deps.Prompts)
	if err != nil {
		return err
	}
	command.MergeOptions(parsed, req.Options)
	ec.Parsed = parsed

	def, ok := s.deps.Prompts.Get(parsed.PromptID)
	if !ok {
		return &command.PromptNotFoundError{ID: parsed.PromptID, Suggestions: s.deps.Prompts.Suggest(parsed.PromptID)}
	}
	ec.Prompt = def
	ec.StepNumber = 1
	return nil
}

func (s *parseCommandStage) rehydrate(ctx context.Context, ec *ExecutionContext) error {
	req := ec.Request

	var (
		bp  *session.Blueprint
		err error
	)
	if req.SessionID != "" {
		bp, err = s.deps.Sessions.GetBlueprint(ctx, req.SessionID)
	} else {
		bp, err = s.deps.Sessions.GetBlueprintByChainID(ctx, req.ChainID, false)
	}
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			noun, id := "chain", req.ChainID
			if req.SessionID != "" {
				noun, id = "session", req.SessionID
			}
			resp := types.NewErrorResponse(fmt.Sprintf("%s %q not found: it may have completed or expired", noun, id))
			resp.SetMeta("error_kind", "resource_not_found")
			ec.SetResponse(resp)
			return nil
		}
		return fmt.Errorf("loading chain state: %w", err)
	}
	if req.SessionID != "" && req.ChainID != "" && bp.ChainID != req.ChainID {
		resp := types.NewErrorResponse(fmt.Sprintf(
			"session %q belongs to chain %q, not %q", req.SessionID, bp.ChainID, req.ChainID))
		resp.SetMeta("error_kind", "conflict")
		ec.SetResponse(resp)
		return nil
	}
	// Session ID lookup bypasses the chain index and its dormancy filter.
	if bp.Dormant {
		resp := types.NewErrorResponse(fmt.Sprintf("chain %q is dormant: it completed or aborted", bp.ChainID))
		resp.SetMeta("error_kind", "resource_not_found")
		ec.SetResponse(resp)
		return nil
	}

	ec.Blueprint = bp
	ec.Parsed = bp.Command
	ec.State.Session = SessionState{
		SessionID: bp.SessionID,
		ChainID:   bp.ChainID,
		Resumed:   true,
	}
	ec.Emitter = ec.Emitter.WithSession(bp.SessionID, bp.ChainID)

	if def, ok := s.deps.Prompts.Get(bp.PromptID); ok {
		ec.Prompt = def
	}
	ec.StepNumber = bp.CurrentStep
	return nil
}

// parseArgsStage builds the typed argument map for the target prompt. A
// resumption skips it: the stored command already carries parsed step args.
type parseArgsStage struct{ deps *Deps }

func (s *parseArgsStage) Name() string { return StageParseArgs }

func (s *parseArgsStage) Execute(_ context.Context, ec *ExecutionContext) error {
	if ec.State.Session.Resumed || ec.Prompt == nil {
		return nil
	}

	parsed, err := args.Parse(ec.Parsed.RawArgs, ec.Prompt, ec.State.Normalization.Options, nil)
	if err != nil {
		return err
	}
	ec.Arguments = parsed
	return nil
}
