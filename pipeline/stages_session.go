package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmespath/go-jmespath"
	"github.com/promptforge/promptforge/args"
	"github.com/promptforge/promptforge/gate"
	"github.com/promptforge/promptforge/logger"
	"github.com/promptforge/promptforge/metrics/prometheus"
	"github.com/promptforge/promptforge/session"
	"github.com/promptforge/promptforge/types"
)

// sessionStage creates the chain blueprint on a chain's first request. A
// resumption arrives here with the blueprint already restored by the parse
// stage. Single-prompt plans pass through untouched.
type sessionStage struct{ deps *Deps }

func (s *sessionStage) Name() string { return StageSession }

func (s *sessionStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	if ec.Plan == nil || !ec.Plan.RequiresSession {
		return nil
	}
	if ec.State.Session.Resumed {
		return nil
	}

	if ec.Request.ForceRestart && ec.Request.ChainID != "" {
		if old, err := s.deps.Sessions.GetBlueprintByChainID(ctx, ec.Request.ChainID, true); err == nil {
			if err := s.deps.Sessions.DeleteBlueprint(ctx, old.SessionID); err != nil {
				logger.Warn("discarding stale chain state failed", "chain_id", ec.Request.ChainID, "error", err)
			}
		}
	}

	now := time.Now()
	bp := &session.Blueprint{
		SessionID:        uuid.NewString(),
		ChainID:          uuid.NewString(),
		PromptID:         ec.Parsed.PromptID,
		Command:          ec.Parsed,
		Plan:             ec.Plan,
		GateInstructions: ec.State.Gates.Guidance,
		CurrentStep:      1,
		TotalSteps:       len(ec.Parsed.Steps),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.deps.Sessions.PutBlueprint(ctx, bp); err != nil {
		return fmt.Errorf("storing chain blueprint: %w", err)
	}

	ec.Blueprint = bp
	ec.StepNumber = 1
	ec.State.Session.SessionID = bp.SessionID
	ec.State.Session.ChainID = bp.ChainID
	ec.Emitter = ec.Emitter.WithSession(bp.SessionID, bp.ChainID)
	return nil
}

// captureResponseStage records the caller's user_response as the output of
// the step the chain was waiting on, and points execution at the next step.
// The step counter itself is committed later, by the advance stage's CAS.
type captureResponseStage struct{ deps *Deps }

func (s *captureResponseStage) Name() string { return StageCaptureResponse }

func (s *captureResponseStage) Execute(_ context.Context, ec *ExecutionContext) error {
	if !ec.State.Session.Resumed || ec.Request.UserResponse == "" {
		return nil
	}

	bp := ec.Blueprint
	step := chainStepAt(ec.Prompt, bp.CurrentStep)
	variableName := ""
	if step != nil {
		variableName = step.VariableName
	}
	bp.RecordStepResult(variableName, ec.Request.UserResponse)
	if step != nil {
		publishOutputs(bp, step.OutputMapping, ec.Request.UserResponse)
	}
	ec.StepNumber = bp.CurrentStep + 1
	return nil
}

// publishOutputs applies a step's output mapping to the captured output.
// Each selector is a JMESPath expression over the output parsed as JSON;
// "@" (or an empty selector) takes the whole text and works for non-JSON
// output too. Selectors that match nothing leave the variable unset.
func publishOutputs(bp *session.Blueprint, mapping map[string]string, output string) {
	if len(mapping) == 0 {
		return
	}
	var doc interface{}
	isJSON := json.Unmarshal([]byte(output), &doc) == nil
	for selector, chainVar := range mapping {
		if chainVar == "" {
			continue
		}
		if selector == "" || selector == "@" {
			bp.SetChainVariable(chainVar, output)
			continue
		}
		if !isJSON {
			logger.Debug("output mapping skipped, step output is not JSON",
				"selector", selector, "variable", chainVar)
			continue
		}
		value, err := jmespath.Search(selector, doc)
		if err != nil || value == nil {
			logger.Debug("output mapping selector matched nothing",
				"selector", selector, "variable", chainVar)
			continue
		}
		bp.SetChainVariable(chainVar, args.Serialize(value))
	}
}

// reviewGatesStage evaluates the captured user_response against the plan's
// validation gates. A blocking failure holds the chain on its current step
// and emits a retry response with guidance; the retry budget and the
// request's gate_action decide what happens when retries run out.
type reviewGatesStage struct{ deps *Deps }

func (s *reviewGatesStage) Name() string { return StageReviewGates }

func (s *reviewGatesStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	if !ec.State.Session.Resumed || ec.Request.UserResponse == "" {
		return nil
	}

	bp := ec.Blueprint

	// An explicit verdict from the caller settles a pending review without
	// re-running the checks.
	if ec.Request.GateVerdict != "" && bp.PendingReview != nil {
		if verdict, ok := gate.ParseVerdict(ec.Request.GateVerdict); ok {
			if verdict.Passed {
				bp.PendingReview = nil
				return nil
			}
			return s.holdStep(ctx, ec, bp.PendingReview.GateIDs, "gate verdict: "+verdict.Reason, nil)
		}
	}

	var validation []*gate.Definition
	for _, def := range ec.State.Gates.Definitions {
		if def.Type == gate.TypeValidation {
			validation = append(validation, def)
		}
	}
	if len(validation) == 0 || s.deps.Evaluator == nil {
		bp.PendingReview = nil
		return nil
	}

	results := s.deps.Evaluator.Evaluate(ctx, validation, ec.Request.UserResponse)
	for _, r := range results {
		prometheus.RecordGateEvaluation(r.GateID, r.Passed)
	}
	ec.State.Gates.Results = results

	failed := gate.FailedBlocking(results)
	if len(failed) == 0 {
		bp.PendingReview = nil
		return nil
	}

	// A step-level retries declaration outranks the gates' own budgets
	// while that step is under review.
	stepRetries := 0
	if step := chainStepAt(ec.Prompt, bp.CurrentStep); step != nil {
		stepRetries = step.Retries
	}

	var gateIDs []string
	exhausted := false
	maxAttempts := 0
	for _, r := range failed {
		gateIDs = append(gateIDs, r.GateID)
		attempt := bp.RecordAttempt(r.GateID)
		budget := defaultGateBudget
		if def, ok := s.lookupGate(ec, r.GateID); ok {
			budget = def.MaxAttempts()
		}
		if stepRetries > 0 {
			budget = stepRetries
		}
		if attempt > budget {
			exhausted = true
			if budget > maxAttempts {
				maxAttempts = budget
			}
		}
		prometheus.RecordGateRetry(r.GateID)
		ec.Emitter.GateFailed(r.GateID, errorMessages(r), r.RetryHints, attempt, true)
	}

	if !exhausted {
		return s.holdStep(ctx, ec, gateIDs, gate.ImprovementFeedback(results), failed)
	}

	action := ec.State.Normalization.GateAction
	for _, id := range gateIDs {
		ec.Emitter.RetryExhausted(id, bp.AttemptsFor(id), string(action))
	}
	switch action {
	case types.GateActionSkip:
		bp.PendingReview = nil
		return nil
	case types.GateActionRetry:
		return s.holdStep(ctx, ec, gateIDs, gate.ImprovementFeedback(results), failed)
	default: // abort
		bp.Dormant = true
		if err := s.deps.Sessions.PutBlueprint(ctx, bp); err != nil {
			logger.Warn("marking aborted chain dormant failed", "session_id", bp.SessionID, "error", err)
		}
		resp := types.NewErrorResponse(fmt.Sprintf(
			"chain aborted: gate(s) %s failed after %d attempts", strings.Join(gateIDs, ", "), maxAttempts))
		resp.SetMeta("error_kind", "gate_failure")
		resp.SetMeta("gate_action", string(types.GateActionAbort))
		resp.SetMeta("gates", gateIDs)
		ec.SetResponse(resp)
		return nil
	}
}

// defaultGateBudget matches the gate definition default for inline gates
// that carry no retry configuration.
const defaultGateBudget = 2

func (s *reviewGatesStage) lookupGate(ec *ExecutionContext, id string) (*gate.Definition, bool) {
	for _, def := range ec.State.Gates.Definitions {
		if strings.EqualFold(def.ID, id) {
			return def, true
		}
	}
	return nil, false
}

// holdStep parks the chain on its current step, persists the pending
// review, and emits a retry response repeating the step's prompt together
// with the failure feedback.
func (s *reviewGatesStage) holdStep(ctx context.Context, ec *ExecutionContext, gateIDs []string, feedback string, failed []gate.ValidationResult) error {
	bp := ec.Blueprint
	attempt := 0
	for _, id := range gateIDs {
		if a := bp.AttemptsFor(id); a > attempt {
			attempt = a
		}
	}
	bp.PendingReview = &session.PendingReview{
		StepNumber: bp.CurrentStep,
		GateIDs:    gateIDs,
		Content:    ec.Request.UserResponse,
		Attempt:    attempt,
	}
	if err := s.deps.Sessions.PutBlueprint(ctx, bp); err != nil {
		return fmt.Errorf("persisting pending review: %w", err)
	}
	ec.Emitter.ResponseBlocked(gateIDs, bp.CurrentStep)

	stepText, err := renderStep(s.deps, ec, bp.CurrentStep)
	if err != nil {
		logger.Warn("re-rendering held step failed", "step", bp.CurrentStep, "error", err)
	}

	var b strings.Builder
	b.WriteString("Gate review failed. Revise your response and resubmit it as user_response, ")
	b.WriteString("or settle the review with gate_verdict (GATE_REVIEW: PASS|FAIL - reason).\n\n")
	if feedback != "" {
		b.WriteString(feedback)
		b.WriteString("\n")
	}
	if stepText != "" {
		b.WriteString("\n")
		b.WriteString(stepText)
	}

	resp := types.NewTextResponse(b.String())
	resp.SetMeta("chain_id", bp.ChainID)
	resp.SetMeta("gate_review", true)
	resp.SetMeta("gates", gateIDs)
	resp.SetMeta("attempt", attempt)
	if hints := improvementHints(failed); len(hints) > 0 {
		resp.SetMeta("improvement_hints", hints)
	}
	ec.SetResponse(resp)
	return nil
}

func errorMessages(r gate.ValidationResult) []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Message)
	}
	return out
}

func improvementHints(failed []gate.ValidationResult) []string {
	var hints []string
	for _, r := range failed {
		hints = append(hints, r.RetryHints...)
	}
	return hints
}
