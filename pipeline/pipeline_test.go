package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/promptforge/framework"
	"github.com/promptforge/promptforge/gate"
	"github.com/promptforge/promptforge/prompt"
	"github.com/promptforge/promptforge/session"
	"github.com/promptforge/promptforge/style"
	"github.com/promptforge/promptforge/types"
)

func testDeps(t *testing.T) *Deps {
	t.Helper()

	prompts := prompt.NewRegistry()
	prompts.Register(&prompt.Definition{
		ID: "greet", Name: "Greet", Category: "examples",
		UserMessageTemplate: "Hello, {{name}}!",
		Arguments:           []prompt.Argument{{Name: "name", Type: prompt.ArgString, Required: true}},
	})
	prompts.Register(&prompt.Definition{
		ID: "analyze", Name: "Analyze", Category: "analysis",
		UserMessageTemplate: "Analyze the topic: {{topic}}",
		Arguments:           []prompt.Argument{{Name: "topic", Type: prompt.ArgString, Required: true}},
	})
	prompts.Register(&prompt.Definition{
		ID: "index", Name: "Index", Category: "examples",
		UserMessageTemplate: "Index of everything.",
	})
	prompts.Register(&prompt.Definition{
		ID: "clarify", Name: "Clarify", Category: "workflow",
		UserMessageTemplate: "Clarify the request: {{topic}}",
		Arguments:           []prompt.Argument{{Name: "topic", Type: prompt.ArgString}},
	})
	prompts.Register(&prompt.Definition{
		ID: "plan-step", Name: "Plan Step", Category: "workflow",
		UserMessageTemplate: "Plan the work based on:\n{{previous_step_result}}",
	})
	prompts.Register(&prompt.Definition{
		ID: "workflow", Name: "Workflow", Category: "workflow",
		ChainSteps: []prompt.ChainStep{
			{StepNumber: 1, PromptID: "clarify", VariableName: "clarification"},
			{StepNumber: 2, PromptID: "plan-step"},
		},
	})
	prompts.Register(&prompt.Definition{
		ID: "review-chain", Name: "Review Chain", Category: "workflow",
		Gates: prompt.GateConfig{Include: []string{"sources-official"}},
		ChainSteps: []prompt.ChainStep{
			{StepNumber: 1, PromptID: "clarify", VariableName: "clarification"},
			{StepNumber: 2, PromptID: "plan-step"},
		},
	})
	prompts.Register(&prompt.Definition{
		ID: "extract-chain", Name: "Extract Chain", Category: "workflow",
		ChainSteps: []prompt.ChainStep{
			{StepNumber: 1, PromptID: "clarify", VariableName: "clarification",
				OutputMapping: map[string]string{"summary": "summary_text"}},
			{StepNumber: 2, PromptID: "analyze",
				InputMapping: map[string]string{"topic": "summary_text"}},
		},
	})
	prompts.Register(&prompt.Definition{
		ID: "strict-chain", Name: "Strict Chain", Category: "workflow",
		Gates: prompt.GateConfig{Include: []string{"sources-official"}},
		ChainSteps: []prompt.ChainStep{
			{StepNumber: 1, PromptID: "clarify", VariableName: "clarification", Retries: 1},
			{StepNumber: 2, PromptID: "plan-step"},
		},
	})

	gates := gate.NewRegistry()
	gates.Register(&gate.Definition{
		ID:              "sources-official",
		Name:            "Sources Must Be Official",
		Type:            gate.TypeValidation,
		EnforcementMode: gate.EnforcementBlocking,
		Guidance:        "Cite official sources with links.",
		PassCriteria: []gate.PassCriterion{{
			Check:  "phrase",
			Params: map[string]interface{}{"require": []interface{}{"http"}},
		}},
		Retry: gate.RetryConfig{
			MaxAttempts:      2,
			ImprovementHints: []string{"include official links"},
		},
	})

	return &Deps{
		Prompts:    prompts,
		Gates:      gates,
		Frameworks: framework.NewRegistry(),
		Styles:     style.NewRegistry(),
		Sessions:   session.NewMemoryStore(),
		Evaluator:  gate.NewEvaluator(),
	}
}

func execute(t *testing.T, p *Pipeline, req *types.ExecutionRequest) *types.ExecutionResponse {
	t.Helper()
	resp, err := p.Execute(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func TestStageSequenceIsFixed(t *testing.T) {
	want := []string{
		StageNormalize, StageParseCommand, StageParseArgs, StagePlan,
		StageDetectScripts, StageExecuteScripts, StageResolveFramework,
		StageEnhanceGates, StageInjectionControl, StageSession,
		StageCaptureResponse, StageReviewGates, StageExecuteStep,
		StageAdvanceChain, StageApplyStyle, StageFormatResponse,
		StageObserve, StageCleanup,
	}
	stages := testDeps(t).stages()
	require.Len(t, stages, len(want))
	for i, stage := range stages {
		assert.Equal(t, want[i], stage.Name())
	}
}

func TestSinglePromptRendersTemplate(t *testing.T) {
	p := New(testDeps(t))
	resp := execute(t, p, &types.ExecutionRequest{Command: `>>greet name="Ada"`})

	assert.False(t, resp.IsError)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(resp.Text()), "Hello, Ada!"), "got %q", resp.Text())
	assert.Equal(t, "greet", resp.Metadata["prompt_id"])
}

func TestMissingRequiredArgument(t *testing.T) {
	p := New(testDeps(t))
	resp := execute(t, p, &types.ExecutionRequest{Command: ">>greet"})

	assert.True(t, resp.IsError)
	assert.Contains(t, resp.Text(), "REQUIRED_ARGUMENT_MISSING")
	assert.Contains(t, resp.Text(), "name")
	assert.Equal(t, "argument_validation", resp.Metadata["error_kind"])
}

func TestUnknownPromptSuggestsCloseMatch(t *testing.T) {
	p := New(testDeps(t))
	resp := execute(t, p, &types.ExecutionRequest{Command: ">>idx"})

	assert.True(t, resp.IsError)
	assert.Equal(t, "resource_not_found", resp.Metadata["error_kind"])
	assert.Contains(t, resp.Text(), "index")
}

func TestMissingCommand(t *testing.T) {
	p := New(testDeps(t))
	resp := execute(t, p, &types.ExecutionRequest{})

	assert.True(t, resp.IsError)
	assert.Equal(t, "parsing_failure", resp.Metadata["error_kind"])
}

func TestFrameworkOverrideWithAnonymousGate(t *testing.T) {
	deps := testDeps(t)

	ec := &ExecutionContext{Request: &types.ExecutionRequest{
		Command: `@ReACT :: "concise" >>analyze topic="graphs"`,
	}}
	ctx := context.Background()
	for _, stage := range deps.stages()[:4] { // normalize through plan
		require.NoError(t, stage.Execute(ctx, ec))
	}

	require.NotNil(t, ec.Plan)
	assert.Equal(t, "ReACT", ec.Plan.Modifiers.Framework)
	assert.Contains(t, ec.Plan.Gates, "inline-gate-1")
	assert.True(t, ec.Plan.RequiresFramework)
}

func TestFrameworkSystemPromptInjectedOnce(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)

	resp := execute(t, p, &types.ExecutionRequest{Command: `@ReACT >>analyze topic="graphs"`})
	require.False(t, resp.IsError, resp.Text())

	marker := "Apply the ReACT methodology systematically"
	assert.Equal(t, 1, strings.Count(resp.Text(), marker))
	assert.Contains(t, resp.Text(), "Analyze the topic: graphs")
}

func TestDoubleInjectionGuard(t *testing.T) {
	deps := testDeps(t)
	marker := "Apply the C.A.G.E.E.R.F methodology systematically"
	deps.Prompts.Register(&prompt.Definition{
		ID: "framed", Name: "Framed", Category: "analysis",
		SystemMessage:       "Already framed. " + marker,
		UserMessageTemplate: "Do the work on {{topic}}.",
		Arguments:           []prompt.Argument{{Name: "topic", Type: prompt.ArgString}},
	})
	p := New(deps)

	resp := execute(t, p, &types.ExecutionRequest{Command: `@CAGEERF >>framed topic="x"`})
	require.False(t, resp.IsError, resp.Text())
	assert.Equal(t, 1, strings.Count(resp.Text(), marker),
		"prompts carrying the marker must not get the framework prepended")
}

func TestChainLifecycle(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)
	ctx := context.Background()

	resp := execute(t, p, &types.ExecutionRequest{Command: `>>workflow topic="graphs"`})
	require.False(t, resp.IsError, resp.Text())
	assert.Contains(t, resp.Text(), "Clarify the request: graphs")
	assert.Contains(t, resp.Text(), "resume with chain_id")
	assert.Equal(t, 1, resp.Metadata["current_step"])
	assert.Equal(t, 2, resp.Metadata["total_steps"])

	chainID, ok := resp.Metadata["chain_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, chainID)

	// First resume: step 1 output captured, step 2 rendered.
	resp = execute(t, p, &types.ExecutionRequest{
		ChainID:      chainID,
		UserResponse: "the user wants a graph library comparison",
	})
	require.False(t, resp.IsError, resp.Text())
	assert.Contains(t, resp.Text(), "Plan the work based on:")
	assert.Contains(t, resp.Text(), "graph library comparison")
	assert.Equal(t, 2, resp.Metadata["current_step"])

	bp, err := deps.Sessions.GetBlueprintByChainID(ctx, chainID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, bp.CurrentStep)
	assert.Equal(t, "the user wants a graph library comparison", bp.StepResults["clarification"])

	// Second resume: chain complete, blueprint goes dormant.
	resp = execute(t, p, &types.ExecutionRequest{
		ChainID:      chainID,
		UserResponse: "the plan",
	})
	require.False(t, resp.IsError, resp.Text())
	assert.Equal(t, true, resp.Metadata["chain_complete"])

	_, err = deps.Sessions.GetBlueprintByChainID(ctx, chainID, false)
	assert.ErrorIs(t, err, session.ErrNotFound)

	bp, err = deps.Sessions.GetBlueprintByChainID(ctx, chainID, true)
	require.NoError(t, err)
	assert.True(t, bp.Dormant)
	assert.Equal(t, 3, bp.CurrentStep)
}

func TestResumptionRestoresBlueprintVerbatim(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)
	ctx := context.Background()

	resp := execute(t, p, &types.ExecutionRequest{Command: `>>workflow topic="graphs"`})
	chainID := resp.Metadata["chain_id"].(string)
	bp, err := deps.Sessions.GetBlueprintByChainID(ctx, chainID, false)
	require.NoError(t, err)

	ec := &ExecutionContext{Request: &types.ExecutionRequest{
		ChainID:      chainID,
		UserResponse: "clarified",
	}}
	stages := deps.stages()
	require.NoError(t, stages[0].Execute(ctx, ec)) // normalize
	require.NoError(t, stages[1].Execute(ctx, ec)) // parse_command
	require.NoError(t, stages[3].Execute(ctx, ec)) // plan

	assert.Equal(t, bp.Command, ec.Parsed)
	assert.Equal(t, bp.Plan, ec.Plan)
	assert.True(t, ec.State.Session.Resumed)
}

func TestUnknownChainID(t *testing.T) {
	p := New(testDeps(t))
	resp := execute(t, p, &types.ExecutionRequest{
		ChainID:      "no-such-chain",
		UserResponse: "anything",
	})
	assert.True(t, resp.IsError)
	assert.Equal(t, "resource_not_found", resp.Metadata["error_kind"])
}

func TestOutputMappingPublishesChainVariables(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)
	ctx := context.Background()

	resp := execute(t, p, &types.ExecutionRequest{Command: `>>extract-chain topic="graphs"`})
	require.False(t, resp.IsError, resp.Text())
	chainID := resp.Metadata["chain_id"].(string)

	resp = execute(t, p, &types.ExecutionRequest{
		ChainID:      chainID,
		UserResponse: `{"summary": "compare graph libraries", "detail": "long form notes"}`,
	})
	require.False(t, resp.IsError, resp.Text())
	assert.Contains(t, resp.Text(), "Analyze the topic: compare graph libraries",
		"mapped variable feeds the next step's input mapping")

	bp, err := deps.Sessions.GetBlueprintByChainID(ctx, chainID, false)
	require.NoError(t, err)
	assert.Equal(t, "compare graph libraries", bp.StepResults["summary_text"])
	assert.Contains(t, bp.StepResults["clarification"], "long form notes",
		"variable_name still records the full output")
}

func TestPublishOutputsSelectors(t *testing.T) {
	bp := &session.Blueprint{}
	publishOutputs(bp, map[string]string{
		"@":           "raw",
		"meta.author": "author",
		"missing":     "gone",
	}, `{"meta": {"author": "ada"}}`)

	assert.Equal(t, `{"meta": {"author": "ada"}}`, bp.StepResults["raw"])
	assert.Equal(t, "ada", bp.StepResults["author"])
	_, ok := bp.StepResults["gone"]
	assert.False(t, ok, "unmatched selector leaves the variable unset")

	plain := &session.Blueprint{}
	publishOutputs(plain, map[string]string{"@": "raw", "summary": "summary"}, "not json")
	assert.Equal(t, "not json", plain.StepResults["raw"])
	_, ok = plain.StepResults["summary"]
	assert.False(t, ok, "path selectors need JSON output")
}

func TestStepRetriesOverrideGateBudget(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)

	resp := execute(t, p, &types.ExecutionRequest{Command: `>>strict-chain topic="graphs"`})
	require.False(t, resp.IsError, resp.Text())
	chainID := resp.Metadata["chain_id"].(string)

	// One failing attempt fits the step's budget of 1 and holds the step.
	resp = execute(t, p, &types.ExecutionRequest{ChainID: chainID, UserResponse: "no links here"})
	require.False(t, resp.IsError, resp.Text())
	assert.Equal(t, true, resp.Metadata["gate_review"])

	// The gate's own budget of 2 would allow another retry, but the step
	// caps attempts at 1, so the chain aborts now.
	resp = execute(t, p, &types.ExecutionRequest{ChainID: chainID, UserResponse: "still no links"})
	assert.True(t, resp.IsError)
	assert.Equal(t, "gate_failure", resp.Metadata["error_kind"])
}

func TestCustomChecksJoinThePlan(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()
	ec := &ExecutionContext{Request: &types.ExecutionRequest{
		Command:      `>>greet name="Ada"`,
		QualityGates: []string{"sources-official"},
		CustomChecks: []string{"house-style", "sources-official"},
	}}
	stages := deps.stages()
	require.NoError(t, stages[0].Execute(ctx, ec)) // normalize
	require.NoError(t, stages[1].Execute(ctx, ec)) // parse_command
	require.NoError(t, stages[3].Execute(ctx, ec)) // plan

	assert.Equal(t, []string{"sources-official", "house-style"}, ec.Plan.Gates,
		"custom checks join the gate selection once")
}

func TestResumeBySessionID(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)
	ctx := context.Background()

	resp := execute(t, p, &types.ExecutionRequest{Command: `>>workflow topic="graphs"`})
	chainID := resp.Metadata["chain_id"].(string)
	bp, err := deps.Sessions.GetBlueprintByChainID(ctx, chainID, false)
	require.NoError(t, err)

	resp = execute(t, p, &types.ExecutionRequest{
		SessionID:    bp.SessionID,
		UserResponse: "the user wants a graph library comparison",
	})
	require.False(t, resp.IsError, resp.Text())
	assert.Contains(t, resp.Text(), "Plan the work based on:")
	assert.Equal(t, 2, resp.Metadata["current_step"])
}

func TestResumeBySessionIDRejectsChainMismatch(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)
	ctx := context.Background()

	resp := execute(t, p, &types.ExecutionRequest{Command: `>>workflow topic="graphs"`})
	chainID := resp.Metadata["chain_id"].(string)
	bp, err := deps.Sessions.GetBlueprintByChainID(ctx, chainID, false)
	require.NoError(t, err)

	resp = execute(t, p, &types.ExecutionRequest{
		SessionID:    bp.SessionID,
		ChainID:      "some-other-chain",
		UserResponse: "anything",
	})
	assert.True(t, resp.IsError)
	assert.Equal(t, "conflict", resp.Metadata["error_kind"])
}

func TestResumeByUnknownSessionID(t *testing.T) {
	p := New(testDeps(t))
	resp := execute(t, p, &types.ExecutionRequest{
		SessionID:    "no-such-session",
		UserResponse: "anything",
	})
	assert.True(t, resp.IsError)
	assert.Equal(t, "resource_not_found", resp.Metadata["error_kind"])
}

func TestGateRetryLimitThenAbort(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)
	ctx := context.Background()

	resp := execute(t, p, &types.ExecutionRequest{Command: `>>review-chain topic="graphs"`})
	require.False(t, resp.IsError, resp.Text())
	chainID := resp.Metadata["chain_id"].(string)

	// Two failing attempts stay within the budget and hold the step.
	for attempt := 1; attempt <= 2; attempt++ {
		resp = execute(t, p, &types.ExecutionRequest{
			ChainID:      chainID,
			UserResponse: "no links here",
		})
		require.False(t, resp.IsError, "attempt %d should be a retry response", attempt)
		assert.Equal(t, true, resp.Metadata["gate_review"])
		assert.Equal(t, attempt, resp.Metadata["attempt"])
		assert.Contains(t, resp.Text(), "include official links")
		assert.Contains(t, resp.Text(), "Clarify the request", "retry repeats the held step's prompt")

		bp, err := deps.Sessions.GetBlueprintByChainID(ctx, chainID, false)
		require.NoError(t, err)
		assert.Equal(t, 1, bp.CurrentStep, "step must not advance while the gate holds it")
		require.NotNil(t, bp.PendingReview)
	}

	// Third failure exhausts the budget; without a gate_action the chain aborts.
	resp = execute(t, p, &types.ExecutionRequest{
		ChainID:      chainID,
		UserResponse: "still no links",
	})
	assert.True(t, resp.IsError)
	assert.Equal(t, "gate_failure", resp.Metadata["error_kind"])
	assert.Equal(t, "abort", resp.Metadata["gate_action"])

	_, err := deps.Sessions.GetBlueprintByChainID(ctx, chainID, false)
	assert.ErrorIs(t, err, session.ErrNotFound, "aborted chain is dormant")
}

func TestGatePassAdvancesChain(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)

	resp := execute(t, p, &types.ExecutionRequest{Command: `>>review-chain topic="graphs"`})
	chainID := resp.Metadata["chain_id"].(string)

	resp = execute(t, p, &types.ExecutionRequest{
		ChainID:      chainID,
		UserResponse: "see https://example.org/official",
	})
	require.False(t, resp.IsError, resp.Text())
	assert.Equal(t, 2, resp.Metadata["current_step"])
	assert.Contains(t, resp.Text(), "Plan the work based on:")
}

func TestGateVerdictPassSettlesReview(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)

	resp := execute(t, p, &types.ExecutionRequest{Command: `>>review-chain topic="graphs"`})
	chainID := resp.Metadata["chain_id"].(string)

	resp = execute(t, p, &types.ExecutionRequest{
		ChainID:      chainID,
		UserResponse: "no links",
	})
	require.Equal(t, true, resp.Metadata["gate_review"])

	// A PASS verdict overrides the automated check.
	resp = execute(t, p, &types.ExecutionRequest{
		ChainID:      chainID,
		UserResponse: "no links",
		GateVerdict:  "GATE_REVIEW: PASS - sources checked manually",
	})
	require.False(t, resp.IsError, resp.Text())
	assert.Equal(t, 2, resp.Metadata["current_step"])
}

func TestGateActionSkipAtExhaustion(t *testing.T) {
	deps := testDeps(t)
	p := New(deps)

	resp := execute(t, p, &types.ExecutionRequest{Command: `>>review-chain topic="graphs"`})
	chainID := resp.Metadata["chain_id"].(string)

	for i := 0; i < 2; i++ {
		resp = execute(t, p, &types.ExecutionRequest{ChainID: chainID, UserResponse: "no links"})
		require.Equal(t, true, resp.Metadata["gate_review"])
	}

	resp = execute(t, p, &types.ExecutionRequest{
		ChainID:      chainID,
		UserResponse: "no links",
		GateAction:   types.GateActionSkip,
	})
	require.False(t, resp.IsError, resp.Text())
	assert.Equal(t, 2, resp.Metadata["current_step"], "skip lets the chain advance past the gate")
}

func TestStyleApplied(t *testing.T) {
	deps := testDeps(t)
	deps.Styles.Register(&style.Definition{
		ID: "analytical", Name: "Analytical",
		Guidance:        "Be analytical.",
		EnhancementMode: style.ModeAppend,
	})
	p := New(deps)

	yes := true
	resp := execute(t, p, &types.ExecutionRequest{
		Command:   `#analytical >>greet name="Ada"`,
		Injection: map[string]*bool{string(InjectStyleGuidance): &yes},
	})
	require.False(t, resp.IsError, resp.Text())
	assert.Contains(t, resp.Text(), "Hello, Ada!")
	assert.Contains(t, resp.Text(), "Be analytical.")
}

func TestUnknownStyle(t *testing.T) {
	deps := testDeps(t)
	deps.Styles.Register(&style.Definition{ID: "analytical", Name: "Analytical", Guidance: "x"})
	p := New(deps)

	yes := true
	resp := execute(t, p, &types.ExecutionRequest{
		Command:   `#analytcal >>greet name="Ada"`,
		Injection: map[string]*bool{string(InjectStyleGuidance): &yes},
	})
	assert.True(t, resp.IsError)
	assert.Equal(t, "resource_not_found", resp.Metadata["error_kind"])
	assert.Contains(t, resp.Text(), "analytical")
}

func TestCleanupHandlersRunIsolated(t *testing.T) {
	var ran []string
	ec := &ExecutionContext{}
	ec.State.Lifecycle.OnCleanup(func() { ran = append(ran, "first") })
	ec.State.Lifecycle.OnCleanup(func() { panic("boom") })
	ec.State.Lifecycle.OnCleanup(func() { ran = append(ran, "third") })

	stage := &cleanupStage{}
	require.NoError(t, stage.Execute(context.Background(), ec))
	assert.Equal(t, []string{"first", "third"}, ran)
}

func TestShutdownRejectsNewRequests(t *testing.T) {
	p := New(testDeps(t))
	require.NoError(t, p.Shutdown(context.Background()))

	_, err := p.Execute(context.Background(), &types.ExecutionRequest{Command: ">>greet"})
	assert.ErrorIs(t, err, ErrShuttingDown)
}
