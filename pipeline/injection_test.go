package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/promptforge/prompt"
	"github.com/promptforge/promptforge/session"
	"github.com/promptforge/promptforge/types"
)

func boolPtr(v bool) *bool { return &v }

func TestResolveWalksLevelsTopDown(t *testing.T) {
	tests := []struct {
		name       string
		query      Query
		wantInject bool
		wantSource DecisionSource
	}{
		{
			name:       "session override wins over everything",
			query:      Query{Type: InjectSystemPrompt, SessionOverride: boolPtr(false), RequestOverride: boolPtr(true), GlobalDefault: boolPtr(true), Step: 1},
			wantInject: false,
			wantSource: SourceSessionOverride,
		},
		{
			name:       "request override beats step annotation",
			query:      Query{Type: InjectGateGuidance, RequestOverride: boolPtr(true), StepAnnotation: boolPtr(false), Step: 3},
			wantInject: true,
			wantSource: SourceRequestOverride,
		},
		{
			name:       "step annotation beats chain rule",
			query:      Query{Type: InjectStyleGuidance, StepAnnotation: boolPtr(true), ChainRule: boolPtr(false), Step: 2},
			wantInject: true,
			wantSource: SourceStepAnnotation,
		},
		{
			name:       "chain rule beats category rule",
			query:      Query{Type: InjectSystemPrompt, ChainRule: boolPtr(false), CategoryRule: boolPtr(true), Step: 1},
			wantInject: false,
			wantSource: SourceChainRule,
		},
		{
			name:       "category rule beats global default",
			query:      Query{Type: InjectGateGuidance, CategoryRule: boolPtr(true), GlobalDefault: boolPtr(false), Step: 1},
			wantInject: true,
			wantSource: SourceCategoryRule,
		},
		{
			name:       "global default beats fallback",
			query:      Query{Type: InjectSystemPrompt, GlobalDefault: boolPtr(false), Step: 1},
			wantInject: false,
			wantSource: SourceGlobalDefault,
		},
		{
			name:       "fallback injects system prompt on step 1",
			query:      Query{Type: InjectSystemPrompt, Step: 1},
			wantInject: true,
			wantSource: SourceFallback,
		},
		{
			name:       "fallback does not inject system prompt on step 2",
			query:      Query{Type: InjectSystemPrompt, Step: 2},
			wantInject: false,
			wantSource: SourceFallback,
		},
		{
			name:       "fallback never injects gate guidance",
			query:      Query{Type: InjectGateGuidance, Step: 1},
			wantInject: false,
			wantSource: SourceFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Resolve(tt.query)
			assert.Equal(t, tt.wantInject, d.Inject)
			assert.Equal(t, tt.wantSource, d.Source)
		})
	}
}

// TestInjectionStageSourcePerLevel sets exactly one hierarchy level per case
// and asserts the stage attributes the decision to it.
func TestInjectionStageSourcePerLevel(t *testing.T) {
	key := string(InjectSystemPrompt)

	chainPrompt := func(stepInjection, chainInjection map[string]*bool) *prompt.Definition {
		return &prompt.Definition{
			ID:       "wf",
			Name:     "Workflow",
			Category: "workflow",
			ChainSteps: []prompt.ChainStep{
				{StepNumber: 1, PromptID: "clarify", Injection: stepInjection},
			},
			ChainInjection: chainInjection,
		}
	}

	tests := []struct {
		name       string
		setup      func(deps *Deps, ec *ExecutionContext)
		wantSource DecisionSource
	}{
		{
			name: "session override",
			setup: func(_ *Deps, ec *ExecutionContext) {
				ec.Blueprint = &session.Blueprint{InjectionOverrides: map[string]*bool{key: boolPtr(false)}}
			},
			wantSource: SourceSessionOverride,
		},
		{
			name: "request override",
			setup: func(_ *Deps, ec *ExecutionContext) {
				ec.Request.Injection = map[string]*bool{key: boolPtr(true)}
			},
			wantSource: SourceRequestOverride,
		},
		{
			name: "step annotation",
			setup: func(_ *Deps, ec *ExecutionContext) {
				ec.Prompt = chainPrompt(map[string]*bool{key: boolPtr(true)}, nil)
			},
			wantSource: SourceStepAnnotation,
		},
		{
			name: "chain rule",
			setup: func(_ *Deps, ec *ExecutionContext) {
				ec.Prompt = chainPrompt(nil, map[string]*bool{key: boolPtr(false)})
			},
			wantSource: SourceChainRule,
		},
		{
			name: "category rule",
			setup: func(deps *Deps, ec *ExecutionContext) {
				ec.Prompt = chainPrompt(nil, nil)
				deps.Config.CategoryInjection = map[string]map[string]*bool{
					"workflow": {key: boolPtr(true)},
				}
			},
			wantSource: SourceCategoryRule,
		},
		{
			name: "global default",
			setup: func(deps *Deps, _ *ExecutionContext) {
				deps.Config.GlobalInjection = map[string]*bool{key: boolPtr(false)}
			},
			wantSource: SourceGlobalDefault,
		},
		{
			name:       "fallback",
			setup:      func(_ *Deps, _ *ExecutionContext) {},
			wantSource: SourceFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := &Deps{}
			ec := &ExecutionContext{
				Request:    &types.ExecutionRequest{},
				StepNumber: 1,
			}
			tt.setup(deps, ec)

			stage := &injectionControlStage{deps: deps}
			require.NoError(t, stage.Execute(context.Background(), ec))

			decision, ok := ec.State.Injection.Decisions[InjectSystemPrompt]
			require.True(t, ok)
			assert.Equal(t, tt.wantSource, decision.Source)
		})
	}
}

func TestCleanModifierDisablesAllInjection(t *testing.T) {
	deps := &Deps{}
	ec := &ExecutionContext{
		Request:    &types.ExecutionRequest{},
		Plan:       &types.ExecutionPlan{Modifiers: types.PlanModifiers{Clean: true}},
		StepNumber: 1,
	}

	stage := &injectionControlStage{deps: deps}
	require.NoError(t, stage.Execute(context.Background(), ec))

	for _, typ := range InjectionTypes {
		d := ec.State.Injection.Decisions[typ]
		assert.False(t, d.Inject, "%s should be off under %%clean", typ)
		assert.Equal(t, SourceRequestOverride, d.Source)
	}
}

func TestLeanModifierDisablesGateGuidanceOnly(t *testing.T) {
	deps := &Deps{}
	ec := &ExecutionContext{
		Request:    &types.ExecutionRequest{},
		Plan:       &types.ExecutionPlan{Modifiers: types.PlanModifiers{Lean: true}},
		StepNumber: 1,
	}

	stage := &injectionControlStage{deps: deps}
	require.NoError(t, stage.Execute(context.Background(), ec))

	assert.False(t, ec.State.Injection.Allows(InjectGateGuidance))
	assert.True(t, ec.State.Injection.Allows(InjectSystemPrompt), "step-1 system prompt fallback still applies")
}
