package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptforge/promptforge/command"
	"github.com/promptforge/promptforge/gate"
	"github.com/promptforge/promptforge/types"
)

// planStage is the sole writer of ec.Plan. For a resumption the plan is
// restored verbatim from the blueprint so rehydrated execution matches the
// original bit for bit.
type planStage struct{ deps *Deps }

func (s *planStage) Name() string { return StagePlan }

func (s *planStage) Execute(_ context.Context, ec *ExecutionContext) error {
	if ec.State.Session.Resumed {
		ec.Plan = ec.Blueprint.Plan
		return nil
	}

	parsed := ec.Parsed
	plan := &types.ExecutionPlan{
		Strategy:             types.StrategySingle,
		APIValidationEnabled: ec.State.Normalization.APIValidation,
		Modifiers: types.PlanModifiers{
			Framework: parsed.FrameworkOverride,
			Style:     parsed.StyleSelection,
			Lean:      parsed.Lean,
			Clean:     parsed.Clean,
		},
	}
	if parsed.CommandType == command.TypeChain || (ec.Prompt != nil && ec.Prompt.IsChain()) {
		plan.Strategy = types.StrategyChain
		plan.RequiresSession = true
	}

	plan.Gates = s.selectGates(ec)
	plan.RequiresFramework = parsed.FrameworkOverride != "" || s.anyFrameworkGate(plan.Gates)

	ec.Plan = plan
	return nil
}

// selectGates unions the prompt's include list, category-activated gates,
// request quality gates and custom checks, and inline operator gates, then
// subtracts the prompt's exclude list.
func (s *planStage) selectGates(ec *ExecutionContext) []string {
	var ids []string
	seen := map[string]bool{}
	add := func(id string) {
		key := strings.ToLower(id)
		if id != "" && !seen[key] {
			seen[key] = true
			ids = append(ids, id)
		}
	}

	if ec.Prompt != nil {
		for _, id := range ec.Prompt.Gates.Include {
			add(id)
		}
		for _, def := range s.deps.Gates.All() {
			if !def.ActivatesFor(ec.Prompt.Category) {
				continue
			}
			if def.GateKind == gate.KindFramework && !ec.Prompt.Gates.FrameworkGates {
				continue
			}
			add(def.ID)
		}
	}
	for _, id := range ec.Request.QualityGates {
		add(id)
	}
	for _, id := range ec.Request.CustomChecks {
		add(id)
	}
	for i := range ec.Parsed.InlineGateCriteria {
		add(anonymousGateID(i))
	}
	for _, ng := range ec.Parsed.NamedInlineGates {
		add(ng.ID)
	}
	for _, sg := range ec.Parsed.ShellVerifyGates {
		add(sg.ID)
	}
	for i, spec := range ec.Request.Gates {
		if spec.ID != "" {
			add(spec.ID)
		} else {
			add(requestGateID(i))
		}
	}

	if ec.Prompt != nil {
		excluded := map[string]bool{}
		for _, id := range ec.Prompt.Gates.Exclude {
			excluded[strings.ToLower(id)] = true
		}
		kept := ids[:0]
		for _, id := range ids {
			if !excluded[strings.ToLower(id)] {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	return ids
}

func (s *planStage) anyFrameworkGate(ids []string) bool {
	for _, id := range ids {
		if def, ok := s.deps.Gates.Get(id); ok && def.GateKind == gate.KindFramework {
			return true
		}
	}
	return false
}

// anonymousGateID names the n-th :: "criteria" operator gate.
func anonymousGateID(i int) string { return fmt.Sprintf("inline-gate-%d", i+1) }

// requestGateID names the n-th request-supplied gate spec without an ID.
func requestGateID(i int) string { return fmt.Sprintf("request-gate-%d", i+1) }

// detectScriptsStage records which script tools the target prompt declares.
type detectScriptsStage struct{ deps *Deps }

func (s *detectScriptsStage) Name() string { return StageDetectScripts }

func (s *detectScriptsStage) Execute(_ context.Context, ec *ExecutionContext) error {
	if ec.Prompt == nil || len(ec.Prompt.ScriptTools) == 0 {
		return nil
	}
	ec.State.Scripts.Detected = ec.Prompt.ScriptTools
	return nil
}

// executeScriptsStage runs the detected tools. Auto and
// auto-approve-on-valid tools run now; confirm tools run only when approved
// by the request; manual tools only when requested by name. A tool that
// rejects its input (valid=false) terminates the request.
type executeScriptsStage struct{ deps *Deps }

func (s *executeScriptsStage) Name() string { return StageExecuteScripts }

func (s *executeScriptsStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	tools := ec.State.Scripts.Detected
	if len(tools) == 0 || s.deps.Scripts == nil {
		return nil
	}

	req := ec.Request
	report := s.deps.Scripts.Run(ctx, tools, ec.Parsed.RawArgs, req.ApprovedTools, req.RequestedTools)
	ec.State.Scripts.Report = report

	if report.AnyInvalid() {
		var rejected []string
		for id, outcome := range report.Outcomes {
			if outcome.Valid != nil && !*outcome.Valid {
				rejected = append(rejected, id)
			}
		}
		resp := types.NewErrorResponse(fmt.Sprintf(
			"input rejected by validation tool(s): %s", strings.Join(rejected, ", ")))
		resp.SetMeta("error_kind", "script_rejection")
		ec.SetResponse(resp)
	}
	return nil
}
