package pipeline

import (
	"context"
	"strings"

	"github.com/promptforge/promptforge/gate"
	"github.com/promptforge/promptforge/logger"
)

// resolveFrameworkStage selects the active methodology and expands its
// system prompt. Precedence: request override, then plan modifier (which a
// rehydrated chain restores from its blueprint), then the configured
// default when the plan requires a framework.
type resolveFrameworkStage struct{ deps *Deps }

func (s *resolveFrameworkStage) Name() string { return StageResolveFramework }

func (s *resolveFrameworkStage) Execute(_ context.Context, ec *ExecutionContext) error {
	name := ec.Request.Framework
	if name == "" && ec.Plan != nil {
		name = ec.Plan.Modifiers.Framework
	}
	override := name != ""
	if name == "" && ec.Plan != nil && ec.Plan.RequiresFramework {
		name = s.deps.Config.DefaultFramework
	}
	if name == "" {
		return nil
	}

	def, ok := s.deps.Frameworks.Get(name)
	if !ok {
		ec.SetResponse(notFoundResponse("framework", name, s.deps.Frameworks.Suggest(name)))
		return nil
	}
	ec.Framework = def

	promptName, category := "", ""
	if ec.Prompt != nil {
		promptName, category = ec.Prompt.Name, ec.Prompt.Category
	}
	ec.FrameworkSystemPrompt = def.SystemPrompt(promptName, category)

	if override && s.deps.Config.DefaultFramework != "" &&
		!strings.EqualFold(def.ID, s.deps.Config.DefaultFramework) {
		ec.Emitter.FrameworkChanged(s.deps.Config.DefaultFramework, def.ID)
	}
	return nil
}

// enhanceGatesStage resolves the planned gate IDs into definitions,
// materializes inline operator gates, and accumulates the guidance text
// injected into rendered steps. Unknown registered IDs are logged and
// skipped so a stale gate reference never kills a request.
type enhanceGatesStage struct{ deps *Deps }

func (s *enhanceGatesStage) Name() string { return StageEnhanceGates }

func (s *enhanceGatesStage) Execute(_ context.Context, ec *ExecutionContext) error {
	if ec.Plan == nil || len(ec.Plan.Gates) == 0 {
		return nil
	}

	inline := s.inlineGates(ec)
	for _, id := range ec.Plan.Gates {
		def, ok := inline[strings.ToLower(id)]
		if !ok {
			def, ok = s.deps.Gates.Get(id)
		}
		if !ok {
			logger.Warn("planned gate not found, skipping", "gate", id)
			continue
		}
		ec.State.Gates.AccumulatedGateIDs = append(ec.State.Gates.AccumulatedGateIDs, def.ID)
		ec.State.Gates.Definitions = append(ec.State.Gates.Definitions, def)
		if def.Guidance != "" {
			ec.State.Gates.Guidance = append(ec.State.Gates.Guidance, def.Guidance)
		}
	}
	return nil
}

// inlineGates builds definitions for operator and request-supplied gates,
// keyed by lowercase ID.
func (s *enhanceGatesStage) inlineGates(ec *ExecutionContext) map[string]*gate.Definition {
	defs := map[string]*gate.Definition{}
	put := func(d *gate.Definition) { defs[strings.ToLower(d.ID)] = d }

	for i, criteria := range ec.Parsed.InlineGateCriteria {
		put(&gate.Definition{
			ID:       anonymousGateID(i),
			Name:     "Inline gate",
			Type:     gate.TypeGuidance,
			GateKind: gate.KindCustom,
			Guidance: criteria,
		})
	}
	for _, ng := range ec.Parsed.NamedInlineGates {
		put(&gate.Definition{
			ID:       ng.ID,
			Name:     ng.ID,
			Type:     gate.TypeGuidance,
			GateKind: gate.KindCustom,
			Guidance: ng.Criteria,
		})
	}
	for _, sg := range ec.Parsed.ShellVerifyGates {
		put(&gate.Definition{
			ID:              sg.ID,
			Name:            sg.ID,
			Type:            gate.TypeValidation,
			EnforcementMode: gate.EnforcementBlocking,
			GateKind:        gate.KindCustom,
			PassCriteria: []gate.PassCriterion{{
				Check:  "shell_verify",
				Params: map[string]interface{}{"command": sg.Command},
			}},
		})
	}
	for i, spec := range ec.Request.Gates {
		if spec.IsRef() {
			continue
		}
		id := spec.ID
		if id == "" {
			id = requestGateID(i)
		}
		def, err := gate.FromSpec(id, spec)
		if err != nil {
			logger.Warn("invalid inline gate spec, skipping", "gate", id, "error", err)
			continue
		}
		put(def)
	}
	return defs
}

// injectionControlStage resolves the per-type injection decisions for the
// current step through the seven-level hierarchy. The %clean modifier
// counts as a request-level "off" for every type; %lean turns off gate
// guidance the same way.
type injectionControlStage struct{ deps *Deps }

func (s *injectionControlStage) Name() string { return StageInjectionControl }

func (s *injectionControlStage) Execute(_ context.Context, ec *ExecutionContext) error {
	decisions := make(map[InjectionType]Decision, len(InjectionTypes))
	for _, t := range InjectionTypes {
		decisions[t] = Resolve(s.queryFor(ec, t))
	}
	ec.State.Injection = InjectionState{Decisions: decisions}
	return nil
}

func (s *injectionControlStage) queryFor(ec *ExecutionContext, t InjectionType) Query {
	key := string(t)
	// On a resumption the step about to execute is the one after the step
	// the chain was waiting on; the capture stage advances the counter
	// later in the sequence.
	step := ec.StepNumber
	if ec.State.Session.Resumed && ec.Request.UserResponse != "" {
		step = ec.Blueprint.CurrentStep + 1
	}
	q := Query{Type: t, Step: step}

	if ec.Blueprint != nil {
		q.SessionOverride = ec.Blueprint.InjectionOverrides[key]
	}
	q.RequestOverride = ec.Request.Injection[key]
	if q.RequestOverride == nil && ec.Plan != nil {
		off := false
		if ec.Plan.Modifiers.Clean {
			q.RequestOverride = &off
		} else if ec.Plan.Modifiers.Lean && t == InjectGateGuidance {
			q.RequestOverride = &off
		}
	}
	if ec.Prompt != nil {
		if annotated := chainStepAt(ec.Prompt, step); annotated != nil {
			q.StepAnnotation = annotated.Injection[key]
		}
		q.ChainRule = ec.Prompt.ChainInjection[key]
		if rules, ok := s.deps.Config.CategoryInjection[strings.ToLower(ec.Prompt.Category)]; ok {
			q.CategoryRule = rules[key]
		}
	}
	q.GlobalDefault = s.deps.Config.GlobalInjection[key]
	return q
}
