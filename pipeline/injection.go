package pipeline

// InjectionType names one kind of content the engine may inject into a
// rendered prompt.
type InjectionType string

const (
	InjectSystemPrompt  InjectionType = "system_prompt"
	InjectGateGuidance  InjectionType = "gate_guidance"
	InjectStyleGuidance InjectionType = "style_guidance"
)

// InjectionTypes lists every injection type in resolution order.
var InjectionTypes = []InjectionType{InjectSystemPrompt, InjectGateGuidance, InjectStyleGuidance}

// DecisionSource identifies which hierarchy level produced a decision.
type DecisionSource string

const (
	SourceSessionOverride DecisionSource = "session_override"
	SourceRequestOverride DecisionSource = "request_override"
	SourceStepAnnotation  DecisionSource = "step_annotation"
	SourceChainRule       DecisionSource = "chain_rule"
	SourceCategoryRule    DecisionSource = "category_rule"
	SourceGlobalDefault   DecisionSource = "global_default"
	SourceFallback        DecisionSource = "fallback"
)

// Decision is a resolved injection outcome with its provenance.
type Decision struct {
	Inject bool           `json:"inject"`
	Source DecisionSource `json:"source"`
}

// Query carries one value per hierarchy level for a single injection type.
// A nil level means "no opinion" and resolution falls through to the next.
type Query struct {
	Type            InjectionType
	SessionOverride *bool
	RequestOverride *bool
	StepAnnotation  *bool
	ChainRule       *bool
	CategoryRule    *bool
	GlobalDefault   *bool

	// Step is the 1-based step number, consulted by the fallback rule.
	Step int
}

// Resolve walks the hierarchy top-down and returns the first decided level.
// The fallback injects only the system prompt, and only on step 1.
func Resolve(q Query) Decision {
	levels := []struct {
		value  *bool
		source DecisionSource
	}{
		{q.SessionOverride, SourceSessionOverride},
		{q.RequestOverride, SourceRequestOverride},
		{q.StepAnnotation, SourceStepAnnotation},
		{q.ChainRule, SourceChainRule},
		{q.CategoryRule, SourceCategoryRule},
		{q.GlobalDefault, SourceGlobalDefault},
	}
	for _, level := range levels {
		if level.value != nil {
			return Decision{Inject: *level.value, Source: level.source}
		}
	}
	return Decision{
		Inject: q.Type == InjectSystemPrompt && q.Step == 1,
		Source: SourceFallback,
	}
}

// InjectionState holds the resolved decisions for the current step.
type InjectionState struct {
	Decisions map[InjectionType]Decision
}

// Allows reports the resolved decision for an injection type. Unresolved
// types (the injection stage was skipped) do not inject.
func (s *InjectionState) Allows(t InjectionType) bool {
	d, ok := s.Decisions[t]
	return ok && d.Inject
}
