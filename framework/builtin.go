package framework

// Built-in methodologies. A methodology manifest with the same ID replaces
// the built-in on load, so projects can tune the guidance text without code
// changes.

func builtinDefinitions() []*Definition {
	return []*Definition{cageerf(), react(), fiveW1H(), scamper()}
}

func cageerf() *Definition {
	marker := markerFor("C.A.G.E.E.R.F")
	return &Definition{
		ID:          "cageerf",
		Name:        "CAGEERF",
		Type:        "CAGEERF",
		Description: "Structured elaboration: Context, Analysis, Goals, Execution, Evaluation, Refinement, Framework.",
		Marker:      marker,
		Guidance: marker + ": establish Context, perform Analysis, state Goals, " +
			"plan Execution, define Evaluation criteria, allow for Refinement, " +
			"and keep the overall Framework explicit.",
		StepGuidance: map[string]string{
			"1": "Open with Context and Analysis before committing to an approach.",
			"2": "State Goals explicitly and derive the Execution plan from them.",
			"3": "Close with Evaluation criteria and concrete Refinement steps.",
		},
		TemplateGuidance: map[string]string{
			"analysis": "Weight the Analysis and Evaluation phases; make the evidence chain explicit.",
			"planning": "Weight Goals and Execution; every goal needs at least one execution step.",
		},
	}
}

func react() *Definition {
	marker := markerFor("ReACT")
	return &Definition{
		ID:          "react",
		Name:        "ReACT",
		Type:        "ReACT",
		Description: "Interleaved reasoning and acting: Thought, Action, Observation loops.",
		Marker:      marker,
		Guidance: marker + ": alternate explicit Thought, Action, and Observation " +
			"steps, and let each observation drive the next thought.",
		StepGuidance: map[string]string{
			"1": "Start with a Thought that frames the problem before any Action.",
		},
	}
}

func fiveW1H() *Definition {
	marker := markerFor("5W1H")
	return &Definition{
		ID:          "5w1h",
		Name:        "5W1H",
		Type:        "5W1H",
		Description: "Interrogative coverage: Who, What, When, Where, Why, How.",
		Marker:      marker,
		Guidance: marker + ": cover Who, What, When, Where, Why and How, " +
			"and call out any of the six you cannot answer.",
	}
}

func scamper() *Definition {
	marker := markerFor("SCAMPER")
	return &Definition{
		ID:          "scamper",
		Name:        "SCAMPER",
		Type:        "SCAMPER",
		Description: "Creative transformation: Substitute, Combine, Adapt, Modify, Put to other uses, Eliminate, Reverse.",
		Marker:      marker,
		Guidance: marker + ": work through Substitute, Combine, Adapt, Modify, " +
			"Put to other uses, Eliminate and Reverse, keeping at least one idea per lens.",
	}
}
