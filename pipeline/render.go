package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/promptforge/promptforge/args"
	"github.com/promptforge/promptforge/command"
	"github.com/promptforge/promptforge/prompt"
	"github.com/promptforge/promptforge/template"
	"github.com/promptforge/promptforge/types"
)

// chainStepAt returns the prompt definition's chain step with the given
// 1-based number, or nil when the prompt has no such step.
func chainStepAt(def *prompt.Definition, stepNumber int) *prompt.ChainStep {
	if def == nil {
		return nil
	}
	for i := range def.ChainSteps {
		if def.ChainSteps[i].StepNumber == stepNumber {
			return &def.ChainSteps[i]
		}
	}
	return nil
}

// notFoundResponse builds the terminal response for an unknown resource ID.
func notFoundResponse(kind, id string, suggestions []string) *types.ExecutionResponse {
	msg := fmt.Sprintf("%s %q not found", kind, id)
	if len(suggestions) > 0 {
		msg += ", did you mean: " + strings.Join(suggestions, ", ")
	}
	resp := types.NewErrorResponse(msg)
	resp.SetMeta("error_kind", "resource_not_found")
	resp.SetMeta("identifier", id)
	if len(suggestions) > 0 {
		resp.SetMeta("suggestions", suggestions)
	}
	return resp
}

// renderer builds the per-request template renderer, wiring the prompt
// registry for {{ref:}} and the request's script report for {{script:}}.
func renderer(deps *Deps, ec *ExecutionContext) *template.Renderer {
	r := &template.Renderer{Prompts: deps.Prompts}
	if ec.State.Scripts.Report != nil {
		r.Scripts = ec.State.Scripts.Report
	}
	return r
}

// templateVars flattens a typed argument map into renderer variables and
// merges the script tool outputs.
func templateVars(parsed *args.Parsed, ec *ExecutionContext) map[string]string {
	vars := map[string]string{}
	if parsed != nil {
		for name, value := range parsed.Values {
			vars[name] = args.Serialize(value)
		}
	}
	if report := ec.State.Scripts.Report; report != nil {
		for name, value := range report.TemplateVars() {
			vars[name] = fmt.Sprint(value)
		}
	}
	return vars
}

// composeSections joins non-empty prompt sections with blank lines.
func composeSections(sections ...string) string {
	var kept []string
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}

// frameworkSection returns the methodology system prompt to prepend, or ""
// when injection is off or the prompt's own system message already carries
// the methodology marker.
func frameworkSection(ec *ExecutionContext, systemMessage string) string {
	if ec.Framework == nil || !ec.State.Injection.Allows(InjectSystemPrompt) {
		return ""
	}
	if ec.Framework.AlreadyInjected(systemMessage) {
		return ""
	}
	return ec.FrameworkSystemPrompt
}

// gateSection returns the accumulated gate guidance to inject, or "".
func gateSection(ec *ExecutionContext) string {
	if !ec.State.Injection.Allows(InjectGateGuidance) {
		return ""
	}
	guidance := ec.State.Gates.Guidance
	if len(guidance) == 0 && ec.Blueprint != nil {
		guidance = ec.Blueprint.GateInstructions
	}
	if len(guidance) == 0 {
		return ""
	}
	return "Quality requirements:\n- " + strings.Join(guidance, "\n- ")
}

// renderSingle renders a non-chain prompt with the parsed arguments.
func renderSingle(deps *Deps, ec *ExecutionContext) (string, error) {
	vars := templateVars(ec.Arguments, ec)
	body, err := renderer(deps, ec).Render(ec.Prompt.UserMessageTemplate, vars)
	if err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", ec.Prompt.ID, err)
	}
	return composeSections(
		frameworkSection(ec, ec.Prompt.SystemMessage),
		gateSection(ec),
		ec.Prompt.SystemMessage,
		body,
	), nil
}

// renderStep renders one chain step: the step's own prompt template with
// the chain variable namespace translated into its arguments.
func renderStep(deps *Deps, ec *ExecutionContext, stepNumber int) (string, error) {
	var cmdStep *command.Step
	for i := range ec.Parsed.Steps {
		if ec.Parsed.Steps[i].StepNumber == stepNumber {
			cmdStep = &ec.Parsed.Steps[i]
			break
		}
	}
	if cmdStep == nil {
		return "", fmt.Errorf("chain has no step %d", stepNumber)
	}

	stepDef, ok := deps.Prompts.Get(cmdStep.PromptID)
	if !ok {
		return "", &command.PromptNotFoundError{ID: cmdStep.PromptID, Suggestions: deps.Prompts.Suggest(cmdStep.PromptID)}
	}

	defStep := chainStepAt(ec.Prompt, stepNumber)
	preset := stepPreset(ec, cmdStep, defStep)

	parsed, err := args.Parse(cmdStep.RawArgs, stepDef, preset, nil)
	if err != nil {
		return "", err
	}

	vars := templateVars(parsed, ec)
	vars["current_step"] = strconv.Itoa(stepNumber)
	if ec.Blueprint != nil {
		vars["total_steps"] = strconv.Itoa(ec.Blueprint.TotalSteps)
		if _, ok := vars["previous_step_result"]; !ok {
			vars["previous_step_result"] = ec.Blueprint.PreviousStepResult
		}
	}

	body, err := renderer(deps, ec).Render(stepDef.UserMessageTemplate, vars)
	if err != nil {
		return "", fmt.Errorf("rendering step %d (%s): %w", stepNumber, stepDef.ID, err)
	}

	stepGuidance := ""
	if ec.Framework != nil && ec.State.Injection.Allows(InjectSystemPrompt) {
		stepGuidance = ec.Framework.GuidanceForStep(stepNumber)
		if stepGuidance == ec.Framework.Guidance {
			// The general guidance is already part of the system prompt.
			stepGuidance = ""
		}
	}

	return composeSections(
		frameworkSection(ec, stepDef.SystemMessage),
		stepGuidance,
		gateSection(ec),
		stepDef.SystemMessage,
		body,
	), nil
}

// stepPreset assembles the preset argument values for a chain step: the
// definition's static args, the command's inline args, the chain context
// via the step's input mapping, and the previous step result.
func stepPreset(ec *ExecutionContext, cmdStep *command.Step, defStep *prompt.ChainStep) map[string]interface{} {
	preset := map[string]interface{}{}
	if defStep != nil {
		for k, v := range defStep.Args {
			preset[k] = v
		}
	}
	for k, v := range cmdStep.Args {
		preset[k] = v
	}
	if ec.Blueprint != nil {
		if defStep != nil {
			// Input mapping keys are step argument names, values are chain
			// variable names.
			for argName, chainVar := range defStep.InputMapping {
				if value, ok := ec.Blueprint.StepResults[chainVar]; ok {
					preset[argName] = value
				}
			}
		}
		if ec.Blueprint.PreviousStepResult != "" {
			preset["previous_step_result"] = ec.Blueprint.PreviousStepResult
		}
	}
	return preset
}
