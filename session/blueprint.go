// Package session persists chain execution state across requests. A chain's
// first step stores a Blueprint; each resume rehydrates it, advances the
// step counter with a compare-and-swap, and the final step deletes it.
package session

import (
	"time"

	"github.com/promptforge/promptforge/command"
	"github.com/promptforge/promptforge/types"
)

// PendingReview holds a response waiting on a caller gate verdict.
type PendingReview struct {
	StepNumber int      `json:"step_number"`
	GateIDs    []string `json:"gate_ids"`
	Content    string   `json:"content"`
	Attempt    int      `json:"attempt"`
}

// Blueprint is the persisted state of one chain execution. The parsed
// command and plan are stored verbatim so a response-only resume
// reconstructs them identically to the originals.
type Blueprint struct {
	SessionID string `json:"session_id"`
	ChainID   string `json:"chain_id"`
	PromptID  string `json:"prompt_id"`

	Command *command.ParsedCommand `json:"command"`
	Plan    *types.ExecutionPlan   `json:"plan"`

	// GateInstructions is the rendered gate guidance injected on every step.
	GateInstructions []string `json:"gate_instructions,omitempty"`

	CurrentStep        int    `json:"current_step"`
	TotalSteps         int    `json:"total_steps"`
	PreviousStepResult string `json:"previous_step_result,omitempty"`

	// StepResults maps chain variable names to step outputs, feeding
	// input mappings of later steps.
	StepResults map[string]string `json:"step_results,omitempty"`

	PendingReview *PendingReview `json:"pending_review,omitempty"`

	// GateAttempts counts retry attempts per gate ID.
	GateAttempts map[string]int `json:"gate_attempts,omitempty"`

	// InjectionOverrides are per-session injection switches set through an
	// admin surface, keyed by injection type. They outrank every other
	// injection rule.
	InjectionOverrides map[string]*bool `json:"injection_overrides,omitempty"`

	// Dormant marks a completed or aborted chain that is retained until TTL
	// eviction. Dormant blueprints are excluded from chain ID lookup unless
	// explicitly requested.
	Dormant bool `json:"dormant,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Complete reports whether every step has run.
func (b *Blueprint) Complete() bool {
	return b.CurrentStep > b.TotalSteps
}

// RecordStepResult stores a step output under its chain variable name and
// as the previous-step result for the next render.
func (b *Blueprint) RecordStepResult(variableName, output string) {
	b.PreviousStepResult = output
	if variableName == "" {
		return
	}
	if b.StepResults == nil {
		b.StepResults = map[string]string{}
	}
	b.StepResults[variableName] = output
}

// SetChainVariable stores a value in the chain variable namespace without
// touching the previous-step result.
func (b *Blueprint) SetChainVariable(name, value string) {
	if b.StepResults == nil {
		b.StepResults = map[string]string{}
	}
	b.StepResults[name] = value
}

// AttemptsFor returns the retry attempts used so far for a gate.
func (b *Blueprint) AttemptsFor(gateID string) int {
	return b.GateAttempts[gateID]
}

// RecordAttempt increments the retry counter for a gate and returns the new
// attempt count.
func (b *Blueprint) RecordAttempt(gateID string) int {
	if b.GateAttempts == nil {
		b.GateAttempts = map[string]int{}
	}
	b.GateAttempts[gateID]++
	return b.GateAttempts[gateID]
}
