// Package events provides a lightweight pub/sub event bus for runtime
// observability. Emission is best-effort: publishing never blocks the
// pipeline and events are dropped when subscribers cannot keep up.
package events

import "time"

// EventType identifies the kind of runtime event.
type EventType string

// Pipeline lifecycle events.
const (
	EventPipelineStarted   EventType = "pipeline.started"
	EventPipelineCompleted EventType = "pipeline.completed"
	EventPipelineFailed    EventType = "pipeline.failed"
	EventStageCompleted    EventType = "stage.completed"
	EventStageFailed       EventType = "stage.failed"
)

// Domain notification events surfaced to external observers.
const (
	EventGateFailed        EventType = "gate.failed"
	EventFrameworkChanged  EventType = "framework.changed"
	EventChainStepComplete EventType = "chain.step_complete"
	EventChainComplete     EventType = "chain.complete"
	EventRetryExhausted    EventType = "retry.exhausted"
	EventResponseBlocked   EventType = "response.blocked"
	EventResourceChanged   EventType = "resource.changed"
)

// Event is a single runtime occurrence delivered to listeners.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	CommandID string      `json:"command_id,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	ChainID   string      `json:"chain_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// GateFailedData carries details of a failed gate evaluation.
type GateFailedData struct {
	GateID   string   `json:"gate_id"`
	Errors   []string `json:"errors,omitempty"`
	Hints    []string `json:"hints,omitempty"`
	Attempt  int      `json:"attempt"`
	Blocking bool     `json:"blocking"`
}

// FrameworkChangedData carries a methodology switch.
type FrameworkChangedData struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// ChainStepCompleteData marks completion of one chain step.
type ChainStepCompleteData struct {
	PromptID   string `json:"prompt_id"`
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
}

// ChainCompleteData marks completion of a whole chain.
type ChainCompleteData struct {
	PromptID   string        `json:"prompt_id"`
	TotalSteps int           `json:"total_steps"`
	Duration   time.Duration `json:"duration"`
}

// RetryExhaustedData marks a gate whose retry budget ran out.
type RetryExhaustedData struct {
	GateID   string `json:"gate_id"`
	Attempts int    `json:"attempts"`
	Action   string `json:"action"`
}

// ResponseBlockedData marks a response held back pending gate review.
type ResponseBlockedData struct {
	GateIDs []string `json:"gate_ids"`
	Step    int      `json:"step"`
}

// StageData carries stage completion details.
type StageData struct {
	Stage    string        `json:"stage"`
	Index    int           `json:"index"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// PipelineData carries pipeline completion details.
type PipelineData struct {
	Duration time.Duration `json:"duration"`
	Stages   int           `json:"stages"`
	Error    string        `json:"error,omitempty"`
}

// ResourceChangedData carries a registry hot-reload occurrence.
type ResourceChangedData struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Change string `json:"change"` // added, modified, removed
	Origin string `json:"origin"` // filesystem, tool
}
