package events

import "time"

// Emitter provides helpers for publishing runtime events with shared metadata.
// A nil Emitter (or one with a nil bus) silently discards all emissions, so
// callers never need to guard their emit sites.
type Emitter struct {
	bus       *Bus
	commandID string
	sessionID string
	chainID   string
}

// NewEmitter creates a new event emitter bound to one request's identifiers.
func NewEmitter(bus *Bus, commandID, sessionID, chainID string) *Emitter {
	return &Emitter{
		bus:       bus,
		commandID: commandID,
		sessionID: sessionID,
		chainID:   chainID,
	}
}

// WithSession returns a copy of the emitter carrying updated session identifiers.
// Used once the session stage has allocated or restored a blueprint.
func (e *Emitter) WithSession(sessionID, chainID string) *Emitter {
	if e == nil {
		return nil
	}
	return &Emitter{
		bus:       e.bus,
		commandID: e.commandID,
		sessionID: sessionID,
		chainID:   chainID,
	}
}

// emit publishes an event with shared context fields.
func (e *Emitter) emit(eventType EventType, data interface{}) {
	if e == nil || e.bus == nil {
		return
	}

	e.bus.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		CommandID: e.commandID,
		SessionID: e.sessionID,
		ChainID:   e.chainID,
		Data:      data,
	})
}

// PipelineStarted emits the pipeline.started event.
func (e *Emitter) PipelineStarted(stages int) {
	e.emit(EventPipelineStarted, PipelineData{Stages: stages})
}

// PipelineCompleted emits the pipeline.completed event.
func (e *Emitter) PipelineCompleted(duration time.Duration, stages int) {
	e.emit(EventPipelineCompleted, PipelineData{Duration: duration, Stages: stages})
}

// PipelineFailed emits the pipeline.failed event.
func (e *Emitter) PipelineFailed(err error, duration time.Duration) {
	data := PipelineData{Duration: duration}
	if err != nil {
		data.Error = err.Error()
	}
	e.emit(EventPipelineFailed, data)
}

// StageCompleted emits the stage.completed event.
func (e *Emitter) StageCompleted(stage string, index int, duration time.Duration) {
	e.emit(EventStageCompleted, StageData{Stage: stage, Index: index, Duration: duration})
}

// StageFailed emits the stage.failed event.
func (e *Emitter) StageFailed(stage string, index int, err error, duration time.Duration) {
	data := StageData{Stage: stage, Index: index, Duration: duration}
	if err != nil {
		data.Error = err.Error()
	}
	e.emit(EventStageFailed, data)
}

// GateFailed emits the gate.failed event.
func (e *Emitter) GateFailed(gateID string, errs, hints []string, attempt int, blocking bool) {
	e.emit(EventGateFailed, GateFailedData{
		GateID:   gateID,
		Errors:   errs,
		Hints:    hints,
		Attempt:  attempt,
		Blocking: blocking,
	})
}

// FrameworkChanged emits the framework.changed event.
func (e *Emitter) FrameworkChanged(previous, current string) {
	e.emit(EventFrameworkChanged, FrameworkChangedData{Previous: previous, Current: current})
}

// ChainStepComplete emits the chain.step_complete event.
func (e *Emitter) ChainStepComplete(promptID string, step, totalSteps int) {
	e.emit(EventChainStepComplete, ChainStepCompleteData{
		PromptID:   promptID,
		Step:       step,
		TotalSteps: totalSteps,
	})
}

// ChainComplete emits the chain.complete event.
func (e *Emitter) ChainComplete(promptID string, totalSteps int, duration time.Duration) {
	e.emit(EventChainComplete, ChainCompleteData{
		PromptID:   promptID,
		TotalSteps: totalSteps,
		Duration:   duration,
	})
}

// RetryExhausted emits the retry.exhausted event.
func (e *Emitter) RetryExhausted(gateID string, attempts int, action string) {
	e.emit(EventRetryExhausted, RetryExhaustedData{
		GateID:   gateID,
		Attempts: attempts,
		Action:   action,
	})
}

// ResponseBlocked emits the response.blocked event.
func (e *Emitter) ResponseBlocked(gateIDs []string, step int) {
	e.emit(EventResponseBlocked, ResponseBlockedData{GateIDs: gateIDs, Step: step})
}

// ResourceChanged emits the resource.changed event.
func (e *Emitter) ResourceChanged(kind, id, change, origin string) {
	e.emit(EventResourceChanged, ResourceChangedData{
		Kind:   kind,
		ID:     id,
		Change: change,
		Origin: origin,
	})
}
