package prometheus

import (
	"github.com/promptforge/promptforge/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// MetricsListener records pipeline events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with a Bus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
// This method is designed to be used with Bus.SubscribeAll.
func (l *MetricsListener) Handle(event *events.Event) {
	switch event.Type {
	case events.EventPipelineStarted:
		RecordPipelineStart()
	case events.EventPipelineCompleted:
		if data, ok := event.Data.(events.PipelineData); ok {
			RecordPipelineEnd(statusSuccess, data.Duration.Seconds())
		}
	case events.EventPipelineFailed:
		if data, ok := event.Data.(events.PipelineData); ok {
			RecordPipelineEnd(statusError, data.Duration.Seconds())
		}
	case events.EventStageCompleted:
		if data, ok := event.Data.(events.StageData); ok {
			RecordStage(data.Stage, statusSuccess, data.Duration.Seconds())
		}
	case events.EventStageFailed:
		if data, ok := event.Data.(events.StageData); ok {
			RecordStage(data.Stage, statusError, data.Duration.Seconds())
		}
	case events.EventGateFailed:
		if data, ok := event.Data.(events.GateFailedData); ok {
			RecordGateEvaluation(data.GateID, false)
		}
	case events.EventRetryExhausted:
		if data, ok := event.Data.(events.RetryExhaustedData); ok {
			RecordGateRetry(data.GateID)
		}
	case events.EventResourceChanged:
		if data, ok := event.Data.(events.ResourceChangedData); ok {
			RecordResourceReload(data.Kind, data.Change)
		}
	default:
		// Events without metrics are ignored.
	}
}
