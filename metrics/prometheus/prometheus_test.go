package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/promptforge/events"
)

func TestExporterServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	exporter := NewExporterWithRegistry(":0", reg)

	RecordStage("parse_command", statusSuccess, 0.002)
	RecordGateEvaluation("code-quality", true)

	srv := httptest.NewServer(exporter.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "promptforge_stage_duration_seconds")
	assert.Contains(t, string(body), "promptforge_gate_evaluations_total")
}

func TestMetricsListenerRecordsStageEvents(t *testing.T) {
	listener := NewMetricsListener()

	listener.Handle(&events.Event{
		Type: events.EventStageCompleted,
		Data: events.StageData{Stage: "plan", Duration: 3 * time.Millisecond},
	})
	listener.Handle(&events.Event{
		Type: events.EventResourceChanged,
		Data: events.ResourceChangedData{Kind: "prompt", ID: "greet", Change: "modified"},
	})

	// Unknown event types must be ignored without panicking.
	listener.Handle(&events.Event{Type: events.EventType("bogus")})
}
