package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "openai key",
			input: "key is sk-abcdefghijklmnopqrstuvwxyz0123456789",
			want:  "key is sk-a...[REDACTED]",
		},
		{
			name:  "bearer token",
			input: "Authorization: Bearer abc123def456",
			want:  "Authorization: Bearer [REDACTED]",
		},
		{
			name:  "clean string unchanged",
			input: "nothing secret here",
			want:  "nothing secret here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactSensitiveData(tt.input))
		})
	}
}

func TestContextHandlerExtractsFields(t *testing.T) {
	var buf bytes.Buffer
	handler := NewContextHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	log := slog.New(handler)

	ctx := WithCommandID(context.Background(), "cmd-42")
	ctx = WithStage(ctx, "parse_command")
	log.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "command_id=cmd-42")
	assert.Contains(t, out, "stage=parse_command")
}

func TestContextHandlerCommonFields(t *testing.T) {
	var buf bytes.Buffer
	handler := NewContextHandler(
		slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.String("service", "promptforge"),
	)
	slog.New(handler).Info("boot")

	assert.Contains(t, buf.String(), "service=promptforge")
}
