package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. Values stored under these keys are
// automatically extracted by the ContextHandler and added to log entries.
const (
	// ContextKeyCommandID groups all stage logs of one request.
	ContextKeyCommandID contextKey = "command_id"

	// ContextKeySessionID identifies the chain session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyChainID identifies the resumption token of a chain.
	ContextKeyChainID contextKey = "chain_id"

	// ContextKeyPromptID identifies the prompt being executed.
	ContextKeyPromptID contextKey = "prompt_id"

	// ContextKeyStage identifies the pipeline stage.
	ContextKeyStage contextKey = "stage"

	// ContextKeyFramework identifies the active methodology.
	ContextKeyFramework contextKey = "framework"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeyCommandID,
	ContextKeySessionID,
	ContextKeyChainID,
	ContextKeyPromptID,
	ContextKeyStage,
	ContextKeyFramework,
}

// WithCommandID returns a context carrying the given command ID.
func WithCommandID(ctx context.Context, commandID string) context.Context {
	return context.WithValue(ctx, ContextKeyCommandID, commandID)
}

// WithSessionID returns a context carrying the given session ID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithChainID returns a context carrying the given chain ID.
func WithChainID(ctx context.Context, chainID string) context.Context {
	return context.WithValue(ctx, ContextKeyChainID, chainID)
}

// WithPromptID returns a context carrying the given prompt ID.
func WithPromptID(ctx context.Context, promptID string) context.Context {
	return context.WithValue(ctx, ContextKeyPromptID, promptID)
}

// WithStage returns a context carrying the given pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// WithFramework returns a context carrying the active framework ID.
func WithFramework(ctx context.Context, framework string) context.Context {
	return context.WithValue(ctx, ContextKeyFramework, framework)
}
