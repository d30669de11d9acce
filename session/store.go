package session

import (
	"context"
	"errors"
)

// Store is the chain session persistence interface. Implementations must
// provide TTL eviction and an atomic step-advance via CompareAndSwap.
type Store interface {
	// GetBlueprint retrieves a blueprint by session ID.
	GetBlueprint(ctx context.Context, sessionID string) (*Blueprint, error)

	// GetBlueprintByChainID retrieves a blueprint by chain ID. Dormant
	// blueprints are skipped unless includeDormant is set.
	GetBlueprintByChainID(ctx context.Context, chainID string, includeDormant bool) (*Blueprint, error)

	// PutBlueprint stores or replaces a blueprint and refreshes its TTL.
	PutBlueprint(ctx context.Context, bp *Blueprint) error

	// DeleteBlueprint removes a blueprint.
	DeleteBlueprint(ctx context.Context, sessionID string) error

	// GetChainContext returns the chain variable map accumulated so far.
	GetChainContext(ctx context.Context, sessionID string) (map[string]string, error)

	// CompareAndSwap replaces the stored blueprint only if its current step
	// still equals expectedCurrentStep; otherwise ErrConflict. Concurrent
	// resumes of the same chain race here and exactly one wins.
	CompareAndSwap(ctx context.Context, sessionID string, expectedCurrentStep int, bp *Blueprint) error
}

// ErrNotFound is returned when a session doesn't exist or has expired.
var ErrNotFound = errors.New("session not found")

// ErrInvalidID is returned when an empty session or chain ID is provided.
var ErrInvalidID = errors.New("invalid session ID")

// ErrConflict is returned by CompareAndSwap when another writer advanced
// the blueprint first.
var ErrConflict = errors.New("session blueprint was modified concurrently")
