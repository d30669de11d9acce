package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// defaultTTL bounds how long an untouched blueprint survives.
const defaultTTL = 24 * time.Hour

// MemoryStore is an in-memory Store for development, testing, and
// single-instance deployments. Blueprints are deep-copied on every access so
// callers never share mutable state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	blueprints map[string]*memoryEntry
	chainIndex map[string]string // chainID -> sessionID
	ttl        time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	bp        *Blueprint
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryTTL overrides the default 24h blueprint lifetime.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.ttl = ttl }
}

// withClock injects a time source for expiry tests.
func withClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		blueprints: make(map[string]*memoryEntry),
		chainIndex: make(map[string]string),
		ttl:        defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetBlueprint retrieves a blueprint by session ID.
func (s *MemoryStore) GetBlueprint(_ context.Context, sessionID string) (*Blueprint, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.liveEntry(sessionID)
	if entry == nil {
		return nil, ErrNotFound
	}
	return cloneBlueprint(entry.bp), nil
}

// GetBlueprintByChainID retrieves a blueprint via the chain index.
func (s *MemoryStore) GetBlueprintByChainID(_ context.Context, chainID string, includeDormant bool) (*Blueprint, error) {
	if chainID == "" {
		return nil, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID, ok := s.chainIndex[chainID]
	if !ok {
		return nil, ErrNotFound
	}
	entry := s.liveEntry(sessionID)
	if entry == nil {
		return nil, ErrNotFound
	}
	if entry.bp.Dormant && !includeDormant {
		return nil, ErrNotFound
	}
	return cloneBlueprint(entry.bp), nil
}

// PutBlueprint stores a blueprint and refreshes its TTL. A blueprint whose
// step counter has run past the final step is stored dormant.
func (s *MemoryStore) PutBlueprint(_ context.Context, bp *Blueprint) error {
	if bp == nil || bp.SessionID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(bp)
	return nil
}

func (s *MemoryStore) putLocked(bp *Blueprint) {
	stored := cloneBlueprint(bp)
	stored.UpdatedAt = s.now()
	if stored.Complete() {
		stored.Dormant = true
	}
	s.blueprints[stored.SessionID] = &memoryEntry{
		bp:        stored,
		expiresAt: s.now().Add(s.ttl),
	}
	if stored.ChainID != "" {
		s.chainIndex[stored.ChainID] = stored.SessionID
	}
}

// DeleteBlueprint removes a blueprint.
func (s *MemoryStore) DeleteBlueprint(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.blueprints[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.removeLocked(sessionID, entry)
	return nil
}

// GetChainContext returns the chain variable map accumulated so far.
func (s *MemoryStore) GetChainContext(ctx context.Context, sessionID string) (map[string]string, error) {
	bp, err := s.GetBlueprint(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(bp.StepResults))
	for k, v := range bp.StepResults {
		out[k] = v
	}
	return out, nil
}

// CompareAndSwap replaces the blueprint only when the stored step counter
// still matches the caller's expectation.
func (s *MemoryStore) CompareAndSwap(_ context.Context, sessionID string, expectedCurrentStep int, bp *Blueprint) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.liveEntry(sessionID)
	if entry == nil {
		return ErrNotFound
	}
	if entry.bp.CurrentStep != expectedCurrentStep {
		return ErrConflict
	}
	s.putLocked(bp)
	return nil
}

// Len returns the number of live blueprints.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, entry := range s.blueprints {
		if s.now().After(entry.expiresAt) {
			s.removeLocked(id, entry)
			continue
		}
		n++
	}
	return n
}

// liveEntry returns the entry for a session, evicting it if expired.
// Caller holds the write lock.
func (s *MemoryStore) liveEntry(sessionID string) *memoryEntry {
	entry, ok := s.blueprints[sessionID]
	if !ok {
		return nil
	}
	if s.now().After(entry.expiresAt) {
		s.removeLocked(sessionID, entry)
		return nil
	}
	return entry
}

func (s *MemoryStore) removeLocked(sessionID string, entry *memoryEntry) {
	delete(s.blueprints, sessionID)
	if entry.bp.ChainID != "" && s.chainIndex[entry.bp.ChainID] == sessionID {
		delete(s.chainIndex, entry.bp.ChainID)
	}
}

// cloneBlueprint deep-copies via JSON; blueprints are JSON-serializable by
// construction since the Redis store persists them the same way.
func cloneBlueprint(bp *Blueprint) *Blueprint {
	data, err := json.Marshal(bp)
	if err != nil {
		return bp
	}
	var out Blueprint
	if err := json.Unmarshal(data, &out); err != nil {
		return bp
	}
	return &out
}

var _ Store = (*MemoryStore)(nil)
