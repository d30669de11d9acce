package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promptforge/promptforge/metrics/prometheus"
)

// casRetries bounds optimistic retries when the watched key changes between
// the read and the transaction for reasons other than a step conflict.
const casRetries = 3

// RedisStore is a Redis-backed Store for distributed deployments.
// Blueprints are stored as JSON with TTL; the chain index is a plain key
// mapping chain ID to session ID. CompareAndSwap uses WATCH so concurrent
// resumes of one chain serialize on the server.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the blueprint time-to-live. Default is 24 hours.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithPrefix sets the Redis key prefix. Default is "promptforge".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a Redis-backed session store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(12 * time.Hour),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultTTL,
		prefix: "promptforge",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *RedisStore) chainKey(chainID string) string {
	return fmt.Sprintf("%s:chain:%s", s.prefix, chainID)
}

// GetBlueprint retrieves a blueprint by session ID.
func (s *RedisStore) GetBlueprint(ctx context.Context, sessionID string) (*Blueprint, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var bp Blueprint
	if err := json.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("unmarshaling blueprint: %w", err)
	}
	return &bp, nil
}

// GetBlueprintByChainID retrieves a blueprint via the chain index.
func (s *RedisStore) GetBlueprintByChainID(ctx context.Context, chainID string, includeDormant bool) (*Blueprint, error) {
	if chainID == "" {
		return nil, ErrInvalidID
	}
	sessionID, err := s.client.Get(ctx, s.chainKey(chainID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	bp, err := s.GetBlueprint(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if bp.Dormant && !includeDormant {
		return nil, ErrNotFound
	}
	return bp, nil
}

// PutBlueprint stores a blueprint and refreshes its TTL.
func (s *RedisStore) PutBlueprint(ctx context.Context, bp *Blueprint) error {
	if bp == nil || bp.SessionID == "" {
		return ErrInvalidID
	}
	bp.UpdatedAt = time.Now()
	if bp.Complete() {
		bp.Dormant = true
	}
	data, err := json.Marshal(bp)
	if err != nil {
		return fmt.Errorf("marshaling blueprint: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(bp.SessionID), data, s.ttl)
	if bp.ChainID != "" {
		pipe.Set(ctx, s.chainKey(bp.ChainID), bp.SessionID, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// DeleteBlueprint removes a blueprint and its chain index entry.
func (s *RedisStore) DeleteBlueprint(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	bp, err := s.GetBlueprint(ctx, sessionID)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	delCmd := pipe.Del(ctx, s.sessionKey(sessionID))
	if bp.ChainID != "" {
		pipe.Del(ctx, s.chainKey(bp.ChainID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	if delCmd.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetChainContext returns the chain variable map accumulated so far.
func (s *RedisStore) GetChainContext(ctx context.Context, sessionID string) (map[string]string, error) {
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
// still matches. The step check runs inside a WATCH transaction, so of two
// concurrent resumes exactly one commits and the other gets ErrConflict.
func (s *RedisStore) CompareAndSwap(ctx context.Context, sessionID string, expectedCurrentStep int, bp *Blueprint) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	key := s.sessionKey(sessionID)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("redis get failed: %w", err)
		}
		var current Blueprint
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("unmarshaling blueprint: %w", err)
		}
		if current.CurrentStep != expectedCurrentStep {
			return ErrConflict
		}

		bp.UpdatedAt = time.Now()
		if bp.Complete() {
			bp.Dormant = true
		}
		updated, err := json.Marshal(bp)
		if err != nil {
			return fmt.Errorf("marshaling blueprint: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.ttl)
			if bp.ChainID != "" {
				pipe.Set(ctx, s.chainKey(bp.ChainID), bp.SessionID, s.ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		// Another writer touched the key mid-transaction; re-read and
		// re-check the step expectation.
		prometheus.RecordSessionCASRetry()
	}
	return ErrConflict
}

var _ Store = (*RedisStore)(nil)
