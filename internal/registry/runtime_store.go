package registry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRuntimeStateKey = "partsearch:sources:runtime:v1"

// RuntimeSourceState is a persisted operator override for one source.
// Nil fields mean "no override".
type RuntimeSourceState struct {
	Enabled  *bool `json:"enabled,omitempty"`
	Priority *int  `json:"priority,omitempty"`
}

type RuntimeStateStore interface {
	Load(ctx context.Context) (map[string]RuntimeSourceState, error)
	Save(ctx context.Context, source string, state RuntimeSourceState) error
}

type RedisRuntimeStateStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisRuntimeStateStore(client redis.UniversalClient, key string) *RedisRuntimeStateStore {
	if client == nil {
		return nil
	}
	storeKey := strings.TrimSpace(key)
	if storeKey == "" {
		storeKey = defaultRuntimeStateKey
	}
	return &RedisRuntimeStateStore{
		client: client,
		key:    storeKey,
	}
}

func (s *RedisRuntimeStateStore) Load(ctx context.Context) (map[string]RuntimeSourceState, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	items, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	out := make(map[string]RuntimeSourceState, len(items))
	for source, encoded := range items {
		name := strings.ToLower(strings.TrimSpace(source))
		if name == "" || strings.TrimSpace(encoded) == "" {
			continue
		}
		var state RuntimeSourceState
		if err := json.Unmarshal([]byte(encoded), &state); err != nil {
			continue
		}
		out[name] = state
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *RedisRuntimeStateStore) Save(ctx context.Context, source string, state RuntimeSourceState) error {
	if s == nil || s.client == nil {
		return nil
	}
	name := strings.ToLower(strings.TrimSpace(source))
	if name == "" {
		return nil
	}

	if state.Enabled == nil && state.Priority == nil {
		return s.client.HDel(ctx, s.key, name).Err()
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, name, payload).Err()
}
