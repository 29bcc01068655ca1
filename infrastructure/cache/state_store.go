package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"

	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "oauth:state:"

// RedisStateStore keeps authorization states in Redis with a TTL. GETDEL makes consumption single use.
type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) Put(ctx context.Context, state model.StateToken, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	ok, err := s.client.SetNX(ctx, stateKeyPrefix+state.Nonce, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("store state: %w", err)
	}
	if !ok {
		return fmt.Errorf("store state: %w", model.ErrConflict)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, nonce string) (*model.StateToken, error) {
	data, err := s.client.GetDel(ctx, stateKeyPrefix+nonce).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}
	var st model.StateToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &st, nil
}

// MemoryStateStore is the single instance fallback used when Redis is unavailable.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]memoryState
	now    func() time.Time
}

type memoryState struct {
	token     model.StateToken
	expiresAt time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: map[string]memoryState{}, now: time.Now}
}

func (s *MemoryStateStore) Put(_ context.Context, state model.StateToken, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.states {
		if now.After(v.expiresAt) {
			delete(s.states, k)
		}
	}
	if _, exists := s.states[state.Nonce]; exists {
		return fmt.Errorf("store state: %w", model.ErrConflict)
	}
	s.states[state.Nonce] = memoryState{token: state, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, nonce string) (*model.StateToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[nonce]
	if !ok {
		return nil, model.ErrInvalidState
	}
	delete(s.states, nonce)
	if s.now().After(st.expiresAt) {
		return nil, model.ErrInvalidState
	}
	tok := st.token
	return &tok, nil
}

var (
	_ repository.IStateStore = (*RedisStateStore)(nil)
	_ repository.IStateStore = (*MemoryStateStore)(nil)
)
