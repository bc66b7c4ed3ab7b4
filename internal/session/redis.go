package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"helpdesk/internal/domain"
)

const redisKeyPrefix = "helpdesk:session:"

// RedisStore keeps one JSON value per session with a TTL equal to the idle
// timeout, so Redis itself drops idle sessions.
type RedisStore struct {
	client      *redis.Client
	idleTimeout time.Duration
	now         func() time.Time
}

func NewRedisStore(client *redis.Client, idleTimeout time.Duration) *RedisStore {
	return &RedisStore{
		client:      client,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	raw, err := s.client.Get(ctx, redisKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if state.Slots == nil {
		state.Slots = map[string]domain.SlotValue{}
	}
	return &state, nil
}

func (s *RedisStore) CreateOrGet(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	state, err := s.Get(ctx, sessionID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	fresh := domain.NewConversationState(sessionID, s.now())
	raw, err := json.Marshal(fresh)
	if err != nil {
		return nil, err
	}

	ok, err := s.client.SetNX(ctx, redisKey(sessionID), raw, s.idleTimeout).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race to another writer; return what they stored.
		return s.Get(ctx, sessionID)
	}
	return fresh, nil
}

func (s *RedisStore) Save(ctx context.Context, state *domain.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(state.SessionID), raw, s.idleTimeout).Err()
}

func (s *RedisStore) Reset(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, redisKey(sessionID)).Err()
}

// ExpireIdle is a no-op for Redis: every Save refreshes the key TTL, so idle
// sessions age out server-side without a scan.
func (s *RedisStore) ExpireIdle(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}
