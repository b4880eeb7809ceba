package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"proctor/pkg/platform/sentinel"
)

const attemptKeyPrefix = "attempt:"

// RedisStateStore persists attempt state in Redis. Used for exam-hall kiosk
// deployments where agents share a local Redis so an attempt survives moving
// the student to another machine. Records expire on their own after the TTL
// as a safety net; normal cleanup is the Delete on successful submission.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, ttl: ttl}
}

func redisAttemptKey(userID, olympiadID string) string {
	return attemptKeyPrefix + userID + ":" + olympiadID
}

func (s *RedisStateStore) Load(ctx context.Context, userID, olympiadID string) (*AttemptState, error) {
	raw, err := s.client.Get(ctx, redisAttemptKey(userID, olympiadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("attempt state: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt state: %w", err)
	}
	state := &AttemptState{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decode attempt state: %w", err)
	}
	return state, nil
}

func (s *RedisStateStore) Save(ctx context.Context, state *AttemptState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode attempt state: %w", err)
	}
	key := redisAttemptKey(state.UserID, state.OlympiadID)
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save attempt state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Delete(ctx context.Context, userID, olympiadID string) error {
	if err := s.client.Del(ctx, redisAttemptKey(userID, olympiadID)).Err(); err != nil {
		return fmt.Errorf("delete attempt state: %w", err)
	}
	return nil
}
