package state

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"cadence/internal/models"
	"cadence/pkg/logging"
	"cadence/pkg/redis"
)

const DefaultRedisKey = "cadence:state"

// RedisStore keeps state as a JSON value under a single key.
type RedisStore struct {
	client goredis.UniversalClient
	value  *redis.JSONValue[models.BotState]
	logger logging.Logger
}

func NewRedisStore(client goredis.UniversalClient, key string, logger logging.Logger) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		client: client,
		value:  redis.NewJSONValue[models.BotState](client, key),
		logger: logger,
	}
}

func (s *RedisStore) Load(ctx context.Context) *models.BotState {
	st, err := s.value.Get(ctx)
	if errors.Is(err, redis.ErrNotFound) {
		s.logger.WithField("key", s.value.Key()).Info("No stored state, starting fresh")
		return models.NewBotState()
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", s.value.Key()).Warn("Failed to load state, using defaults")
		return models.NewBotState()
	}
	st.Normalize()
	return &st
}

func (s *RedisStore) Save(ctx context.Context, st *models.BotState) error {
	if err := s.value.Set(ctx, *st); err != nil {
		return &models.PersistenceError{Path: "redis://" + s.value.Key(), Err: err}
	}
	return nil
}

// Ping reports backend reachability for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
