// Package state persists the bot's scheduling state between runs.
package state

import (
	"context"
	"fmt"
	"strings"

	"cadence/internal/models"
	"cadence/pkg/logging"
	"cadence/pkg/redis"
)

// Store loads and saves BotState. Load never fails: a missing or unreadable
// state yields defaults.
type Store interface {
	Load(ctx context.Context) *models.BotState
	Save(ctx context.Context, s *models.BotState) error
}

// Config selects and configures a backend.
type Config struct {
	Backend  string // "file" (default) or "redis"
	Path     string
	RedisKey string
	Redis    redis.Config
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		return NewFileStore(cfg.Path, logger), nil
	case "redis":
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("open redis state store: %w", err)
		}
		return NewRedisStore(client, cfg.RedisKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
