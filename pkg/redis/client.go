package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"cadence/pkg/config"
)

const defaultDialTimeout = 5 * time.Second

// Config configures a Redis connection. URL wins over Addrs when both are set.
type Config struct {
	URL          string
	Addrs        []string // single addr, or cluster seed nodes
	MasterName   string   // sentinel only
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoadConfig reads REDIS_URL, or REDIS_ADDRS / REDIS_MASTER_NAME / REDIS_PASSWORD / REDIS_DB.
func LoadConfig() Config {
	return Config{
		URL:         config.GetEnv("REDIS_URL", ""),
		Addrs:       config.GetEnvList("REDIS_ADDRS"),
		MasterName:  config.GetEnv("REDIS_MASTER_NAME", ""),
		Password:    config.GetEnv("REDIS_PASSWORD", ""),
		DB:          config.GetEnvInt("REDIS_DB", 0),
		DialTimeout: config.GetEnvDuration("REDIS_DIAL_TIMEOUT", defaultDialTimeout),
	}
}

// NewClient connects and pings. go-redis routes internally: MasterName set
// means Sentinel, multiple Addrs means Cluster, a single Addr is standalone.
func NewClient(ctx context.Context, cfg Config) (goredis.UniversalClient, error) {
	opts, err := universalOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := goredis.NewUniversalClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func universalOptions(cfg Config) (*goredis.UniversalOptions, error) {
	opts := &goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  orDefault(cfg.DialTimeout),
		ReadTimeout:  orDefault(cfg.ReadTimeout),
		WriteTimeout: orDefault(cfg.WriteTimeout),
	}
	if strings.TrimSpace(cfg.URL) != "" {
		parsed, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addrs = []string{parsed.Addr}
		opts.Username = parsed.Username
		opts.Password = parsed.Password
		opts.DB = parsed.DB
		opts.TLSConfig = parsed.TLSConfig
	}
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("at least one redis address is required")
	}
	return opts, nil
}

func orDefault(d time.Duration) time.Duration {
	if d == 0 {
		return defaultDialTimeout
	}
	return d
}
