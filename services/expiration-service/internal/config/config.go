package config

import (
	"fmt"
	"time"

	"github.com/baechuer/tour-booking/pkg/broker/rabbitmq"
	"github.com/baechuer/tour-booking/pkg/env"
)

const ServiceName = "expiration-service"

type Config struct {
	AppEnv   string
	HTTPAddr string

	RedisAddr string
	RedisPass string
	RedisDB   int

	Rabbit rabbitmq.Config

	JobPrefix    string
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	FiredTTL     time.Duration
}

func Load() (*Config, error) {
	env.Load()

	cfg := &Config{
		AppEnv:       env.String("APP_ENV", "dev"),
		HTTPAddr:     env.String("HTTP_ADDR", ":8086"),
		RedisAddr:    env.String("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPass:    env.String("REDIS_PASSWORD", ""),
		RedisDB:      env.Int("REDIS_DB", 0),
		Rabbit:       rabbitmq.ConfigFromEnv(ServiceName),
		JobPrefix:    env.String("EXPIRATION_KEY_PREFIX", "expiration"),
		PollInterval: env.Duration("EXPIRATION_POLL_INTERVAL", 250*time.Millisecond),
		BatchSize:    env.Int("EXPIRATION_BATCH_SIZE", 50),
		MaxAttempts:  env.Int("EXPIRATION_MAX_ATTEMPTS", 10),
		FiredTTL:     env.Duration("EXPIRATION_FIRED_TTL", 24*time.Hour),
	}

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("EXPIRATION_POLL_INTERVAL must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("EXPIRATION_MAX_ATTEMPTS must be positive")
	}
	return cfg, nil
}
