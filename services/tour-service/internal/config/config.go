package config

import (
	"fmt"
	"time"

	"github.com/baechuer/tour-booking/pkg/broker/rabbitmq"
	"github.com/baechuer/tour-booking/pkg/env"
	"github.com/baechuer/tour-booking/pkg/outbox"
)

const ServiceName = "tour-service"

type Config struct {
	AppEnv   string
	HTTPAddr string

	DBDSN string

	JWTSecret string
	JWTIssuer string

	RedisAddr string
	RedisPass string
	RedisDB   int

	RLLimit  int
	RLWindow time.Duration

	Rabbit rabbitmq.Config
	Outbox outbox.RelayConfig
}

func Load() (*Config, error) {
	env.Load()

	cfg := &Config{
		AppEnv:    env.String("APP_ENV", "dev"),
		HTTPAddr:  env.String("HTTP_ADDR", ":8082"),
		DBDSN:     env.PostgresDSN(),
		JWTSecret: env.String("JWT_SECRET", ""),
		JWTIssuer: env.String("JWT_ISSUER", ""),
		RedisAddr: env.String("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPass: env.String("REDIS_PASSWORD", ""),
		RedisDB:   env.Int("REDIS_DB", 0),
		RLLimit:   env.Int("RL_REQUESTS_LIMIT", 120),
		RLWindow:  env.Duration("RL_WINDOW", time.Minute),
		Rabbit:    rabbitmq.ConfigFromEnv(ServiceName),
		Outbox:    outbox.RelayConfigFromEnv(),
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("missing database config: provide DATABASE_URL or POSTGRES_ADDR/POSTGRES_USER/POSTGRES_PASSWORD/POSTGRES_DB")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}
	return cfg, nil
}
