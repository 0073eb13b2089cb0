package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baechuer/tour-booking/pkg/broker/rabbitmq"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/logger"
	"github.com/baechuer/tour-booking/services/expiration-service/internal/config"
	"github.com/baechuer/tour-booking/services/expiration-service/internal/consumer"
	"github.com/baechuer/tour-booking/services/expiration-service/internal/infrastructure/redisq"
	"github.com/baechuer/tour-booking/services/expiration-service/internal/service"
	"github.com/baechuer/tour-booking/services/expiration-service/internal/transport/rest"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", config.ServiceName).
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Redis (job store) ----
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
	defer rdb.Close()
	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis ping failed")
		}
		log.Info().Msg("redis connected")
	}

	// ---- RabbitMQ ----
	mq, err := rabbitmq.Dial(rootCtx, cfg.Rabbit, log)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connect failed")
	}

	queue := redisq.New(rdb, redisq.Options{
		Prefix:      cfg.JobPrefix,
		BatchSize:   cfg.BatchSize,
		MaxAttempts: cfg.MaxAttempts,
		FiredTTL:    cfg.FiredTTL,
	}, log)
	expirer := service.NewExpirer(queue, mq)

	reg := events.NewRegistry()
	consumer.Register(reg, expirer, log)
	if err := reg.SubscribeAll(rootCtx, mq, config.ServiceName); err != nil {
		log.Fatal().Err(err).Msg("subscribe failed")
	}

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		queue.Run(rootCtx, cfg.PollInterval, expirer.Fire)
	}()

	// ---- HTTP server (health + metrics only) ----
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           rest.NewRouter(queue),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-pollerDone
	_ = mq.Close()
	log.Info().Msg("shutdown complete")
}
