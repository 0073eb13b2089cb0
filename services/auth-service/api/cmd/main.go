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
	"github.com/baechuer/tour-booking/pkg/logger"
	"github.com/baechuer/tour-booking/pkg/outbox"
	"github.com/baechuer/tour-booking/pkg/security"
	"github.com/baechuer/tour-booking/services/auth-service/internal/config"
	"github.com/baechuer/tour-booking/services/auth-service/internal/infrastructure/postgres"
	"github.com/baechuer/tour-booking/services/auth-service/internal/service"
	"github.com/baechuer/tour-booking/services/auth-service/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
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

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()
	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()
		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	// ---- RabbitMQ ----
	mq, err := rabbitmq.Dial(rootCtx, cfg.Rabbit, log)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connect failed")
	}

	svc := service.NewUserService(postgres.New(dbPool))

	relay := outbox.NewRelay(outbox.NewPgxStore(dbPool), mq, cfg.Outbox, log)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(rootCtx)
	}()

	// ---- HTTP server ----
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: rest.NewRouter(rest.RouterDeps{
			Handler:    rest.NewHandler(svc),
			Verifier:   security.NewHS256Verifier(cfg.JWTSecret),
			JWTIssuer:  cfg.JWTIssuer,
			RateLimit:  cfg.RLLimit,
			RateWindow: cfg.RLWindow,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
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
	<-relayDone
	_ = mq.Close()
	log.Info().Msg("shutdown complete")
}
