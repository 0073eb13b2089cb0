package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/baechuer/tour-booking/pkg/broker/rabbitmq"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/logger"
	"github.com/baechuer/tour-booking/pkg/outbox"
	"github.com/baechuer/tour-booking/pkg/security"
	"github.com/baechuer/tour-booking/pkg/userban"
	"github.com/baechuer/tour-booking/services/payment-service/internal/config"
	"github.com/baechuer/tour-booking/services/payment-service/internal/consumer"
	"github.com/baechuer/tour-booking/services/payment-service/internal/infrastructure/gateway"
	"github.com/baechuer/tour-booking/services/payment-service/internal/infrastructure/postgres"
	"github.com/baechuer/tour-booking/services/payment-service/internal/service"
	"github.com/baechuer/tour-booking/services/payment-service/internal/transport/rest"
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

	// ---- Postgres ----
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db open failed")
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 3*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("db ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	// ---- Redis (user-ban replica) ----
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
	bans := userban.NewStore(rdb)

	// ---- RabbitMQ ----
	mq, err := rabbitmq.Dial(rootCtx, cfg.Rabbit, log)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connect failed")
	}

	bookings := postgres.NewBookingStore(db)
	svc := service.NewPaymentService(postgres.New(db), bookings, bans, gateway.NewSandbox(), cfg.Currency)

	reg := events.NewRegistry()
	consumer.Register(reg, consumer.Deps{Bookings: bookings, Bans: bans, Log: log})
	if err := reg.SubscribeAll(rootCtx, mq, config.ServiceName); err != nil {
		log.Fatal().Err(err).Msg("subscribe failed")
	}

	relay := outbox.NewRelay(outbox.NewSQLStore(db), mq, cfg.Outbox, log)
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
