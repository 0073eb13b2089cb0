package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/env"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func Init() {
	InitWithWriter(os.Stdout)
}

func InitWithWriter(w io.Writer) {
	level, err := zerolog.ParseLevel(env.String("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if env.String("LOG_FORMAT", "json") == "console" {
		base = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: env.String("LOG_TIME_FORMAT", time.RFC3339),
			NoColor:    !env.Bool("LOG_COLOR", true),
		})
	} else {
		base = zerolog.New(w)
	}

	l := base.With().Timestamp().Logger().Level(level)
	if env.Bool("LOG_CALLER", false) {
		l = l.With().Caller().Logger()
	}

	Logger = l
	zlog.Logger = Logger
}

// WithCtx returns the global logger enriched with the request id carried by ctx.
func WithCtx(ctx context.Context) *zerolog.Logger {
	l := Logger
	if rid := appctx.GetRequestID(ctx); rid != "" {
		l = l.With().Str("request_id", rid).Logger()
	}
	return &l
}
