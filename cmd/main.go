package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PluralKit/avatars/internal/app"
	"github.com/PluralKit/avatars/internal/config"
)

const file = "config.json"

func initSentry(cfg *config.SentryConfig, version string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Timestamp().Logger()
	if os.Getenv("LOG_PRETTY") == "1" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg := config.NewConfig()
	if err := cfg.Read(file); err != nil {
		log.Fatal().Err(err).Msg("failed to read config")
	}

	if err := initSentry(&cfg.Sentry, "v1"); err != nil {
		log.Fatal().Err(err).Msg("sentry.Init failed")
	}

	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize app")
	}

	if err := a.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
