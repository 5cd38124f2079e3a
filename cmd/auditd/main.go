package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"veilcloud/internal/config"
	"veilcloud/internal/infra/db"
	httpinfra "veilcloud/internal/infra/http"
	"veilcloud/internal/usecase"
)

func main() {
	cfg := config.FromEnv()
	logger := newLogger(cfg.LogLevel)

	store, err := db.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init store")
	}

	srv, err := httpinfra.NewServer(cfg, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init server")
	}

	if cfg.SnapshotInterval() > 0 && len(cfg.SnapshotScopes) > 0 {
		scheduler := &usecase.SnapshotScheduler{
			Service:  srv.Proofs(),
			Scopes:   cfg.SnapshotScopes,
			Interval: cfg.SnapshotInterval(),
			Logger:   logger,
		}
		go scheduler.Run(context.Background())
	}

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("auditd listening")
	if err := srv.Run(); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(parsed).
		With().Timestamp().Logger()
}
