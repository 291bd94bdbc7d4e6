package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PluralKit/avatars/cmd/migrate"
	"github.com/PluralKit/avatars/internal/cache"
	"github.com/PluralKit/avatars/internal/config"
	"github.com/PluralKit/avatars/internal/processor"
	"github.com/PluralKit/avatars/internal/puller"
	"github.com/PluralKit/avatars/internal/queue"
	"github.com/PluralKit/avatars/internal/r2"
	"github.com/PluralKit/avatars/internal/redisholder"
	"github.com/PluralKit/avatars/internal/repository/storage"
	"github.com/PluralKit/avatars/internal/transport/handler"
	"github.com/PluralKit/avatars/internal/transport/router"
	use_case "github.com/PluralKit/avatars/internal/use-case"
)

type App struct {
	HttpServer *http.Server

	pool *processor.Pool
}

// New wires every long-lived handle once and passes them into the components
// that need them; nothing reaches for globals.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations); err != nil {
		return nil, err
	}

	repo, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	holder, err := redisholder.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	redisCache := cache.New("avatars:images", holder, cfg.Cache.RecordTTL, cfg.Cache.StatsTTL)

	r2Storage, err := r2.NewStorage(&cfg.R2)
	if err != nil {
		return nil, err
	}

	pool := processor.NewPool(processor.New(cfg.Pipeline), cfg.Pipeline.Workers)

	uc := use_case.New(repo, puller.New(cfg.Fetch), pool, r2Storage, redisCache, cfg.BaseURL)

	queue.Start(ctx, repo, uc, cfg.Migrate)

	h := handler.New(uc)
	r := router.NewRouter(h)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	return &App{
		HttpServer: s,
		pool:       pool,
	}, nil
}

// Run serves until ctx is canceled, then shuts the server down and drains the
// processing pool. In-flight queue claims are simply rolled back by the
// database when their connections drop.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.HttpServer.Addr).Msg("starting server")
		if err := a.HttpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info().Msg("shutting down server")
	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down server")
	}
	a.pool.Close()
	return nil
}
