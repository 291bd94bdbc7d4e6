// Command enqueue adds one backlog item to the image_queue, for backfills and
// for poking the migration workers by hand.
package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/PluralKit/avatars/internal/config"
	"github.com/PluralKit/avatars/internal/entities"
	"github.com/PluralKit/avatars/internal/repository/storage"
)

func main() {
	cfgFile := flag.String("config", "config.json", "path to config file")
	url := flag.String("url", "", "source image url")
	kind := flag.String("kind", string(entities.KindAvatar), "image kind (avatar or banner)")
	flag.Parse()

	if *url == "" {
		log.Fatal().Msg("-url is required")
	}
	imageKind := entities.ImageKind(*kind)
	if !imageKind.Valid() {
		log.Fatal().Str("kind", *kind).Msg("kind must be avatar or banner")
	}

	cfg := config.NewConfig()
	if err := cfg.Read(*cfgFile); err != nil {
		log.Fatal().Err(err).Msg("failed to read config")
	}

	ctx := context.Background()
	repo, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer repo.Close()

	if err := repo.Enqueue(ctx, *url, imageKind); err != nil {
		log.Fatal().Err(err).Msg("failed to enqueue item")
	}

	depth, err := repo.QueueDepth(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read queue depth")
	}
	log.Info().Str("url", *url).Str("kind", *kind).Int64("depth", depth).Msg("enqueued item")
}
