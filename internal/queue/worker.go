// Package queue drains the image_queue backlog through the ingestion
// pipeline. Correctness lives in the database: the skip-locked dequeue makes
// claims exclusive, and commit-vs-rollback of the claim transaction decides
// whether an item is done, skipped for good, or comes back later.
package queue

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"

	"github.com/PluralKit/avatars/internal/config"
	"github.com/PluralKit/avatars/internal/entities"
	"github.com/PluralKit/avatars/internal/faults"
	"github.com/PluralKit/avatars/internal/repository/storage"
	use_case "github.com/PluralKit/avatars/internal/use-case"
)

type Catalog interface {
	DequeueOne(ctx context.Context) (storage.Tx, *entities.QueueItem, error)
	QueueDepth(ctx context.Context) (int64, error)
}

type Ingestor interface {
	Pull(ctx context.Context, p use_case.PullParams) (*use_case.PullOutcome, error)
}

type Worker struct {
	catalog Catalog
	ingest  Ingestor
	cfg     config.MigrateWorkerConfig
}

func NewWorker(catalog Catalog, ingest Ingestor, cfg config.MigrateWorkerConfig) *Worker {
	return &Worker{catalog: catalog, ingest: ingest, cfg: cfg}
}

// Start spawns the configured number of independent polling loops. They share
// nothing in-process; the queue table serializes them.
func Start(ctx context.Context, catalog Catalog, ingest Ingestor, cfg config.MigrateWorkerConfig) {
	w := NewWorker(catalog, ingest, cfg)
	for i := 0; i < cfg.Workers; i++ {
		go w.loop(ctx, i)
	}
}

func (w *Worker) loop(ctx context.Context, id int) {
	log.Info().Int("worker", id).Msg("migrate worker started")
	for {
		if ctx.Err() != nil {
			log.Info().Int("worker", id).Msg("migrate worker stopped")
			return
		}
		if err := w.handleNext(ctx); err != nil {
			// a per-item failure never kills the loop
			log.Error().Err(err).Int("worker", id).Msg("error in migrate worker")
			sentry.CaptureException(err)
			w.sleep(ctx)
		}
	}
}

// handleNext claims one item and runs it through ingestion. Success and
// permanently unmigratable items commit (the row stays deleted); everything
// else rolls back so a later claim retries it.
func (w *Worker) handleNext(ctx context.Context) error {
	depth, err := w.catalog.QueueDepth(ctx)
	if err != nil {
		return err
	}
	log.Debug().Int64("depth", depth).Msg("migrate queue length")

	tx, item, err := w.catalog.DequeueOne(ctx)
	if err != nil {
		return err
	}
	if item == nil {
		w.sleep(ctx)
		return nil
	}

	itemCtx, cancel := context.WithTimeout(ctx, w.cfg.ItemTimeout*time.Second)
	defer cancel()

	_, err = w.ingest.Pull(itemCtx, use_case.PullParams{URL: item.URL, Kind: item.Kind})
	if err == nil {
		return tx.Commit(ctx)
	}

	if faults.Classify(err) == faults.ClassPermanent {
		log.Warn().Err(err).Str("url", item.URL).Int64("itemid", item.ItemID).
			Msg("item cannot be migrated, skipping")
		return tx.Commit(ctx)
	}

	if rbErr := tx.Rollback(ctx); rbErr != nil {
		log.Error().Err(rbErr).Int64("itemid", item.ItemID).Msg("failed to roll back claim")
	}
	return err
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-time.After(w.cfg.PollInterval * time.Second):
	case <-ctx.Done():
	}
}
