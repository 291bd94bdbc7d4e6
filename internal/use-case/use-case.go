// Package use_case orchestrates a single ingestion attempt:
// validate → dedup check → fetch → process → store → record.
// Both the HTTP request path and the migration workers drive it.
package use_case

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PluralKit/avatars/internal/entities"
	"github.com/PluralKit/avatars/internal/processor"
	"github.com/PluralKit/avatars/internal/puller"
	"github.com/PluralKit/avatars/internal/r2"
)

type Catalog interface {
	GetByAttachmentID(ctx context.Context, attachmentID int64) (*entities.ImageRecord, error)
	GetByOriginalURL(ctx context.Context, originalURL string) (*entities.ImageRecord, error)
	InsertImage(ctx context.Context, rec *entities.ImageRecord) (bool, error)
	GetStats(ctx context.Context) (*entities.Stats, error)
	Ping(ctx context.Context) error
}

type Fetcher interface {
	Pull(ctx context.Context, src *puller.ParsedSource) (*puller.PullResult, error)
}

type Pipeline interface {
	Process(ctx context.Context, data []byte, kind entities.ImageKind) (*processor.Output, error)
}

type ContentStore interface {
	Store(ctx context.Context, out *processor.Output) (*r2.StoreResult, error)
}

type RecordCache interface {
	GetRecord(ctx context.Context, attachmentID int64) (*entities.ImageRecord, bool)
	StoreRecord(ctx context.Context, attachmentID int64, rec *entities.ImageRecord)
	GetStats(ctx context.Context) (*entities.Stats, bool)
	StoreStats(ctx context.Context, stats *entities.Stats)
}

// PullParams is one ingestion request. Force skips the dedup check and
// re-ingests even if the attachment was seen before.
type PullParams struct {
	URL        string
	Kind       entities.ImageKind
	UploadedBy *int64
	SystemID   *uuid.UUID
	Force      bool
}

// PullOutcome is the final public URL plus whether this attempt created the
// stored artifact or resolved to prior work.
type PullOutcome struct {
	URL string
	New bool
}

type useCase struct {
	catalog  Catalog
	fetcher  Fetcher
	pipeline Pipeline
	store    ContentStore
	cache    RecordCache
	baseURL  string
}

func New(catalog Catalog, fetcher Fetcher, pipeline Pipeline, store ContentStore, cache RecordCache, baseURL string) *useCase {
	return &useCase{
		catalog:  catalog,
		fetcher:  fetcher,
		pipeline: pipeline,
		store:    store,
		cache:    cache,
		baseURL:  baseURL,
	}
}

func (c *useCase) Pull(ctx context.Context, p PullParams) (*PullOutcome, error) {
	// parsing up front also normalizes the URL
	parsed, err := puller.ParseURL(p.URL)
	if err != nil {
		return nil, err
	}
	attachmentID := int64(parsed.AttachmentID)

	if !p.Force {
		if rec, ok := c.cache.GetRecord(ctx, attachmentID); ok {
			return &PullOutcome{URL: rec.URL, New: false}, nil
		}
		rec, err := c.catalog.GetByAttachmentID(ctx, attachmentID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// queue backfill rows predate attachment id extraction, so some
			// records only carry the raw source url
			rec, err = c.catalog.GetByOriginalURL(ctx, parsed.FullURL)
			if err != nil {
				return nil, err
			}
		}
		if rec != nil {
			c.cache.StoreRecord(ctx, attachmentID, rec)
			return &PullOutcome{URL: rec.URL, New: false}, nil
		}
	}

	pulled, err := c.fetcher.Pull(ctx, parsed)
	if err != nil {
		return nil, err
	}
	originalFileSize := int32(len(pulled.Data))

	encoded, err := c.pipeline.Process(ctx, pulled.Data, p.Kind)
	if err != nil {
		return nil, err
	}

	stored, err := c.store.Store(ctx, encoded)
	if err != nil {
		return nil, err
	}
	finalURL := c.baseURL + stored.Path

	rec := &entities.ImageRecord{
		ID:       stored.ID,
		Kind:     p.Kind,
		URL:      finalURL,
		FileSize: int32(len(encoded.Data)),
		Width:    int32(encoded.Width),
		Height:   int32(encoded.Height),

		OriginalURL:          &parsed.FullURL,
		OriginalAttachmentID: &attachmentID,
		OriginalFileSize:     &originalFileSize,
		OriginalType:         &pulled.ContentType,
		UploadedByAccount:    p.UploadedBy,
		UploadedBySystem:     p.SystemID,
	}
	isNew, err := c.catalog.InsertImage(ctx, rec)
	if err != nil {
		return nil, err
	}
	c.cache.StoreRecord(ctx, attachmentID, rec)

	log.Info().
		Str("url", finalURL).
		Int64("attachment_id", attachmentID).
		Int32("original_kb", originalFileSize/1024).
		Int("encoded_kb", len(encoded.Data)/1024).
		Bool("new", isNew).
		Msg("ingested image")

	return &PullOutcome{URL: finalURL, New: isNew}, nil
}

func (c *useCase) Stats(ctx context.Context) (*entities.Stats, error) {
	if stats, ok := c.cache.GetStats(ctx); ok {
		return stats, nil
	}
	stats, err := c.catalog.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.StoreStats(ctx, stats)
	return stats, nil
}

func (c *useCase) Health(ctx context.Context) error {
	return c.catalog.Ping(ctx)
}
