// Package storage is the metadata catalog: the images table plus the
// image_queue backlog. It is the only component with real mutual-exclusion
// needs, and all of them are pushed down into Postgres (skip-locked dequeue,
// insert-on-conflict-do-nothing).
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PluralKit/avatars/internal/entities"
)

// Tx is the slice of pgx.Tx a dequeue claim hands to its caller: the claim is
// only final once committed, and rolling back puts the item up for grabs again.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type dbStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

const imageColumns = `id, kind, url, file_size, width, height, uploaded_at,
	original_url, original_attachment_id, original_file_size, original_type,
	uploaded_by_account, uploaded_by_system`

func scanImage(row pgx.Row) (*entities.ImageRecord, error) {
	var rec entities.ImageRecord
	err := row.Scan(
		&rec.ID, &rec.Kind, &rec.URL, &rec.FileSize, &rec.Width, &rec.Height,
		&rec.UploadedAt, &rec.OriginalURL, &rec.OriginalAttachmentID,
		&rec.OriginalFileSize, &rec.OriginalType, &rec.UploadedByAccount,
		&rec.UploadedBySystem,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByAttachmentID is the primary dedup lookup. A miss is (nil, nil).
func (s *dbStorage) GetByAttachmentID(ctx context.Context, attachmentID int64) (*entities.ImageRecord, error) {
	row := s.dbpool.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images WHERE original_attachment_id = $1`, attachmentID)
	rec, err := scanImage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query image by attachment id: %w", err)
	}
	return rec, nil
}

func (s *dbStorage) GetByOriginalURL(ctx context.Context, originalURL string) (*entities.ImageRecord, error) {
	row := s.dbpool.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images WHERE original_url = $1`, originalURL)
	rec, err := scanImage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query image by original url: %w", err)
	}
	return rec, nil
}

// InsertImage inserts a record keyed by its content hash. A concurrent or
// earlier attempt that stored the same artifact wins silently; the return
// value says whether this call was the one that created the row.
func (s *dbStorage) InsertImage(ctx context.Context, rec *entities.ImageRecord) (bool, error) {
	tag, err := s.dbpool.Exec(ctx,
		`INSERT INTO images (id, kind, url, file_size, width, height,
			original_url, original_attachment_id, original_file_size, original_type,
			uploaded_by_account, uploaded_by_system, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, (now() at time zone 'utc'))
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Kind, rec.URL, rec.FileSize, rec.Width, rec.Height,
		rec.OriginalURL, rec.OriginalAttachmentID, rec.OriginalFileSize,
		rec.OriginalType, rec.UploadedByAccount, rec.UploadedBySystem,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert image: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Enqueue adds a backlog item; cmd/enqueue drives it for manual backfills.
func (s *dbStorage) Enqueue(ctx context.Context, url string, kind entities.ImageKind) error {
	_, err := s.dbpool.Exec(ctx,
		`INSERT INTO image_queue (url, kind) VALUES ($1, $2)`, url, kind)
	if err != nil {
		return fmt.Errorf("failed to enqueue item: %w", err)
	}
	return nil
}

// DequeueOne claims the oldest pending queue item. The DELETE targets a row
// picked with FOR UPDATE SKIP LOCKED, so rows mid-claim in another transaction
// are invisible here instead of blocking us, and no two callers ever hold the
// same item. The deletion only sticks when the caller commits; rollback makes
// the item claimable again. An empty queue returns (nil, nil, nil).
func (s *dbStorage) DequeueOne(ctx context.Context) (Tx, *entities.QueueItem, error) {
	tx, err := s.dbpool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin dequeue transaction: %w", err)
	}

	var item entities.QueueItem
	err = tx.QueryRow(ctx,
		`DELETE FROM image_queue
		WHERE itemid = (
			SELECT itemid FROM image_queue
			ORDER BY itemid
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING itemid, url, kind`,
	).Scan(&item.ItemID, &item.URL, &item.Kind)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return nil, nil, nil
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, fmt.Errorf("failed to dequeue item: %w", err)
	}

	return tx, &item, nil
}

func (s *dbStorage) QueueDepth(ctx context.Context) (int64, error) {
	var count int64
	err := s.dbpool.QueryRow(ctx, `SELECT count(*) FROM image_queue`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return count, nil
}

func (s *dbStorage) GetStats(ctx context.Context) (*entities.Stats, error) {
	var stats entities.Stats
	err := s.dbpool.QueryRow(ctx,
		`SELECT count(*), coalesce(sum(file_size), 0) FROM images`,
	).Scan(&stats.TotalImages, &stats.TotalFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return &stats, nil
}
