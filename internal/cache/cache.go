package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/PluralKit/avatars/internal/entities"
)

// ClientSource resolves the current redis client. The health loop may swap
// the client at any time, so it is looked up per operation, never held.
type ClientSource interface {
	Get() redis.UniversalClient
}

// Cache is a best-effort read-through layer in front of the catalog's dedup
// lookup and the stats aggregate. Redis being down only costs us database
// round trips, so every error here is logged and swallowed.
type Cache struct {
	Source    ClientSource
	Namespace string

	RecordTTL time.Duration
	StatsTTL  time.Duration
}

// New creates a cache. TTLs are in seconds.
func New(namespace string, source ClientSource, recordTTL, statsTTL int) *Cache {
	return &Cache{
		Source:    source,
		Namespace: namespace,
		RecordTTL: time.Duration(recordTTL) * time.Second,
		StatsTTL:  time.Duration(statsTTL) * time.Second,
	}
}

func (c *Cache) recordKey(attachmentID int64) string {
	return c.Namespace + ":attachment:" + strconv.FormatInt(attachmentID, 10)
}

func (c *Cache) GetRecord(ctx context.Context, attachmentID int64) (*entities.ImageRecord, bool) {
	raw, err := c.Source.Get().Get(ctx, c.recordKey(attachmentID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Msg("cache: record lookup failed")
		}
		return nil, false
	}
	var rec entities.ImageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (c *Cache) StoreRecord(ctx context.Context, attachmentID int64, rec *entities.ImageRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.Source.Get().Set(ctx, c.recordKey(attachmentID), raw, c.RecordTTL).Err(); err != nil {
		log.Debug().Err(err).Msg("cache: record store failed")
	}
}

func (c *Cache) GetStats(ctx context.Context) (*entities.Stats, bool) {
	raw, err := c.Source.Get().Get(ctx, c.Namespace+":stats").Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Msg("cache: stats lookup failed")
		}
		return nil, false
	}
	var stats entities.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false
	}
	return &stats, true
}

func (c *Cache) StoreStats(ctx context.Context, stats *entities.Stats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.Source.Get().Set(ctx, c.Namespace+":stats", raw, c.StatsTTL).Err(); err != nil {
		log.Debug().Err(err).Msg("cache: stats store failed")
	}
}
