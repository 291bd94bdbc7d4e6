package config

import (
	"fmt"
	"time"

	"github.com/PluralKit/avatars/internal/entities"
)

type Config struct {
	Server   ServerConfig        `json:"server"`
	Database Database            `json:"database"`
	Redis    RedisConfig         `json:"redis"`
	R2       R2Config            `json:"r2"`
	Fetch    FetchConfig         `json:"fetch"`
	Pipeline PipelineConfig      `json:"pipeline"`
	Migrate  MigrateWorkerConfig `json:"migrate_worker"`
	Cache    CacheConfig         `json:"cache"`
	Sentry   SentryConfig        `json:"sentry"`

	// BaseURL is joined with the stored object path to build public URLs.
	BaseURL string `json:"base_url"`
}

type ServerConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`  // seconds
	WriteTimeout time.Duration `json:"write_timeout"` // seconds
}

type Database struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	PoolSize            int           `json:"pool_size"`
	Nodes               []RedisNode   `json:"nodes"`
}

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type R2Config struct {
	AccountID   string `json:"account_id"`
	BucketName  string `json:"bucket_name"`
	AccessKeyID string `json:"access_key_id"`
	SecretKey   string `json:"secret_key"`
	Endpoint    string `json:"endpoint"`
}

// FetchConfig bounds a single origin fetch. Durations are in seconds.
type FetchConfig struct {
	ConnectTimeout time.Duration `json:"connect_timeout"`
	Timeout        time.Duration `json:"timeout"`
	MaxFileSize    int64         `json:"max_file_size"`
}

// PipelineConfig tunes the decode/resize/encode pipeline. MaxDimension is the
// pre-decode ceiling on either declared axis; bounding boxes are per kind.
type PipelineConfig struct {
	MaxDimension int     `json:"max_dimension"`
	AvatarBox    int     `json:"avatar_box"`
	BannerBox    int     `json:"banner_box"`
	Quality      float32 `json:"quality"`
	Workers      int     `json:"workers"` // CPU pool size, 0 = GOMAXPROCS
}

// BoundingBox returns the square box an image of the given kind must fit in.
func (p PipelineConfig) BoundingBox(kind entities.ImageKind) int {
	if kind == entities.KindBanner {
		return p.BannerBox
	}
	return p.AvatarBox
}

type MigrateWorkerConfig struct {
	Workers      int           `json:"workers"`
	PollInterval time.Duration `json:"poll_interval"` // seconds
	ItemTimeout  time.Duration `json:"item_timeout"`  // seconds
}

type CacheConfig struct {
	RecordTTL int `json:"record_ttl"` // seconds
	StatsTTL  int `json:"stats_ttl"`  // seconds
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Fetch.ConnectTimeout == 0 {
		c.Fetch.ConnectTimeout = 3
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 3
	}
	if c.Fetch.MaxFileSize == 0 {
		c.Fetch.MaxFileSize = 4_000_000
	}
	if c.Pipeline.MaxDimension == 0 {
		c.Pipeline.MaxDimension = 3000
	}
	if c.Pipeline.AvatarBox == 0 {
		c.Pipeline.AvatarBox = 512
	}
	if c.Pipeline.BannerBox == 0 {
		c.Pipeline.BannerBox = 1024
	}
	if c.Pipeline.Quality == 0 {
		c.Pipeline.Quality = 90
	}
	if c.Migrate.PollInterval == 0 {
		c.Migrate.PollInterval = 5
	}
	if c.Migrate.ItemTimeout == 0 {
		c.Migrate.ItemTimeout = 120
	}
	if c.Cache.RecordTTL == 0 {
		c.Cache.RecordTTL = 600
	}
	if c.Cache.StatsTTL == 0 {
		c.Cache.StatsTTL = 30
	}
	if c.Redis.HealthCheckInterval == 0 {
		c.Redis.HealthCheckInterval = 30
	}
}
