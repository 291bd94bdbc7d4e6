package r2

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	conf "github.com/PluralKit/avatars/internal/config"
	"github.com/PluralKit/avatars/internal/faults"
	"github.com/PluralKit/avatars/internal/processor"
)

// Storage writes encoded artifacts to an S3-compatible bucket (R2). Keys are
// derived from the content hash, so re-writing the same artifact is harmless
// and the store needs no overwrite protection.
type Storage struct {
	Bucket string
	Region string // usually "auto" for R2

	S3Client *s3.Client
	Uploader *manager.Uploader
}

// StoreResult is the artifact id (the content hash) plus the relative path
// the bytes now live under.
type StoreResult struct {
	ID   string
	Path string
}

func NewStorage(cfg *conf.R2Config) (*Storage, error) {
	s := &Storage{
		Bucket: cfg.BucketName,
		Region: "auto",
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretKey, "",
		)),
		config.WithRegion(s.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	s.S3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	s.Uploader = manager.NewUploader(s.S3Client)

	return s, nil
}

// Store puts the encoded bytes under images/<hash[:2]>/<hash[2:]>.webp. The
// two-level prefix keeps any one "directory" from growing pathological. The
// put is not retried here; a failed attempt is abandoned and the worker loop
// decides whether the item comes back.
func (s *Storage) Store(ctx context.Context, out *processor.Output) (*StoreResult, error) {
	path := fmt.Sprintf("images/%s/%s.webp", out.Hash[:2], out.Hash[2:])

	_, err := s.Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(out.Data),
		ContentType: aws.String(out.MimeType),
	})
	if err != nil {
		log.Error().Err(err).Str("key", path).Msg("storage backend rejected upload")
		return nil, faults.StoreErr(err)
	}
	log.Debug().Str("key", path).Msg("uploaded image")

	return &StoreResult{ID: out.Hash, Path: path}, nil
}
