package puller

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PluralKit/avatars/internal/config"
	"github.com/PluralKit/avatars/internal/faults"
)

// allowedContentTypes is the declared-type allow-list; the pipeline re-sniffs
// the actual bytes later, this only rejects obvious non-images cheaply.
var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// PullResult is the raw origin payload for one ingestion attempt.
type PullResult struct {
	Data         []byte
	ContentType  string
	LastModified string
}

// Puller fetches source images with bounded timeouts and strict response
// validation. It never retries; retry policy belongs to the worker loop.
type Puller struct {
	client  *http.Client
	maxSize int64
}

func New(cfg config.FetchConfig) *Puller {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout * time.Second}
	return &Puller{
		client: &http.Client{
			Timeout: cfg.Timeout * time.Second,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
		maxSize: cfg.MaxFileSize,
	}
}

// Pull performs one GET against the parsed source. Validation order matters:
// the declared size is checked before the body is read, so a lying origin can
// not make us buffer more than maxSize bytes.
func (p *Puller) Pull(ctx context.Context, src *ParsedSource) (*PullResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FullURL, nil)
	if err != nil {
		return nil, faults.InternalErr(err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", src.FullURL).Msg("network error fetching source")
		return nil, faults.NetworkErr(err)
	}
	defer resp.Body.Close()
	headersTime := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return nil, faults.BadOrigin(resp.StatusCode)
	}

	declared := resp.ContentLength
	if declared < 0 {
		return nil, faults.MissingHeaderErr("Content-Length")
	}
	if declared > p.maxSize {
		return nil, faults.PayloadTooLargeErr(declared, p.maxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return nil, faults.MissingHeaderErr("Content-Type")
	}
	mime := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if _, ok := allowedContentTypes[mime]; !ok {
		return nil, faults.UnsupportedContentTypeErr(mime)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxSize+1))
	if err != nil {
		log.Error().Err(err).Str("url", src.FullURL).Msg("network error reading source body")
		return nil, faults.NetworkErr(err)
	}
	if int64(len(body)) != declared {
		// lie-proofing against a misbehaving origin; a compliant server will
		// never trip this
		return nil, faults.Internalf("origin body length %d does not match declared %d", len(body), declared)
	}

	log.Info().
		Str("url", src.FullURL).
		Int("status", resp.StatusCode).
		Dur("headers", headersTime).
		Dur("body", time.Since(start)-headersTime).
		Msg("fetched source image")

	return &PullResult{
		Data:         body,
		ContentType:  mime,
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
