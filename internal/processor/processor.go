// Package processor turns untrusted image bytes into the canonical stored
// artifact: a lossy webp sized for its kind, addressed by the sha256 of the
// encoded bytes. Input is fully untrusted, so the cheap checks (format sniff,
// header dimensions) run before anything proportional to the pixel count.
package processor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/PluralKit/avatars/internal/config"
	"github.com/PluralKit/avatars/internal/entities"
	"github.com/PluralKit/avatars/internal/faults"
)

const outputMimeType = "image/webp"

// Output is the encoded artifact. Hash is hex sha256 over Data.
type Output struct {
	Width    int
	Height   int
	Hash     string
	Data     []byte
	MimeType string
}

type codec struct {
	decodeConfig func(io.Reader) (image.Config, error)
	decode       func(io.Reader) (image.Image, error)
}

// codecs holds the allowed container formats, keyed by sniffed mime type.
var codecs = map[string]codec{
	"image/png":  {png.DecodeConfig, png.Decode},
	"image/jpeg": {jpeg.DecodeConfig, jpeg.Decode},
	"image/gif":  {gif.DecodeConfig, gif.Decode},
	"image/webp": {webp.DecodeConfig, webp.Decode},
}

type Processor struct {
	cfg config.PipelineConfig
}

func New(cfg config.PipelineConfig) *Processor {
	return &Processor{cfg: cfg}
}

// Process sniffs, validates, decodes, resizes and re-encodes one payload.
func (p *Processor) Process(data []byte, kind entities.ImageKind) (*Output, error) {
	mime := mimetype.Detect(data).String()
	c, ok := codecs[mime]
	if !ok {
		if strings.HasPrefix(mime, "image/") {
			return nil, faults.UnsupportedFormatErr(mime)
		}
		return nil, faults.UnknownFormatErr()
	}

	// Dimensions come from the container header, without decoding pixel data.
	// A 16000x16000 png is ~31kb on disk and close to a gigabyte decoded, so
	// this has to happen before the full decode.
	cfg, err := c.decodeConfig(bytes.NewReader(data))
	if err != nil {
		log.Error().Err(err).Msg("error reading image header")
		return nil, faults.DecodeErr(err)
	}
	if cfg.Width > p.cfg.MaxDimension || cfg.Height > p.cfg.MaxDimension {
		return nil, faults.DimensionsTooLargeErr(cfg.Width, cfg.Height, p.cfg.MaxDimension)
	}

	img, err := c.decode(bytes.NewReader(data))
	if err != nil {
		// log the ugly error, return the nice error
		log.Error().Err(err).Msg("error decoding image")
		return nil, faults.DecodeErr(err)
	}

	img = fit(img, p.cfg.BoundingBox(kind))

	out, err := p.encode(img)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("hash", out.Hash).
		Int("original_bytes", len(data)).
		Int("encoded_bytes", len(out.Data)).
		Str("original_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)).
		Str("encoded_size", fmt.Sprintf("%dx%d", out.Width, out.Height)).
		Msg("processed image")
	return out, nil
}

// fit downscales img to fit inside a box*box bounding box, preserving aspect
// ratio. Images already inside the box pass through untouched; we never
// upscale.
func fit(img image.Image, box int) image.Image {
	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())
	if w == 0 || h == 0 {
		return img
	}

	ratio := w / float64(box)
	if hRatio := h / float64(box); hRatio > ratio {
		ratio = hRatio
	}
	if ratio <= 1 {
		return img
	}

	return imaging.Resize(img, int(w/ratio), int(h/ratio), imaging.Lanczos)
}

// encode re-encodes the pixel buffer to lossy webp with a fixed RGBA layout
// and hashes the result. A buffer that decoded cleanly always encodes, so any
// failure here is internal.
func (p *Processor) encode(img image.Image) (*Output, error) {
	rgba := imaging.Clone(img)

	start := time.Now()
	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, rgba, &webp.Options{Quality: p.cfg.Quality, Exact: true}); err != nil {
		return nil, faults.InternalErr(fmt.Errorf("encoding webp: %w", err))
	}

	sum := sha256.Sum256(buf.Bytes())
	hash := hex.EncodeToString(sum[:])

	bounds := rgba.Bounds()
	log.Debug().
		Str("hash", hash).
		Int("lossy_kb", buf.Len()/1024).
		Dur("took", time.Since(start)).
		Msg("encoded webp")

	return &Output{
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Hash:     hash,
		Data:     buf.Bytes(),
		MimeType: outputMimeType,
	}, nil
}
