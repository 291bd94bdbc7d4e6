package faults

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"invalid source", InvalidSourceErr(), ClassPermanent},
		{"origin 404", BadOrigin(404), ClassPermanent},
		{"origin 403", BadOrigin(403), ClassPermanent},
		{"origin 500", BadOrigin(500), ClassTransient},
		{"origin 429", BadOrigin(429), ClassTransient},
		{"network", NetworkErr(errors.New("connection refused")), ClassTransient},
		{"missing header", MissingHeaderErr("Content-Length"), ClassPermanent},
		{"content type", UnsupportedContentTypeErr("text/html"), ClassPermanent},
		{"payload too large", PayloadTooLargeErr(9_000_000, 4_000_000), ClassPermanent},
		{"unknown format", UnknownFormatErr(), ClassPermanent},
		{"unsupported format", UnsupportedFormatErr("image/bmp"), ClassPermanent},
		{"dimensions", DimensionsTooLargeErr(16000, 16000, 3000), ClassPermanent},
		{"decode", DecodeErr(errors.New("invalid chunk")), ClassPermanent},
		{"store", StoreErr(errors.New("503")), ClassInternal},
		{"internal", InternalErr(errors.New("boom")), ClassInternal},
		{"unclassified", errors.New("plain error"), ClassInternal},
		{"wrapped", fmt.Errorf("enqueue: %w", BadOrigin(404)), ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidSourceErr()))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(BadOrigin(404)))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(DimensionsTooLargeErr(5000, 5000, 3000)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(NetworkErr(errors.New("eof"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(StoreErr(errors.New("503"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(InternalErr(errors.New("boom"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestPublic_MasksCauses(t *testing.T) {
	err := DecodeErr(errors.New("libwebp: VP8 frame header corrupt at offset 1234"))
	assert.Equal(t, "could not decode image, is it corrupted?", Public(err))
	assert.Contains(t, err.Error(), "VP8", "logs should still see the cause")

	assert.Equal(t, "internal server error", Public(errors.New("sql: connection reset")))
	assert.Equal(t, "unknown error", Public(InternalErr(errors.New("sql: connection reset"))))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	assert.True(t, errors.Is(NetworkErr(cause), cause))
}
