// Package faults is the error taxonomy shared by the request path and the
// migration workers. Every failure an ingestion attempt can produce is one of
// the kinds below, and Classify maps each kind to a single retry policy so the
// policy lives in one place.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// InvalidSource means the URL failed validation before any I/O.
	InvalidSource Kind = iota
	// BadOriginResponse is a non-200 status from the source CDN.
	BadOriginResponse
	// NetworkError is a transport-level failure talking to the origin.
	NetworkError
	// MissingHeader means the origin response lacked Content-Length or Content-Type.
	MissingHeader
	// UnsupportedContentType is a declared content type outside the allow-list.
	UnsupportedContentType
	// PayloadTooLarge is a declared size over the configured maximum,
	// rejected before the body is read.
	PayloadTooLarge
	// UnknownFormat means the payload's magic bytes match no known image container.
	UnknownFormat
	// UnsupportedFormat is a recognized image container we refuse to decode.
	UnsupportedFormat
	// DimensionsTooLarge is a header-declared size over the ceiling, rejected
	// before pixel decode.
	DimensionsTooLarge
	// DecodeError is a payload the decoder rejected.
	DecodeError
	// StoreError is a failed write to the object store.
	StoreError
	// Internal is everything else: our own infrastructure misbehaving.
	Internal
)

// Class is the retry policy for a failure.
type Class int

const (
	// ClassPermanent failures will fail the same way every time; a queue item
	// producing one is consumed without retry.
	ClassPermanent Class = iota
	// ClassTransient failures may succeed later; the queue item is rolled back.
	ClassTransient
	// ClassInternal failures are our own fault and are always rolled back.
	ClassInternal
)

// Error is a classified ingestion failure. msg is safe to show to callers;
// the wrapped cause is for logs only.
type Error struct {
	Kind Kind

	// OriginStatus is set for BadOriginResponse only.
	OriginStatus int

	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func InvalidSourceErr() *Error {
	return &Error{Kind: InvalidSource, msg: "invalid source image url"}
}

func BadOrigin(status int) *Error {
	return &Error{
		Kind:         BadOriginResponse,
		OriginStatus: status,
		msg:          fmt.Sprintf("origin responded with status code %d", status),
	}
}

func NetworkErr(cause error) *Error {
	return &Error{Kind: NetworkError, msg: "network error fetching source image", cause: cause}
}

func MissingHeaderErr(name string) *Error {
	return &Error{Kind: MissingHeader, msg: "origin response is missing header: " + name}
}

func UnsupportedContentTypeErr(contentType string) *Error {
	return &Error{Kind: UnsupportedContentType, msg: "unsupported content type: " + contentType}
}

func PayloadTooLargeErr(declared, max int64) *Error {
	return &Error{
		Kind: PayloadTooLarge,
		msg:  fmt.Sprintf("image file size too large (%d > %d)", declared, max),
	}
}

func UnknownFormatErr() *Error {
	return &Error{Kind: UnknownFormat, msg: "could not detect image format"}
}

func UnsupportedFormatErr(format string) *Error {
	return &Error{Kind: UnsupportedFormat, msg: "unsupported image format: " + format}
}

func DimensionsTooLargeErr(width, height, max int) *Error {
	return &Error{
		Kind: DimensionsTooLarge,
		msg:  fmt.Sprintf("image dimensions too large (%dx%d > %dx%d)", width, height, max, max),
	}
}

func DecodeErr(cause error) *Error {
	// the decoder diagnostic stays in the wrapped cause; callers only see this
	return &Error{Kind: DecodeError, msg: "could not decode image, is it corrupted?", cause: cause}
}

func StoreErr(cause error) *Error {
	return &Error{Kind: StoreError, msg: "error uploading image to storage", cause: cause}
}

func InternalErr(cause error) *Error {
	return &Error{Kind: Internal, msg: "unknown error", cause: cause}
}

func Internalf(format string, args ...any) *Error {
	return &Error{Kind: Internal, msg: "unknown error", cause: fmt.Errorf(format, args...)}
}

// Classify maps any error to its retry policy. Errors that did not come out of
// the taxonomy count as internal: we have no evidence the input was at fault.
func Classify(err error) Class {
	var fe *Error
	if !errors.As(err, &fe) {
		return ClassInternal
	}
	switch fe.Kind {
	case NetworkError:
		return ClassTransient
	case StoreError, Internal:
		return ClassInternal
	case BadOriginResponse:
		// 404/403 never resolve themselves; anything else the origin might fix
		if fe.OriginStatus == http.StatusNotFound || fe.OriginStatus == http.StatusForbidden {
			return ClassPermanent
		}
		return ClassTransient
	default:
		return ClassPermanent
	}
}

// HTTPStatus maps an error to the response status for the request path:
// caller-caused conditions are 4xx, infrastructure and network are 5xx.
func HTTPStatus(err error) int {
	var fe *Error
	if !errors.As(err, &fe) {
		return http.StatusInternalServerError
	}
	switch fe.Kind {
	case NetworkError, StoreError, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Public returns the caller-safe message for an error. Anything outside the
// taxonomy is masked entirely.
func Public(err error) string {
	var fe *Error
	if !errors.As(err, &fe) {
		return "internal server error"
	}
	return fe.msg
}
