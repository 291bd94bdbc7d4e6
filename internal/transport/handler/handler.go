package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/PluralKit/avatars/internal/entities"
	"github.com/PluralKit/avatars/internal/faults"
	use_case "github.com/PluralKit/avatars/internal/use-case"
)

const maxRequestBody = 1 << 20

type UseCase interface {
	Pull(ctx context.Context, p use_case.PullParams) (*use_case.PullOutcome, error)
	Stats(ctx context.Context) (*entities.Stats, error)
	Health(ctx context.Context) error
}

type Handler struct {
	useCase   UseCase
	validator *validator.Validate
}

func New(useCase UseCase) *Handler {
	return &Handler{
		useCase:   useCase,
		validator: validator.New(),
	}
}

func (h *Handler) Pull(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return
	}

	outcome, err := h.useCase.Pull(r.Context(), use_case.PullParams{
		URL:        req.URL,
		Kind:       req.Kind,
		UploadedBy: req.UploadedBy,
		SystemID:   req.SystemID,
		Force:      req.Force,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PullResponse{URL: outcome.URL, New: outcome.New})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.useCase.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.useCase.Health(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps the taxonomy onto the response: callers get the safe
// message and a 4xx/5xx per classification, the full chain goes to the log
// (and to sentry for our own failures).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := faults.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("error handling request")
		sentry.CaptureException(err)
	} else {
		log.Warn().Err(err).Msg("rejected request")
	}
	writeJSONError(w, faults.Public(err), status)
}
