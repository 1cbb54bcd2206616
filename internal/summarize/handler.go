package summarize

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/swiftreader/swiftreader/internal/api"
	"github.com/swiftreader/swiftreader/internal/auth"
	"github.com/swiftreader/swiftreader/internal/quota"
	"github.com/swiftreader/swiftreader/internal/sanitize"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// Create handles POST /summaries.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	account := auth.AccountFromContext(r.Context())
	if account == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result, err := h.svc.Summarize(r.Context(), account, req)
	if err != nil {
		api.HandleError(w, mapPipelineError(err))
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// Usage handles GET /usage.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	account := auth.AccountFromContext(r.Context())
	if account == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	api.JSON(w, http.StatusOK, h.svc.Usage(account))
}

// mapPipelineError translates pipeline failures into the boundary error
// shape. Anything unrecognized is a 500 and gets logged here, once.
func mapPipelineError(err error) error {
	if errors.Is(err, quota.ErrPaymentRequired) {
		return api.NewPaymentRequiredError()
	}

	var limitErr *quota.LimitReachedError
	if errors.As(err, &limitErr) {
		return api.NewLimitReachedError(limitErr.Used, limitErr.Limit, string(limitErr.Tier), limitErr.ResetsAt)
	}

	if errors.Is(err, sanitize.ErrContentTooShort) {
		return api.NewBadRequestError("content is too short to summarize")
	}

	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		if upstreamErr.Kind == KindBusy {
			return api.NewUpstreamBusyError()
		}
		slog.Error("summarization upstream failed", "error", err)
		return api.NewUpstreamError()
	}

	slog.Error("summary pipeline failed", "error", err)
	return api.ErrInternalServer
}
