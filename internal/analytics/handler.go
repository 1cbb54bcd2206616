package analytics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/swiftreader/swiftreader/internal/api"
	"github.com/swiftreader/swiftreader/internal/auth"
)

const maxPageSize = 100

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// History handles GET /usage/history: the caller's persisted usage events,
// newest first, optionally bounded by from/to (RFC 3339).
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	account := auth.AccountFromContext(r.Context())
	if account == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params, err := parseListParams(r)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	records, total, err := h.repo.ListByUser(r.Context(), account.ID, params)
	if err != nil {
		slog.Error("listing usage history", "error", err, "user_id", account.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, records, total, params.Page, params.PageSize)
}

func parseListParams(r *http.Request) (ListParams, error) {
	params := DefaultListParams()
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, api.NewBadRequestError("invalid page")
		}
		params.Page = page
	}
	if v := q.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 || size > maxPageSize {
			return params, api.NewBadRequestError("invalid page_size")
		}
		params.PageSize = size
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, api.NewBadRequestError("invalid from timestamp")
		}
		params.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, api.NewBadRequestError("invalid to timestamp")
		}
		params.To = &to
	}

	return params, nil
}
