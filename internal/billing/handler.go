package billing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/swiftreader/swiftreader/internal/api"
	"github.com/swiftreader/swiftreader/internal/auth"
	"github.com/swiftreader/swiftreader/internal/users"
)

// Stripe recommends capping webhook payload reads.
const maxWebhookBody = 65536

type Handler struct {
	svc           *Service
	webhookSecret string
	validate      *validator.Validate
}

func NewHandler(svc *Service, webhookSecret string) *Handler {
	return &Handler{svc: svc, webhookSecret: webhookSecret, validate: validator.New()}
}

type CheckoutRequest struct {
	Tier       string `json:"tier" validate:"required,oneof=pro student"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

// Checkout handles POST /billing/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	account := auth.AccountFromContext(r.Context())
	if account == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if !h.svc.Enabled() {
		api.HandleError(w, api.NewBadRequestError("billing is not enabled"))
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	url, err := h.svc.CreateCheckout(r.Context(), account, users.Tier(req.Tier), req.SuccessURL, req.CancelURL)
	if err != nil {
		if err == ErrStudentEmailRequired {
			api.HandleError(w, api.NewBadRequestError(err.Error()))
			return
		}
		slog.Error("creating checkout session", "error", err, "user_id", account.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, CheckoutResponse{URL: url})
}

// Webhook handles POST /webhooks/stripe. Signature verification is the only
// authentication on this route.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		slog.Warn("rejecting stripe webhook", "error", err)
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.svc.HandleEvent(r.Context(), event); err != nil {
		// Non-2xx makes Stripe retry the delivery.
		slog.Error("applying stripe event", "error", err, "type", event.Type)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "ok")
}
