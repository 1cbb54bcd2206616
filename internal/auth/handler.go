package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/swiftreader/swiftreader/internal/api"
	"github.com/swiftreader/swiftreader/internal/users"
)

type Handler struct {
	authSvc  *Service
	userSvc  *users.Service
	validate *validator.Validate

	// inviteCode, when non-empty, gates registration.
	inviteCode string
}

func NewHandler(authSvc *Service, userSvc *users.Service, inviteCode string) *Handler {
	return &Handler{
		authSvc:    authSvc,
		userSvc:    userSvc,
		validate:   validator.New(),
		inviteCode: inviteCode,
	}
}

type RegisterRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	InviteCode string `json:"invite_code"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// AuthResponse pairs the issued tokens with the account they belong to.
type AuthResponse struct {
	*TokenPair
	Account *users.Account `json:"account"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	if h.inviteCode != "" {
		if req.InviteCode == "" {
			api.HandleError(w, api.NewForbiddenError("an invite code is required to create an account", api.CodeInviteRequired))
			return
		}
		if req.InviteCode != h.inviteCode {
			api.HandleError(w, api.NewForbiddenError("invalid invite code", api.CodeInviteInvalid))
			return
		}
	}

	exists, err := h.userSvc.ExistsByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("checking email existence", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if exists {
		api.HandleError(w, api.ErrEmailAlreadyExists)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	account, err := h.userSvc.Create(r.Context(), req.Email, hash)
	if err != nil {
		slog.Error("creating account", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	tokens, err := h.authSvc.GenerateTokens(account.ID.String(), account.Email)
	if err != nil {
		slog.Error("generating tokens", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, AuthResponse{TokenPair: tokens, Account: account})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	account, err := h.userSvc.GetByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("getting account by email", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if account == nil {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	if err := ComparePassword(account.PasswordHash, req.Password); err != nil {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	tokens, err := h.authSvc.GenerateTokens(account.ID.String(), account.Email)
	if err != nil {
		slog.Error("generating tokens", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, AuthResponse{TokenPair: tokens, Account: account})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	tokens, err := h.authSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		slog.Error("refreshing tokens", "error", err)
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

// forgotResponse is returned for every forgot-password request, known email
// or not, so the endpoint cannot be used to enumerate accounts.
const forgotResponse = "If that email exists, a reset link has been sent."

func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	account, err := h.userSvc.GetByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("looking up account for reset", "error", err)
		api.JSONMessage(w, http.StatusOK, forgotResponse)
		return
	}
	if account == nil {
		api.JSONMessage(w, http.StatusOK, forgotResponse)
		return
	}

	token, err := h.authSvc.CreatePasswordResetToken(r.Context(), account.ID.String())
	if err != nil {
		slog.Error("creating reset token", "error", err)
		api.JSONMessage(w, http.StatusOK, forgotResponse)
		return
	}

	// No mail delivery is wired up yet: log the token so an operator can
	// hand the reset link out manually.
	slog.Info("password reset token issued", "user_id", account.ID, "token", token)

	api.JSONMessage(w, http.StatusOK, forgotResponse)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userID, err := h.authSvc.ConsumePasswordResetToken(r.Context(), req.Token)
	if errors.Is(err, ErrResetTokenInvalid) {
		api.HandleError(w, api.NewBadRequestError("this reset link has expired or already been used, please request a new one"))
		return
	}
	if err != nil {
		slog.Error("redeeming reset token", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		slog.Error("parsing reset token subject", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	if err := h.userSvc.UpdatePassword(r.Context(), id, hash); err != nil {
		slog.Error("updating password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	// A successful reset revokes every outstanding session.
	if err := h.authSvc.Logout(userID); err != nil {
		slog.Error("revoking sessions after reset", "error", err)
	}

	api.JSONMessage(w, http.StatusOK, "password updated, you can now log in")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	if account == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.authSvc.Logout(account.ID.String()); err != nil {
		slog.Error("logging out", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "logged out successfully")
}

// Me returns the caller's account, including the usage counter and period
// anchor so clients can show remaining quota.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	if account == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	api.JSON(w, http.StatusOK, account)
}
