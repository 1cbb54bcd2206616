package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftreader/swiftreader/internal/users"
)

func postRegister(t *testing.T, h *Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h.Register(rec, req)
	return rec
}

func TestRegister_InviteCodeGate(t *testing.T) {
	// The gate fires before any store access, so an empty repo suffices.
	h := NewHandler(nil, users.NewService(&countingRepo{}), "beta-2026")

	t.Run("missing code", func(t *testing.T) {
		rec := postRegister(t, h, map[string]string{
			"email":    "reader@example.com",
			"password": "password123",
		})
		require.Equal(t, http.StatusForbidden, rec.Code)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, "INVITE_REQUIRED", payload["code"])
	})

	t.Run("wrong code", func(t *testing.T) {
		rec := postRegister(t, h, map[string]string{
			"email":       "reader@example.com",
			"password":    "password123",
			"invite_code": "nope",
		})
		require.Equal(t, http.StatusForbidden, rec.Code)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, "INVITE_INVALID", payload["code"])
	})
}

type resetRepo struct {
	users.Repository

	account     *users.Account
	updatedHash string
}

func (r *resetRepo) GetByEmail(_ context.Context, email string) (*users.Account, error) {
	if r.account != nil && r.account.Email == email {
		return r.account, nil
	}
	return nil, nil
}

func (r *resetRepo) UpdatePassword(_ context.Context, _ uuid.UUID, hash string) error {
	r.updatedHash = hash
	return nil
}

func postJSON(t *testing.T, fn http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func TestForgotPassword_UniformResponse(t *testing.T) {
	svc, _ := redisBackedService(t)
	repo := &resetRepo{account: &users.Account{ID: uuid.New(), Email: "reader@example.com"}}
	h := NewHandler(svc, users.NewService(repo), "")

	known := postJSON(t, h.Forgot, "/api/v1/auth/forgot", map[string]string{"email": "reader@example.com"})
	unknown := postJSON(t, h.Forgot, "/api/v1/auth/forgot", map[string]string{"email": "nobody@example.com"})

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String(), "the response must not reveal whether the email exists")
}

func TestResetPassword_UpdatesHashAndBurnsToken(t *testing.T) {
	svc, _ := redisBackedService(t)
	account := &users.Account{ID: uuid.New(), Email: "reader@example.com"}
	repo := &resetRepo{account: account}
	h := NewHandler(svc, users.NewService(repo), "")

	token, err := svc.CreatePasswordResetToken(context.Background(), account.ID.String())
	require.NoError(t, err)

	rec := postJSON(t, h.Reset, "/api/v1/auth/reset", map[string]string{"token": token, "password": "brand-new-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, repo.updatedHash)
	assert.NoError(t, ComparePassword(repo.updatedHash, "brand-new-pass"))

	again := postJSON(t, h.Reset, "/api/v1/auth/reset", map[string]string{"token": token, "password": "another-pass1"})
	assert.Equal(t, http.StatusBadRequest, again.Code, "a reset link is single-use")
}

func TestResetPassword_RejectsBadInput(t *testing.T) {
	svc, _ := redisBackedService(t)
	h := NewHandler(svc, users.NewService(&resetRepo{}), "")

	t.Run("unknown token", func(t *testing.T) {
		rec := postJSON(t, h.Reset, "/api/v1/auth/reset", map[string]string{"token": "never-issued", "password": "long-enough-pass"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("short password", func(t *testing.T) {
		rec := postJSON(t, h.Reset, "/api/v1/auth/reset", map[string]string{"token": "whatever", "password": "short"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRegister_ValidatesInput(t *testing.T) {
	h := NewHandler(nil, users.NewService(&countingRepo{}), "")

	for name, body := range map[string]map[string]string{
		"bad email":      {"email": "not-an-email", "password": "password123"},
		"short password": {"email": "reader@example.com", "password": "short"},
		"empty":          {},
	} {
		t.Run(name, func(t *testing.T) {
			rec := postRegister(t, h, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
