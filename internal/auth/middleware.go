package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/swiftreader/swiftreader/internal/api"
	"github.com/swiftreader/swiftreader/internal/users"
)

type contextKey string

const accountKey contextKey = "account"

// Middleware verifies the bearer token and resolves it to the full account
// row. Every failure mode (missing header, malformed header, invalid or
// expired token, account gone) yields the same 401 so callers learn nothing
// about which one it was. The record store is only consulted after the token
// signature checks out.
func Middleware(authSvc *Service, userSvc *users.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := authSvc.ValidateAccessToken(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			account, err := userSvc.GetByID(r.Context(), userID)
			if err != nil {
				slog.Error("resolving account", "error", err, "user_id", claims.UserID)
				api.HandleError(w, api.ErrInternalServer)
				return
			}
			if account == nil {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromContext returns the account resolved by Middleware, or nil.
func AccountFromContext(ctx context.Context) *users.Account {
	account, _ := ctx.Value(accountKey).(*users.Account)
	return account
}

// ContextWithAccount plants an account the way Middleware does.
func ContextWithAccount(ctx context.Context, account *users.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}
