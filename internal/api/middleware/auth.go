package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/gamewallet/internal/api/apierr"
	"github.com/mcoot/gamewallet/internal/model"
)

type contextKey string

const accountContextKey contextKey = "account"

// TokenResolver turns a bearer token into the account it was issued for
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*model.Account, error)
}

// Auth creates authentication middleware.
// Requests without a valid bearer token are rejected with 401.
func Auth(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			acct, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acct)))
		})
	}
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// WithAccount stores the authenticated account on the context
func WithAccount(ctx context.Context, acct *model.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, acct)
}

// GetAccount returns the authenticated account from the request context
func GetAccount(ctx context.Context) *model.Account {
	acct, _ := ctx.Value(accountContextKey).(*model.Account)
	return acct
}

// MustGetAccount returns the authenticated account or panics
func MustGetAccount(ctx context.Context) *model.Account {
	acct := GetAccount(ctx)
	if acct == nil {
		panic("no account in context - auth middleware not applied?")
	}
	return acct
}
