// Package authn guards routes behind a valid bearer session token and
// exposes the authenticated username through the request context.
package authn

import (
	"context"
	"net/http"
	"strings"

	resp "account_service/internal/lib/api/response"
	"account_service/internal/lib/jwt"

	"github.com/go-chi/render"
)

type ctxKey struct{}

// New returns middleware that rejects requests without a valid
// "Authorization: Bearer <token>" header.
func New(sessionSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("missing bearer token"))

				return
			}

			username, err := jwt.ParseToken(token, sessionSecret)
			if err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid or expired session"))

				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Username returns the authenticated username stored by New, or ""
// for unauthenticated requests.
func Username(ctx context.Context) string {
	username, _ := ctx.Value(ctxKey{}).(string)
	return username
}
