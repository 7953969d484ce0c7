// Package middleware provides HTTP middleware for DataCove.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/datacove/datacove/internal/api/jsonapi"
	"github.com/datacove/datacove/internal/auth"
	"github.com/datacove/datacove/internal/model"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// RequireAuth validates the Bearer JWT in the Authorization header.
// On success it injects *auth.Claims into the request context.
// On failure it writes a 401 JSON:API error response.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				jsonapi.RenderError(w, http.StatusUnauthorized,
					"missing_token", "Unauthorized", "Authorization header is required")
				return
			}

			claims, err := auth.ParseAccessToken(token, secret)
			if err != nil {
				jsonapi.RenderError(w, http.StatusUnauthorized,
					"invalid_token", "Unauthorized", "access token is invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts Claims from the request context.
// Returns nil if not present.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	v := ctx.Value(claimsKey)
	if v == nil {
		return nil
	}
	c, _ := v.(*auth.Claims)
	return c
}

// RequireOwner restricts a route to owner accounts (individual or
// organization). Clients get 403. Must be chained after RequireAuth.
func RequireOwner() func(http.Handler) http.Handler {
	return RequireKind(model.KindIndividual, model.KindOrganization)
}

// RequireKind restricts a route to the given account kinds. Must be chained
// after RequireAuth.
func RequireKind(kinds ...model.AccountKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				jsonapi.RenderError(w, http.StatusUnauthorized,
					"missing_token", "Unauthorized", "authentication required")
				return
			}
			for _, k := range kinds {
				if claims.Kind == k {
					next.ServeHTTP(w, r)
					return
				}
			}
			jsonapi.RenderError(w, http.StatusForbidden,
				"forbidden", "Forbidden",
				"this action is not available to "+string(claims.Kind)+" accounts")
		})
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
