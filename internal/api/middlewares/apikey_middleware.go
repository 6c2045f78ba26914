package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/citevault/citevault/internal/models"
	"github.com/citevault/citevault/internal/services"
)

// APIKeyCtxKey carries the resolved API key record for data-plane requests.
const APIKeyCtxKey ctxKey = "api_key"

// APIKeyMiddleware authenticates data-plane routes with a bearer API key.
// The raw secret is hashed and matched against active keys; revoked keys are
// rejected with 401 like unknown ones, no distinction leaked.
func APIKeyMiddleware(tenancy *services.TenancyService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing api key", http.StatusUnauthorized)
				return
			}

			raw := strings.TrimPrefix(auth, "Bearer ")
			key, err := tenancy.ResolveAPIKey(r.Context(), raw)
			if err != nil {
				http.Error(w, "invalid or revoked api key", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyCtxKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyFrom extracts the API key record set by APIKeyMiddleware.
func APIKeyFrom(ctx context.Context) (*models.APIKey, bool) {
	key, ok := ctx.Value(APIKeyCtxKey).(*models.APIKey)
	return key, ok
}
