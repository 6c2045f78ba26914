package middleware

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

// OperatorIDKey carries the authenticated operator id through the request context.
const OperatorIDKey ctxKey = "operator_id"

// JWTMiddleware validates the Authorization header for control-plane routes
// and attaches the operator id to the request context.
func JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, "missing or invalid token", http.StatusUnauthorized)
			return
		}

		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(os.Getenv("JWT_SECRET")), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		operatorID, ok := claims["operator_id"].(string)
		if !ok {
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), OperatorIDKey, operatorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperatorID extracts the operator id set by JWTMiddleware.
func OperatorID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(OperatorIDKey).(string)
	return id, ok
}
