package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xelth-com/claimsync/internal/utils"
)

type contextKey string

// ClaimsContextKey holds the token claims of an authenticated request
const ClaimsContextKey contextKey = "claims"

// Auth guards the local API. With an empty apiToken every request passes;
// otherwise the bearer token must equal apiToken or be a device token signed
// with secret. Browsers cannot set headers on websocket upgrades, so a
// "token" query parameter is accepted as well.
func Auth(apiToken, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.URL.Query().Get("token")
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				// Bearer token
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
					return
				}
				tokenString = parts[1]
			}
			if tokenString == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(tokenString), []byte(apiToken)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := utils.ValidateToken(tokenString, secret)
			if err != nil || claims["type"] != "device" {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom returns the token claims stored by Auth, if any
func ClaimsFrom(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(jwt.MapClaims)
	return claims, ok
}
