package middleware

import (
	"net/http"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/auth"
	"github.com/cmlabs-hris/geo-attendance/internal/handler/http/response"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/jwt"
)

// RequireAdmin requires the admin role. Must run after AuthRequired.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := jwt.ClaimsFromContext(r.Context())
		if err != nil {
			response.HandleError(w, auth.ErrInvalidToken)
			return
		}

		if !claims.IsAdmin() {
			response.HandleError(w, auth.ErrAdminRequired)
			return
		}

		next.ServeHTTP(w, r)
	})
}
