package middleware

import (
	"errors"
	"net/http"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/auth"
	"github.com/cmlabs-hris/geo-attendance/internal/handler/http/response"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/jwt"
	"github.com/go-chi/jwtauth/v5"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

// AuthRequired accepts only verified access tokens that name an employee
func AuthRequired(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())

			if err != nil {
				switch {
				case errors.Is(err, jwtauth.ErrNoTokenFound):
					response.HandleError(w, auth.ErrMissingAuthHeader)
				case errors.Is(err, jwxjwt.ErrTokenExpired()):
					response.HandleError(w, auth.ErrTokenExpired)
				default:
					response.Unauthorized(w, err.Error())
				}
				return
			}

			if token == nil {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}

			claims, err := jwt.ClaimsFromContext(r.Context())
			if err != nil || claims.Type != jwt.TokenTypeAccess {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
