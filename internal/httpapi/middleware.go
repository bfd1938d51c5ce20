package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"blustick/internal/auth"
	"blustick/internal/metrics"
)

// requireAuth verifies the bearer token before any usecase runs and stores
// the resulting claims in the request context. Verification is enforced
// uniformly on every detection endpoint, reads included.
func requireAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifier.VerifyAuthorizationHeader(r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, auth.ErrMissingCredential) {
					metrics.AuthRejections.WithLabelValues("missing_credential").Inc()
					_ = render.Render(w, r, errMissingCredential())
					return
				}
				metrics.AuthRejections.WithLabelValues("invalid_token").Inc()
				_ = render.Render(w, r, errInvalidToken())
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
