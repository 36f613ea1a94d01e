package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionauth"
)

// Guard rejects requests whose bearer token is not admitted by
// engine.Authenticate. Admitted requests carry the [sessionauth.Principal]
// in their context, see [sessionauth.PrincipalFromContext].
func Guard(engine *sessionauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, sessionauth.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, fmt.Errorf("%w: %w", sessionauth.ErrTokenInvalid, errMissingBearer))
				return
			}

			p, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(sessionauth.WithPrincipal(r.Context(), p)))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
// The scheme is matched case-insensitively.
func BearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
