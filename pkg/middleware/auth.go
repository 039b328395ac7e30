package middleware

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// AuthMiddleware authenticates requests through an authenticator chain
// and stores the resulting principal in the request context.
type AuthMiddleware struct {
	chain  *auth.Chain
	logger *observability.Logger
}

// NewAuthMiddleware creates authentication middleware over the given
// chain
func NewAuthMiddleware(chain *auth.Chain, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{chain: chain, logger: logger}
}

// Handler wraps an HTTP handler with authentication. Requests with no
// recognizable credentials or failing verification get a 401.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.chain.Authenticate(r.Context(), r)
		if err != nil {
			if !errors.Is(err, auth.ErrNoCredentials) {
				m.logger.WithError(err).WithField("path", r.URL.Path).Debug("authentication failed")
			}
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal extracts the authenticated principal from the request,
// or nil when the request did not pass through AuthMiddleware
func GetPrincipal(r *http.Request) *auth.Principal {
	value := r.Context().Value(contextkeys.PrincipalKey)
	if value == nil {
		return nil
	}
	principal, ok := value.(*auth.Principal)
	if !ok {
		return nil
	}
	return principal
}
