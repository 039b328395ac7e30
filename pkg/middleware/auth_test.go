package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

type stubAuthenticator struct {
	principal *auth.Principal
	err       error
}

func (s *stubAuthenticator) Name() string { return "stub" }
func (s *stubAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*auth.Principal, error) {
	return s.principal, s.err
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestAuthMiddlewarePrincipalInContext(t *testing.T) {
	chain := auth.NewChain(&stubAuthenticator{
		principal: &auth.Principal{UserID: "alice", OrgID: "45678"},
	})
	m := NewAuthMiddleware(chain, testLogger())

	var seen *auth.Principal
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPrincipal(r)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/authorize", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.UserID)
}

func TestAuthMiddlewareRejectsUnauthenticated(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no credentials", auth.ErrNoCredentials},
		{"bad credentials", errors.New("signature mismatch")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := auth.NewChain(&stubAuthenticator{err: tt.err})
			m := NewAuthMiddleware(chain, testLogger())

			called := false
			handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/authorize", nil))

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called, "handler must not run for unauthenticated requests")
		})
	}
}

func TestGetPrincipalWithoutMiddleware(t *testing.T) {
	assert.Nil(t, GetPrincipal(httptest.NewRequest("GET", "/", nil)))
}
