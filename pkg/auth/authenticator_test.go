package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeyStore struct {
	keys map[string]*APIKey
	err  error
}

func (s *fakeKeyStore) FindAPIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.keys[keyHash], nil
}

func newKeyRequest(key string) *http.Request {
	r := httptest.NewRequest("POST", "/v1/authorize", nil)
	if key != "" {
		r.Header.Set(APIKeyHeader, key)
	}
	return r
}

func TestAPIKeyAuthenticator(t *testing.T) {
	key, keyHash, _, err := NewKeyGenerator().GenerateKey()
	require.NoError(t, err)

	store := &fakeKeyStore{keys: map[string]*APIKey{
		keyHash: {ID: "k1", OrgID: "45678@AdobeOrg", UserID: "svc-user"},
	}}
	a := NewAPIKeyAuthenticator(store)

	principal, err := a.Authenticate(context.Background(), newKeyRequest(key))
	require.NoError(t, err)
	assert.Equal(t, "svc-user", principal.UserID)
	assert.Equal(t, "45678", principal.OrgID, "org id is normalized at the boundary")
	assert.Equal(t, "k1", principal.APIKeyID)
}

func TestAPIKeyAuthenticatorNoHeader(t *testing.T) {
	a := NewAPIKeyAuthenticator(&fakeKeyStore{})

	_, err := a.Authenticate(context.Background(), newKeyRequest(""))
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAPIKeyAuthenticatorRejections(t *testing.T) {
	key, keyHash, _, err := NewKeyGenerator().GenerateKey()
	require.NoError(t, err)

	t.Run("malformed key", func(t *testing.T) {
		a := NewAPIKeyAuthenticator(&fakeKeyStore{})
		_, err := a.Authenticate(context.Background(), newKeyRequest("sk_wrongprefix"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("unknown key", func(t *testing.T) {
		a := NewAPIKeyAuthenticator(&fakeKeyStore{})
		_, err := a.Authenticate(context.Background(), newKeyRequest(key))
		require.Error(t, err)
	})

	t.Run("revoked key", func(t *testing.T) {
		revoked := &APIKey{ID: "k1", OrgID: "45678", UserID: "svc"}
		now := revoked.CreatedAt
		revoked.RevokedAt = &now
		a := NewAPIKeyAuthenticator(&fakeKeyStore{keys: map[string]*APIKey{keyHash: revoked}})
		_, err := a.Authenticate(context.Background(), newKeyRequest(key))
		require.Error(t, err)
	})

	t.Run("store failure", func(t *testing.T) {
		a := NewAPIKeyAuthenticator(&fakeKeyStore{err: errors.New("connection refused")})
		_, err := a.Authenticate(context.Background(), newKeyRequest(key))
		require.Error(t, err)
	})
}

type stubAuthenticator struct {
	name      string
	principal *Principal
	err       error
}

func (s *stubAuthenticator) Name() string { return s.name }
func (s *stubAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	return s.principal, s.err
}

func TestChainFirstMatchWins(t *testing.T) {
	chain := NewChain(
		&stubAuthenticator{name: "skip", err: ErrNoCredentials},
		&stubAuthenticator{name: "hit", principal: &Principal{UserID: "alice"}},
		&stubAuthenticator{name: "never", err: errors.New("should not be consulted")},
	)

	principal, err := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.UserID)
}

func TestChainRejectionDoesNotStopChain(t *testing.T) {
	chain := NewChain(
		&stubAuthenticator{name: "reject", err: errors.New("bad token")},
		&stubAuthenticator{name: "hit", principal: &Principal{UserID: "alice"}},
	)

	principal, err := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.UserID)
}

func TestChainAllFail(t *testing.T) {
	chain := NewChain(
		&stubAuthenticator{name: "skip", err: ErrNoCredentials},
		&stubAuthenticator{name: "reject", err: errors.New("bad token")},
	)

	_, err := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestChainNoCredentialsAnywhere(t *testing.T) {
	chain := NewChain(&stubAuthenticator{name: "skip", err: ErrNoCredentials})

	_, err := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
