package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoCredentials is returned by an Authenticator when the request
	// carries no credentials of the kind it understands. The chain moves
	// on to the next strategy.
	ErrNoCredentials = errors.New("no credentials presented")

	// ErrUnauthenticated is returned by the chain when every strategy
	// either found no credentials or rejected the ones it found.
	ErrUnauthenticated = errors.New("authentication failed")
)

// Authenticator verifies one kind of credential and produces a Principal.
// Implementations never make authorization decisions; that is the
// engine's job.
type Authenticator interface {
	// Name identifies the strategy in logs.
	Name() string

	// Authenticate inspects the request. It returns ErrNoCredentials if
	// the request carries nothing this strategy understands, any other
	// error if credentials were presented but failed verification.
	Authenticate(ctx context.Context, r *http.Request) (*Principal, error)
}

// Chain tries a sequence of authenticators in order and returns the
// first Principal produced. A strategy rejecting presented credentials
// does not stop the chain; a later strategy may still succeed.
type Chain struct {
	authenticators []Authenticator
}

// NewChain creates an authentication chain
func NewChain(authenticators ...Authenticator) *Chain {
	return &Chain{authenticators: authenticators}
}

// Authenticate runs the chain. On failure it returns an error wrapping
// ErrUnauthenticated; callers translate this into a 401 without
// distinguishing which strategy rejected.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	var lastErr error
	for _, a := range c.authenticators {
		principal, err := a.Authenticate(ctx, r)
		if err == nil {
			return principal, nil
		}
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		lastErr = fmt.Errorf("%s: %w", a.Name(), err)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, lastErr)
	}
	return nil, ErrUnauthenticated
}

// KeyStore is the narrow read interface the API key authenticator needs.
type KeyStore interface {
	// FindAPIKeyByHash looks up a key record by the SHA-256 hash of the
	// presented key. An unknown hash returns (nil, nil); errors are
	// reserved for store failures.
	FindAPIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error)
}

// APIKeyHeader is the request header carrying an API key.
const APIKeyHeader = "X-Api-Key"

// APIKeyAuthenticator authenticates requests carrying an API key header.
type APIKeyAuthenticator struct {
	keys KeyStore
}

// NewAPIKeyAuthenticator creates an API key authenticator backed by the
// given key store.
func NewAPIKeyAuthenticator(keys KeyStore) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys}
}

// Name identifies the strategy
func (a *APIKeyAuthenticator) Name() string { return "apikey" }

// Authenticate verifies the X-Api-Key header against the key store.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		return nil, ErrNoCredentials
	}
	if !strings.HasPrefix(key, KeyPrefix) {
		return nil, fmt.Errorf("malformed API key")
	}

	record, err := a.keys.FindAPIKeyByHash(ctx, HashKey(key))
	if err != nil {
		return nil, fmt.Errorf("key lookup failed: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("unknown API key")
	}
	if record.Revoked() {
		return nil, fmt.Errorf("API key revoked")
	}

	return &Principal{
		UserID:   record.UserID,
		OrgID:    NormalizeOrgID(record.OrgID),
		APIKeyID: record.ID,
	}, nil
}
