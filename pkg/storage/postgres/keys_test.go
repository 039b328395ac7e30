package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/platinummonkey/gatehouse/pkg/auth"
)

func setupKeyDirectory(t *testing.T) *KeyDirectory {
	t.Helper()
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })
	return NewKeyDirectory(NewConnectionManagerFromDB(db))
}

func TestKeyDirectoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	dir := setupKeyDirectory(t)

	plaintext, keyHash, keyPrefix, err := auth.NewKeyGenerator().GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	created, err := dir.CreateAPIKey(ctx, "45678", "svc-user", "ci key", keyHash, keyPrefix)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created key has empty ID")
	}
	if created.KeyHash != auth.HashKey(plaintext) {
		t.Error("stored hash does not match the generated key")
	}

	found, err := dir.FindAPIKeyByHash(ctx, keyHash)
	if err != nil {
		t.Fatalf("FindAPIKeyByHash: %v", err)
	}
	if found == nil {
		t.Fatal("FindAPIKeyByHash returned nil for a stored key")
	}
	if found.ID != created.ID || found.OrgID != "45678" || found.UserID != "svc-user" || found.Name != "ci key" {
		t.Errorf("found = %+v, want the created record", found)
	}
	if found.Revoked() {
		t.Error("fresh key reports revoked")
	}
}

func TestKeyDirectoryFindUnknownHash(t *testing.T) {
	ctx := context.Background()
	dir := setupKeyDirectory(t)

	found, err := dir.FindAPIKeyByHash(ctx, auth.HashKey("gh_never_issued"))
	if err != nil {
		t.Fatalf("FindAPIKeyByHash: %v", err)
	}
	if found != nil {
		t.Errorf("found = %+v, want nil for unknown hash", found)
	}
}

func TestKeyDirectoryRevoke(t *testing.T) {
	ctx := context.Background()
	dir := setupKeyDirectory(t)

	_, keyHash, keyPrefix, err := auth.NewKeyGenerator().GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	created, err := dir.CreateAPIKey(ctx, "45678", "svc-user", "ci key", keyHash, keyPrefix)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	if err := dir.RevokeAPIKey(ctx, created.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}

	// Revoked keys still resolve by hash; the authenticator rejects them.
	found, err := dir.FindAPIKeyByHash(ctx, keyHash)
	if err != nil {
		t.Fatalf("FindAPIKeyByHash: %v", err)
	}
	if found == nil || !found.Revoked() {
		t.Fatalf("found = %+v, want a revoked record", found)
	}

	// Revoking again, or revoking an unknown ID, reports no rows.
	if err := dir.RevokeAPIKey(ctx, created.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second revoke err = %v, want sql.ErrNoRows", err)
	}
	if err := dir.RevokeAPIKey(ctx, "no-such-id"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unknown id revoke err = %v, want sql.ErrNoRows", err)
	}
}

func TestKeyDirectoryList(t *testing.T) {
	ctx := context.Background()
	dir := setupKeyDirectory(t)

	for _, name := range []string{"ci key", "deploy key"} {
		_, keyHash, keyPrefix, err := auth.NewKeyGenerator().GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		if _, err := dir.CreateAPIKey(ctx, "45678", "svc-user", name, keyHash, keyPrefix); err != nil {
			t.Fatalf("CreateAPIKey: %v", err)
		}
	}
	_, otherHash, otherPrefix, err := auth.NewKeyGenerator().GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if _, err := dir.CreateAPIKey(ctx, "99999", "other-user", "other org", otherHash, otherPrefix); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	keys, err := dir.ListAPIKeys(ctx, "45678")
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}
	for _, key := range keys {
		if key.OrgID != "45678" {
			t.Errorf("listed key from org %s, want 45678 only", key.OrgID)
		}
	}
}
