package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatehouse/pkg/auth"
)

// KeyDirectory stores API key records. Lookups by hash happen on every
// API-key authenticated request, so they read from a replica.
type KeyDirectory struct {
	cm *ConnectionManager
}

// NewKeyDirectory creates an API key store backed by the given
// connections
func NewKeyDirectory(cm *ConnectionManager) *KeyDirectory {
	return &KeyDirectory{cm: cm}
}

var _ auth.KeyStore = (*KeyDirectory)(nil)

// FindAPIKeyByHash returns the key record matching the hash, or nil when
// no key matches. Revoked keys are still returned; the authenticator
// rejects them so the distinction shows up in logs.
func (d *KeyDirectory) FindAPIKeyByHash(ctx context.Context, keyHash string) (*auth.APIKey, error) {
	row := d.cm.Replica().QueryRowContext(ctx,
		`SELECT id, org_id, user_id, key_hash, key_prefix, name, created_at, revoked_at
		 FROM api_keys WHERE key_hash = $1`,
		keyHash)

	var (
		key       auth.APIKey
		revokedAt sql.NullTime
	)
	err := row.Scan(&key.ID, &key.OrgID, &key.UserID, &key.KeyHash, &key.KeyPrefix, &key.Name, &key.CreatedAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find API key: %w", err)
	}
	if revokedAt.Valid {
		key.RevokedAt = &revokedAt.Time
	}
	return &key, nil
}

// CreateAPIKey persists a new key record and returns it. The caller
// keeps the plaintext key; only the hash is stored.
func (d *KeyDirectory) CreateAPIKey(ctx context.Context, orgID, userID, name, keyHash, keyPrefix string) (*auth.APIKey, error) {
	key := &auth.APIKey{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		UserID:    userID,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := d.cm.Primary().ExecContext(ctx,
		`INSERT INTO api_keys (id, org_id, user_id, key_hash, key_prefix, name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.OrgID, key.UserID, key.KeyHash, key.KeyPrefix, key.Name, key.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create API key: %w", err)
	}
	return key, nil
}

// RevokeAPIKey marks a key revoked. Revocation is permanent; a revoked
// key is never reactivated.
func (d *KeyDirectory) RevokeAPIKey(ctx context.Context, keyID string) error {
	result, err := d.cm.Primary().ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		time.Now().UTC(), keyID)
	if err != nil {
		return fmt.Errorf("revoke API key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke API key: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAPIKeys returns all key records for an organization, newest first
func (d *KeyDirectory) ListAPIKeys(ctx context.Context, orgID string) ([]auth.APIKey, error) {
	rows, err := d.cm.Replica().QueryContext(ctx,
		`SELECT id, org_id, user_id, key_hash, key_prefix, name, created_at, revoked_at
		 FROM api_keys WHERE org_id = $1 ORDER BY created_at DESC`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("list API keys: %w", err)
	}
	defer rows.Close()

	var keys []auth.APIKey
	for rows.Next() {
		var (
			key       auth.APIKey
			revokedAt sql.NullTime
		)
		if err := rows.Scan(&key.ID, &key.OrgID, &key.UserID, &key.KeyHash, &key.KeyPrefix, &key.Name, &key.CreatedAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("scan API key: %w", err)
		}
		if revokedAt.Valid {
			key.RevokedAt = &revokedAt.Time
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate API keys: %w", err)
	}
	return keys, nil
}
