package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/authz"
)

// RoleDirectory is the PostgreSQL-backed role directory. Reads go to a
// round-robin replica, writes to the primary. Each read is a single
// query; the engine fans out per identity and per role itself.
type RoleDirectory struct {
	cm *ConnectionManager
}

// NewRoleDirectory creates a directory backed by the given connections
func NewRoleDirectory(cm *ConnectionManager) *RoleDirectory {
	return &RoleDirectory{cm: cm}
}

var _ authz.AdminDirectory = (*RoleDirectory)(nil)

// RoleNamesByIdentity returns the role names bound to identity within
// orgID. Identities are persisted in their canonical string form; the
// conversion happens here and nowhere else.
func (d *RoleDirectory) RoleNamesByIdentity(ctx context.Context, orgID string, identity authz.Identity) ([]string, error) {
	rows, err := d.cm.Replica().QueryContext(ctx,
		`SELECT role_name FROM role_bindings WHERE org_id = $1 AND identity = $2 ORDER BY role_name`,
		orgID, identity.String())
	if err != nil {
		return nil, fmt.Errorf("query role bindings: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role bindings: %w", err)
	}
	return names, nil
}

// ACLByRoleName returns the ACL entries attached to a role within orgID
func (d *RoleDirectory) ACLByRoleName(ctx context.Context, orgID, roleName string) ([]authz.Entry, error) {
	rows, err := d.cm.Replica().QueryContext(ctx,
		`SELECT path, actions FROM acl_entries WHERE org_id = $1 AND role_name = $2 ORDER BY id`,
		orgID, roleName)
	if err != nil {
		return nil, fmt.Errorf("query ACL entries: %w", err)
	}
	defer rows.Close()

	var entries []authz.Entry
	for rows.Next() {
		var (
			path    string
			actions []byte
		)
		if err := rows.Scan(&path, &actions); err != nil {
			return nil, fmt.Errorf("scan ACL entry: %w", err)
		}
		entry := authz.Entry{Path: path}
		if err := json.Unmarshal(actions, &entry.Actions); err != nil {
			return nil, fmt.Errorf("decode actions for path %s: %w", path, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ACL entries: %w", err)
	}
	return entries, nil
}

// GrantRole binds an identity to a role. Granting an existing binding is
// a no-op.
func (d *RoleDirectory) GrantRole(ctx context.Context, orgID string, identity authz.Identity, roleName string) error {
	_, err := d.cm.Primary().ExecContext(ctx,
		`INSERT INTO role_bindings (org_id, identity, role_name) VALUES ($1, $2, $3)
		 ON CONFLICT (org_id, identity, role_name) DO NOTHING`,
		orgID, identity.String(), roleName)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// RevokeRole removes an identity-to-role binding
func (d *RoleDirectory) RevokeRole(ctx context.Context, orgID string, identity authz.Identity, roleName string) error {
	result, err := d.cm.Primary().ExecContext(ctx,
		`DELETE FROM role_bindings WHERE org_id = $1 AND identity = $2 AND role_name = $3`,
		orgID, identity.String(), roleName)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PutACLEntry creates or replaces the ACL entry for (org, role, path)
func (d *RoleDirectory) PutACLEntry(ctx context.Context, orgID, roleName string, entry authz.Entry) error {
	actions, err := json.Marshal(entry.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	_, err = d.cm.Primary().ExecContext(ctx,
		`INSERT INTO acl_entries (org_id, role_name, path, actions) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (org_id, role_name, path) DO UPDATE SET actions = $4, updated_at = $5`,
		orgID, roleName, entry.Path, actions, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put ACL entry: %w", err)
	}
	return nil
}

// DeleteACLEntry removes the ACL entry for (org, role, path)
func (d *RoleDirectory) DeleteACLEntry(ctx context.Context, orgID, roleName, path string) error {
	result, err := d.cm.Primary().ExecContext(ctx,
		`DELETE FROM acl_entries WHERE org_id = $1 AND role_name = $2 AND path = $3`,
		orgID, roleName, path)
	if err != nil {
		return fmt.Errorf("delete ACL entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete ACL entry: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListRoleNames returns the distinct role names that have bindings or
// ACL entries within orgID
func (d *RoleDirectory) ListRoleNames(ctx context.Context, orgID string) ([]string, error) {
	rows, err := d.cm.Replica().QueryContext(ctx,
		`SELECT role_name FROM role_bindings WHERE org_id = $1
		 UNION
		 SELECT role_name FROM acl_entries WHERE org_id = $1
		 ORDER BY role_name`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("list role names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role names: %w", err)
	}
	return names, nil
}
