package authz

import "context"

// Directory is the narrow read interface the engine needs from the
// persistence layer. Implementations may batch or cache behind it
// without changing the engine's contract; the engine itself never caches
// a resolved ACL across checks.
type Directory interface {
	// RoleNamesByIdentity returns the role names bound to one identity
	// within an organization. Zero bindings is a normal result, not an
	// error; a lookup failure must surface as an error so the engine can
	// fail closed.
	RoleNamesByIdentity(ctx context.Context, orgID string, identity Identity) ([]string, error)

	// ACLByRoleName returns the ACL entries attached to a role within an
	// organization. A role with no entries contributes nothing.
	ACLByRoleName(ctx context.Context, orgID, roleName string) ([]Entry, error)
}

// AdminDirectory extends Directory with the administrative writes used
// by the admin API and CLI. The engine never depends on it.
type AdminDirectory interface {
	Directory

	// GrantRole binds an identity to a role name within an organization.
	GrantRole(ctx context.Context, orgID string, identity Identity, roleName string) error

	// RevokeRole removes an identity-to-role binding.
	RevokeRole(ctx context.Context, orgID string, identity Identity, roleName string) error

	// PutACLEntry creates or replaces the entry for (org, role, path).
	PutACLEntry(ctx context.Context, orgID, roleName string, entry Entry) error

	// DeleteACLEntry removes the entry for (org, role, path).
	DeleteACLEntry(ctx context.Context, orgID, roleName, path string) error

	// ListRoleNames returns the distinct role names that have bindings
	// or ACL entries within an organization.
	ListRoleNames(ctx context.Context, orgID string) ([]string, error)
}
