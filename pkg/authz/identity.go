package authz

import (
	"github.com/platinummonkey/gatehouse/pkg/auth"
)

// IdentityKind discriminates the four identity forms a principal can
// carry.
type IdentityKind string

const (
	IdentityUser   IdentityKind = "user"
	IdentityOrg    IdentityKind = "org"
	IdentityGroup  IdentityKind = "group"
	IdentityAPIKey IdentityKind = "apikey"
)

// Identity is a canonical lookup key for role bindings. It is a tagged
// value internally; the canonical string form only appears at the
// persistence boundary (see String), which keeps the prefix formatting
// in exactly one place.
type Identity struct {
	Kind IdentityKind

	// OrgID is set for group identities only: groups are scoped to the
	// organization that owns them.
	OrgID string

	Value string
}

// Canonical persistence prefixes. These are the stored key formats; they
// never change without a data migration.
const (
	userIdentityPrefix   = "imsID:"
	orgIdentityPrefix    = "imsOrgID:"
	groupIdentityPrefix  = "imsOrgID/groupID:"
	apiKeyIdentityPrefix = "apiKeyID:"
)

// String returns the canonical persisted form of the identity.
func (id Identity) String() string {
	switch id.Kind {
	case IdentityUser:
		return userIdentityPrefix + id.Value
	case IdentityOrg:
		return orgIdentityPrefix + id.Value
	case IdentityGroup:
		return groupIdentityPrefix + id.OrgID + "/" + id.Value
	case IdentityAPIKey:
		return apiKeyIdentityPrefix + id.Value
	}
	return ""
}

// UserIdentity returns the identity for a user id.
func UserIdentity(userID string) Identity {
	return Identity{Kind: IdentityUser, Value: userID}
}

// OrgIdentity returns the organization-level identity. Every member of
// the organization carries it.
func OrgIdentity(orgID string) Identity {
	return Identity{Kind: IdentityOrg, Value: orgID}
}

// GroupIdentity returns the identity for a group membership within an
// organization.
func GroupIdentity(orgID, groupID string) Identity {
	return Identity{Kind: IdentityGroup, OrgID: orgID, Value: groupID}
}

// APIKeyIdentity returns the identity for an API key id.
func APIKeyIdentity(apiKeyID string) Identity {
	return Identity{Kind: IdentityAPIKey, Value: apiKeyID}
}

// DeriveIdentities turns a principal into the ordered, deduplicated list
// of identities used to look up role bindings within orgID. The user and
// organization identities are always present, even for a degenerate
// principal with empty ids: such identities resolve to zero roles and the
// check fails closed. Group identities are restricted to groups owned by
// orgID; memberships in other organizations never leak into this
// organization's role resolution.
func DeriveIdentities(principal *auth.Principal, orgID string) []Identity {
	orgID = auth.NormalizeOrgID(orgID)

	seen := make(map[string]struct{})
	identities := make([]Identity, 0, 4)
	add := func(id Identity) {
		key := id.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		identities = append(identities, id)
	}

	add(UserIdentity(principal.UserID))
	add(OrgIdentity(orgID))

	for _, groupID := range principal.GroupsIn(orgID) {
		add(GroupIdentity(orgID, groupID))
	}

	if principal.APIKeyID != "" {
		add(APIKeyIdentity(principal.APIKeyID))
	}

	return identities
}
