package auth

import (
	"sort"
	"strings"
)

// Principal is the authenticated caller context produced by the
// authentication layer. It is immutable for the lifetime of a request;
// the authorization engine only reads it.
type Principal struct {
	// UserID is the opaque user identifier from the identity provider.
	UserID string `json:"user_id"`

	// OrgID is the tenant identifier, already normalized (directory
	// suffix stripped).
	OrgID string `json:"org_id"`

	// Groups maps an organization id (possibly still carrying a
	// directory suffix, exactly as the identity provider reported it)
	// to the group ids the user belongs to in that organization.
	Groups map[string][]string `json:"groups,omitempty"`

	// APIKeyID is set only for principals authenticated with an API key.
	APIKeyID string `json:"api_key_id,omitempty"`
}

// NormalizeOrgID strips the directory suffix from an organization id:
// "45678@AdobeOrg" becomes "45678". Ids without a suffix pass through
// unchanged.
func NormalizeOrgID(orgID string) string {
	if i := strings.IndexByte(orgID, '@'); i >= 0 {
		return orgID[:i]
	}
	return orgID
}

// GroupsIn returns the principal's group ids for the given (normalized)
// organization id, in deterministic order. Group memberships reported
// under other organizations are excluded.
func (p *Principal) GroupsIn(orgID string) []string {
	if len(p.Groups) == 0 {
		return nil
	}

	orgID = NormalizeOrgID(orgID)

	// Group keys may or may not carry a directory suffix; several keys
	// can normalize to the same organization, so iterate sorted keys
	// for a stable result.
	keys := make([]string, 0, len(p.Groups))
	for k := range p.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var groups []string
	for _, k := range keys {
		if NormalizeOrgID(k) != orgID {
			continue
		}
		groups = append(groups, p.Groups[k]...)
	}
	return groups
}

// IsAPIKey reports whether the principal was authenticated with an API key.
func (p *Principal) IsAPIKey() bool {
	return p.APIKeyID != ""
}
