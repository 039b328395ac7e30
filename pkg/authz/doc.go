// Package authz implements the authorization decision engine: identity
// derivation from an authenticated principal, concurrent role
// resolution, ACL merge with specificity ordering, and structural path
// matching with first-match-wins evaluation.
//
// A check runs in four stages. DeriveIdentities expands the principal
// into its identities within one organization. ResolveRoles looks up the
// role names bound to each identity. ResolveACL loads every role's
// entries and merges them into a single list ordered most-specific
// first. Evaluate walks that list and the first structurally matching
// entry decides the outcome: it either grants the requested action or
// denies it, with no fallback to less specific entries.
//
// Absence denies. No roles, no matching entry, or a matching entry
// without the action all produce the same deny. Directory failures also
// deny, with an error, rather than guessing.
package authz
