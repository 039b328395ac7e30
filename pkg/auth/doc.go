// Package auth handles request authentication: API key verification,
// OIDC bearer-token verification, and the authenticator chain that
// produces a Principal for the authorization engine.
//
// A Principal carries everything the engine derives identities from:
// the user id, the home organization, per-organization group
// memberships, and the API key id when the request authenticated with a
// key. Organization ids are normalized once, at the boundary, so the
// rest of the service never sees suffixed forms.
package auth
