package authz

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// AdminHandlers provides the administrative HTTP surface for managing
// role bindings and ACL entries.
type AdminHandlers struct {
	directory AdminDirectory
	logger    *observability.Logger
}

// NewAdminHandlers creates admin handlers
func NewAdminHandlers(directory AdminDirectory, logger *observability.Logger) *AdminHandlers {
	return &AdminHandlers{directory: directory, logger: logger}
}

// RegisterRoutes registers the admin routes. Templates are relative to
// the given router, which the server mounts under /v1/admin behind
// RequireAdminAccess.
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{orgID}/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/orgs/{orgID}/bindings", h.GrantRole).Methods("POST")
	router.HandleFunc("/orgs/{orgID}/bindings", h.RevokeRole).Methods("DELETE")
	router.HandleFunc("/orgs/{orgID}/roles/{role}/acl", h.GetACL).Methods("GET")
	router.HandleFunc("/orgs/{orgID}/roles/{role}/acl", h.PutACLEntry).Methods("PUT")
	router.HandleFunc("/orgs/{orgID}/roles/{role}/acl", h.DeleteACLEntry).Methods("DELETE")
}

// BindingRequest names one identity-to-role binding. Group identities
// also carry the owning organization, which must be the request's
// organization.
type BindingRequest struct {
	IdentityKind  string `json:"identity_kind"`
	IdentityValue string `json:"identity_value"`
	RoleName      string `json:"role_name"`
}

func (req *BindingRequest) identity(orgID string) (Identity, error) {
	if req.IdentityValue == "" {
		return Identity{}, fmt.Errorf("identity_value is required")
	}
	switch IdentityKind(req.IdentityKind) {
	case IdentityUser:
		return UserIdentity(req.IdentityValue), nil
	case IdentityOrg:
		if normalized := auth.NormalizeOrgID(req.IdentityValue); normalized != orgID {
			return Identity{}, fmt.Errorf("organization identity %q does not match org %q", req.IdentityValue, orgID)
		}
		return OrgIdentity(orgID), nil
	case IdentityGroup:
		return GroupIdentity(orgID, req.IdentityValue), nil
	case IdentityAPIKey:
		return APIKeyIdentity(req.IdentityValue), nil
	}
	return Identity{}, fmt.Errorf("unknown identity_kind: %q", req.IdentityKind)
}

// ListRoles returns the distinct role names known within an organization
func (h *AdminHandlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	orgID := auth.NormalizeOrgID(mux.Vars(r)["orgID"])

	roles, err := h.directory.ListRoleNames(r.Context(), orgID)
	if err != nil {
		h.logger.WithError(err).WithField("org_id", orgID).Error("list roles failed")
		httputil.WriteInternalError(w, fmt.Errorf("list roles failed"))
		return
	}
	if roles == nil {
		roles = []string{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"org_id": orgID,
		"roles":  roles,
	})
}

// GrantRole binds an identity to a role within an organization
func (h *AdminHandlers) GrantRole(w http.ResponseWriter, r *http.Request) {
	orgID := auth.NormalizeOrgID(mux.Vars(r)["orgID"])

	var req BindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.RoleName == "" {
		httputil.WriteBadRequest(w, "role_name is required")
		return
	}
	identity, err := req.identity(orgID)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.directory.GrantRole(r.Context(), orgID, identity, req.RoleName); err != nil {
		h.logger.WithError(err).WithFields(map[string]interface{}{
			"org_id":   orgID,
			"identity": identity.String(),
			"role":     req.RoleName,
		}).Error("grant role failed")
		httputil.WriteInternalError(w, fmt.Errorf("grant role failed"))
		return
	}

	httputil.WriteCreated(w, map[string]string{
		"org_id":    orgID,
		"identity":  identity.String(),
		"role_name": req.RoleName,
	})
}

// RevokeRole removes an identity-to-role binding
func (h *AdminHandlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	orgID := auth.NormalizeOrgID(mux.Vars(r)["orgID"])

	var req BindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.RoleName == "" {
		httputil.WriteBadRequest(w, "role_name is required")
		return
	}
	identity, err := req.identity(orgID)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	err = h.directory.RevokeRole(r.Context(), orgID, identity, req.RoleName)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "binding not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("org_id", orgID).Error("revoke role failed")
		httputil.WriteInternalError(w, fmt.Errorf("revoke role failed"))
		return
	}

	httputil.WriteNoContent(w)
}

// GetACL returns a role's ACL entries
func (h *AdminHandlers) GetACL(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orgID := auth.NormalizeOrgID(vars["orgID"])
	roleName := vars["role"]

	entries, err := h.directory.ACLByRoleName(r.Context(), orgID, roleName)
	if err != nil {
		h.logger.WithError(err).WithField("org_id", orgID).Error("get ACL failed")
		httputil.WriteInternalError(w, fmt.Errorf("get ACL failed"))
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"org_id":    orgID,
		"role_name": roleName,
		"entries":   entries,
	})
}

// PutACLEntry creates or replaces one ACL entry on a role. The pattern
// and actions are validated so the directory never holds rules the
// matcher cannot use.
func (h *AdminHandlers) PutACLEntry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orgID := auth.NormalizeOrgID(vars["orgID"])
	roleName := vars["role"]

	var entry Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidatePattern(entry.Path); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if len(entry.Actions) == 0 {
		httputil.WriteBadRequest(w, "actions must not be empty")
		return
	}
	for _, action := range entry.Actions {
		if _, err := ParseAction(string(action)); err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
	}

	if err := h.directory.PutACLEntry(r.Context(), orgID, roleName, entry); err != nil {
		h.logger.WithError(err).WithFields(map[string]interface{}{
			"org_id": orgID,
			"role":   roleName,
			"path":   entry.Path,
		}).Error("put ACL entry failed")
		httputil.WriteInternalError(w, fmt.Errorf("put ACL entry failed"))
		return
	}

	httputil.WriteSuccess(w, entry)
}

// DeleteACLEntry removes one ACL entry, identified by its path in the
// "path" query parameter
func (h *AdminHandlers) DeleteACLEntry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orgID := auth.NormalizeOrgID(vars["orgID"])
	roleName := vars["role"]

	path := r.URL.Query().Get("path")
	if path == "" {
		httputil.WriteBadRequest(w, "path query parameter is required")
		return
	}

	err := h.directory.DeleteACLEntry(r.Context(), orgID, roleName, path)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "ACL entry not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("org_id", orgID).Error("delete ACL entry failed")
		httputil.WriteInternalError(w, fmt.Errorf("delete ACL entry failed"))
		return
	}

	httputil.WriteNoContent(w)
}
