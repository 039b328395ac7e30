package authz

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Handlers provides the HTTP surface of the decision engine
type Handlers struct {
	engine *Engine
	logger *observability.Logger
}

// NewHandlers creates decision handlers
func NewHandlers(engine *Engine, logger *observability.Logger) *Handlers {
	return &Handlers{engine: engine, logger: logger}
}

// RegisterRoutes registers the decision and introspection routes.
// Templates are relative to the given router, which the server mounts
// under /v1. The resolved-ACL view exposes rule structure, so it sits
// behind the admin guard for its organization.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authorize", h.Authorize).Methods("POST")
	router.HandleFunc("/orgs/{orgID}/principal/roles", h.PrincipalRoles).Methods("GET")
	router.Handle("/orgs/{orgID}/principal/acl",
		RequireAdminAccess(h.engine)(http.HandlerFunc(h.PrincipalACL))).Methods("GET")
}

// AuthorizeRequest is the decision request body. OrgIDs defaults to the
// principal's home organization when omitted.
type AuthorizeRequest struct {
	Resource string   `json:"resource"`
	Action   string   `json:"action"`
	OrgIDs   []string `json:"org_ids,omitempty"`
}

// AuthorizeResponse is the decision response body
type AuthorizeResponse struct {
	Allowed bool `json:"allowed"`
}

// Authorize decides whether the calling principal may perform an action
// on a resource path
func (h *Handlers) Authorize(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	if req.Resource == "" || req.Resource[0] != '/' {
		httputil.WriteBadRequest(w, "resource must be a leading-slash path")
		return
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	orgIDs := req.OrgIDs
	if len(orgIDs) == 0 {
		orgIDs = []string{principal.OrgID}
	}

	decision, err := h.engine.Authorize(r.Context(), principal, orgIDs, req.Resource, action)
	if err != nil {
		h.logger.WithError(err).WithField("resource", req.Resource).Error("authorization check failed")
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "authorization unavailable")
		return
	}

	httputil.WriteSuccess(w, AuthorizeResponse{Allowed: decision.Allowed})
}

// PrincipalRoles returns the role names resolved for the calling
// principal within one organization
func (h *Handlers) PrincipalRoles(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	orgID := auth.NormalizeOrgID(mux.Vars(r)["orgID"])

	roles, err := h.engine.ResolveRoles(r.Context(), principal, orgID)
	if err != nil {
		h.logger.WithError(err).WithField("org_id", orgID).Error("role resolution failed")
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "role resolution unavailable")
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

// PrincipalACL returns the merged, specificity-ordered ACL resolved for
// the calling principal within one organization
func (h *Handlers) PrincipalACL(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	orgID := auth.NormalizeOrgID(mux.Vars(r)["orgID"])

	resolved, err := h.engine.ResolveACL(r.Context(), principal, orgID)
	if err != nil {
		h.logger.WithError(err).WithField("org_id", orgID).Error("ACL resolution failed")
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "ACL resolution unavailable")
		return
	}
	if resolved == nil {
		resolved = []Entry{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"org_id":  orgID,
		"entries": resolved,
	})
}
