package authz

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
)

// RequireAccess guards an HTTP handler with a fixed-resource
// authorization check against the calling principal's home organization.
// Access rights are ordinary role bindings, not a separate mechanism.
func RequireAccess(engine *Engine, resource string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := middleware.GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			decision, err := engine.Authorize(r.Context(), principal, []string{principal.OrgID}, resource, action)
			if err != nil {
				httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "authorization unavailable")
				return
			}
			if !decision.Allowed {
				httputil.WriteForbidden(w, "access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminActionForMethod maps an HTTP method to the action checked on the
// admin surface
func AdminActionForMethod(method string) Action {
	switch method {
	case http.MethodGet, http.MethodHead:
		return ActionRead
	case http.MethodPost:
		return ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	}
	return ActionRead
}

// AdminResource returns the resource path that guards administrative
// operations within an organization.
func AdminResource(orgID string) string {
	return "/organization/" + orgID + "/gatehouse/admin"
}

// RequireAdminAccess guards the admin surface. The guarded resource and
// the evaluated organization both come from the {orgID} route variable,
// so administrative rights in one organization never reach into another.
// The action derives from the request method.
func RequireAdminAccess(engine *Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := middleware.GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			orgID := auth.NormalizeOrgID(mux.Vars(r)["orgID"])
			if orgID == "" {
				httputil.WriteForbidden(w, "access denied")
				return
			}

			decision, err := engine.Authorize(r.Context(), principal, []string{orgID},
				AdminResource(orgID), AdminActionForMethod(r.Method))
			if err != nil {
				httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "authorization unavailable")
				return
			}
			if !decision.Allowed {
				httputil.WriteForbidden(w, "access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
