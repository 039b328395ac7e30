package authz

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Engine is the authorization decision engine. It is stateless between
// checks: every Authorize call resolves roles and ACL entries fresh from
// the directory, so concurrent checks share nothing and need no locking.
type Engine struct {
	directory   Directory
	logger      *observability.Logger
	metrics     *observability.Metrics
	otelMetrics *observability.OTelMetrics
	tracer      trace.Tracer
}

// NewEngine creates an authorization engine. The directory reference is
// injected explicitly; the engine never lazily initializes clients.
// metrics may be nil.
func NewEngine(directory Directory, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		directory: directory,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer("gatehouse/authz"),
	}
}

// SetOTelMetrics attaches OpenTelemetry instruments alongside the
// Prometheus metrics. Optional; decisions are recorded on both when set.
func (e *Engine) SetOTelMetrics(m *observability.OTelMetrics) {
	e.otelMetrics = m
}

// Authorize decides whether the principal may perform action on the
// resource path. Each organization in orgIDs is evaluated in isolation
// against its own resolved ACL; an allow from any evaluated organization
// allows the request. A directory failure aborts the whole check with an
// error and an implicit deny: the engine never guesses when it cannot
// establish ground truth.
func (e *Engine) Authorize(ctx context.Context, principal *auth.Principal, orgIDs []string, resource string, action Action) (Decision, error) {
	ctx, span := e.tracer.Start(ctx, "authz.Authorize",
		trace.WithAttributes(
			attribute.String("authz.resource", resource),
			attribute.String("authz.action", string(action)),
		))
	defer span.End()

	start := time.Now()
	decision := Decision{}

	for _, orgID := range orgIDs {
		orgID = auth.NormalizeOrgID(orgID)

		resolved, err := e.ResolveACL(ctx, principal, orgID)
		if err != nil {
			e.recordDecision(ctx, false, time.Since(start))
			return Decision{}, fmt.Errorf("resolve ACL for org %s: %w", orgID, err)
		}
		if len(resolved) == 0 {
			continue
		}

		if d := Evaluate(resolved, resource, action); d.Allowed {
			decision = d
			break
		}
	}

	e.recordDecision(ctx, decision.Allowed, time.Since(start))
	e.logger.WithFields(map[string]interface{}{
		"resource": resource,
		"action":   string(action),
		"allowed":  decision.Allowed,
	}).Debug("authorization decision")

	return decision, nil
}

// ResolveACL computes the principal's resolved ACL for one organization:
// identities derived, roles resolved, per-role entries loaded, merged
// and sorted by specificity. The result is never reused across checks.
func (e *Engine) ResolveACL(ctx context.Context, principal *auth.Principal, orgID string) ([]Entry, error) {
	orgID = auth.NormalizeOrgID(orgID)

	roles, err := e.ResolveRoles(ctx, principal, orgID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, nil
	}

	// One load per role, fanned out. All loads must finish before the
	// merge: a partial ACL is never evaluated.
	perRole := make([][]Entry, len(roles))
	g, gctx := errgroup.WithContext(ctx)
	for i, roleName := range roles {
		g.Go(func() error {
			start := time.Now()
			entries, err := e.directory.ACLByRoleName(gctx, orgID, roleName)
			e.recordLookup(gctx, "acl_by_role", time.Since(start), err)
			if err != nil {
				return fmt.Errorf("load ACL for role %q: %w", roleName, err)
			}
			perRole[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return MergeACL(perRole), nil
}

// ResolveRoles returns the distinct role names granted to any of the
// principal's identities within orgID. Each identity is looked up with
// its own read; the identity order does not affect the resulting set,
// but the first-seen order is kept for determinism. Any lookup failure
// aborts the resolution rather than silently dropping that identity's
// grants.
func (e *Engine) ResolveRoles(ctx context.Context, principal *auth.Principal, orgID string) ([]string, error) {
	orgID = auth.NormalizeOrgID(orgID)
	identities := DeriveIdentities(principal, orgID)

	perIdentity := make([][]string, len(identities))
	g, gctx := errgroup.WithContext(ctx)
	for i, identity := range identities {
		g.Go(func() error {
			start := time.Now()
			names, err := e.directory.RoleNamesByIdentity(gctx, orgID, identity)
			e.recordLookup(gctx, "roles_by_identity", time.Since(start), err)
			if err != nil {
				return fmt.Errorf("resolve roles for identity %s: %w", identity.String(), err)
			}
			perIdentity[i] = names
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var roles []string
	for _, names := range perIdentity {
		for _, name := range names {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			roles = append(roles, name)
		}
	}
	return roles, nil
}

func (e *Engine) recordDecision(ctx context.Context, allowed bool, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordDecision(allowed, elapsed)
	}
	if e.otelMetrics != nil {
		e.otelMetrics.RecordDecision(ctx, allowed, elapsed)
	}
}

func (e *Engine) recordLookup(ctx context.Context, operation string, elapsed time.Duration, err error) {
	if e.metrics != nil {
		e.metrics.RecordDirectoryLookup(operation, elapsed, err)
	}
	if e.otelMetrics != nil {
		e.otelMetrics.RecordLookup(ctx, operation, elapsed, err)
	}
}
