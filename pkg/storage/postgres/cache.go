package postgres

import (
	"context"
	"errors"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// CachedDirectory layers an in-process LRU (L1) and Redis (L2) over a
// role directory. Only RoleNamesByIdentity results are cached; ACL
// entries always come from the database so a resolved ACL is never
// assembled from stale parts older than the role-name TTL. Cache
// failures degrade to database reads; they never fail a lookup.
type CachedDirectory struct {
	inner   authz.AdminDirectory
	l1      *expirable.LRU[string, []string]
	l2      *RedisClient
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCachedDirectory wraps inner with the configured cache tiers. l2 may
// be nil to run with the in-process tier only.
func NewCachedDirectory(inner authz.AdminDirectory, l2 *RedisClient, cfg storage.Config, logger *observability.Logger, metrics *observability.Metrics) *CachedDirectory {
	return &CachedDirectory{
		inner:   inner,
		l1:      expirable.NewLRU[string, []string](cfg.L1CacheSize, nil, cfg.L1CacheTTL),
		l2:      l2,
		logger:  logger,
		metrics: metrics,
	}
}

var _ authz.AdminDirectory = (*CachedDirectory)(nil)

// RoleNamesByIdentity consults L1, then L2, then the database. Hits at a
// lower tier are promoted upward. An empty role list is cached like any
// other result.
func (c *CachedDirectory) RoleNamesByIdentity(ctx context.Context, orgID string, identity authz.Identity) ([]string, error) {
	key := roleNamesKey(orgID, identity.String())

	if names, ok := c.l1.Get(key); ok {
		c.recordHit("l1")
		return names, nil
	}
	c.recordMiss("l1")

	if c.l2 != nil {
		names, err := c.l2.GetRoleNames(ctx, orgID, identity.String())
		switch {
		case err == nil:
			c.recordHit("l2")
			c.l1.Add(key, names)
			return names, nil
		case errors.Is(err, ErrCacheMiss):
			c.recordMiss("l2")
		default:
			c.logger.WithError(err).Warn("Redis role cache read failed, falling back to database")
		}
	}

	names, err := c.inner.RoleNamesByIdentity(ctx, orgID, identity)
	if err != nil {
		return nil, err
	}

	c.l1.Add(key, names)
	if c.l2 != nil {
		if err := c.l2.SetRoleNames(ctx, orgID, identity.String(), names); err != nil {
			c.logger.WithError(err).Warn("Redis role cache write failed")
		}
	}
	return names, nil
}

// ACLByRoleName is a pass-through: entries are read fresh every time
func (c *CachedDirectory) ACLByRoleName(ctx context.Context, orgID, roleName string) ([]authz.Entry, error) {
	return c.inner.ACLByRoleName(ctx, orgID, roleName)
}

// GrantRole writes through and invalidates the identity's cached roles
func (c *CachedDirectory) GrantRole(ctx context.Context, orgID string, identity authz.Identity, roleName string) error {
	if err := c.inner.GrantRole(ctx, orgID, identity, roleName); err != nil {
		return err
	}
	c.invalidate(ctx, orgID, identity)
	return nil
}

// RevokeRole writes through and invalidates the identity's cached roles
func (c *CachedDirectory) RevokeRole(ctx context.Context, orgID string, identity authz.Identity, roleName string) error {
	if err := c.inner.RevokeRole(ctx, orgID, identity, roleName); err != nil {
		return err
	}
	c.invalidate(ctx, orgID, identity)
	return nil
}

// PutACLEntry writes through. ACL entries are not cached, so there is
// nothing to invalidate.
func (c *CachedDirectory) PutACLEntry(ctx context.Context, orgID, roleName string, entry authz.Entry) error {
	return c.inner.PutACLEntry(ctx, orgID, roleName, entry)
}

// DeleteACLEntry writes through
func (c *CachedDirectory) DeleteACLEntry(ctx context.Context, orgID, roleName, path string) error {
	return c.inner.DeleteACLEntry(ctx, orgID, roleName, path)
}

// ListRoleNames is a pass-through admin read
func (c *CachedDirectory) ListRoleNames(ctx context.Context, orgID string) ([]string, error) {
	return c.inner.ListRoleNames(ctx, orgID)
}

func (c *CachedDirectory) invalidate(ctx context.Context, orgID string, identity authz.Identity) {
	c.l1.Remove(roleNamesKey(orgID, identity.String()))
	if c.l2 != nil {
		if err := c.l2.InvalidateIdentity(ctx, orgID, identity.String()); err != nil {
			c.logger.WithError(err).Warn("Redis role cache invalidation failed")
		}
	}
}

func (c *CachedDirectory) recordHit(tier string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(tier)
	}
}

func (c *CachedDirectory) recordMiss(tier string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(tier)
	}
}
