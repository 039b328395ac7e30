package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// ConnectionManager holds the primary connection used for binding and
// ACL writes plus optional read replicas for role resolution reads.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // round-robin counter
	logger   *observability.Logger
}

// NewConnectionManager opens and verifies the primary connection and any
// configured replicas. A replica that cannot be reached at startup is
// skipped with a warning; the primary is required.
func NewConnectionManager(cfg storage.Config, logger *observability.Logger) (*ConnectionManager, error) {
	primary, err := openPool(cfg, cfg.PostgresURL, cfg.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}

	cm := &ConnectionManager{
		primary: primary,
		logger:  logger,
	}

	// Replicas get a smaller pool; resolution reads are short.
	replicaConns := cfg.MaxConns / 2
	if replicaConns < 2 {
		replicaConns = 2
	}
	for i, url := range cfg.PostgresReplicaURLs {
		replica, err := openPool(cfg, url, replicaConns)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Skipping unreachable read replica")
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("Database connections established")
	return cm, nil
}

func openPool(cfg storage.Config, url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// NewConnectionManagerFromDB wraps already opened connections. Used by
// tests running against in-memory databases.
func NewConnectionManagerFromDB(primary *sql.DB, replicas ...*sql.DB) *ConnectionManager {
	return &ConnectionManager{primary: primary, replicas: replicas}
}

// Primary returns the primary connection, used for all writes
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica chosen round-robin, or the primary when
// no replicas are configured
func (cm *ConnectionManager) Replica() *sql.DB {
	if len(cm.replicas) == 0 {
		return cm.primary
	}
	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// HealthCheck pings the primary and reports whether all replicas are
// down. A subset of replicas being down is tolerated silently; Replica
// still round-robins over the full set and queries fail over to retry.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	var unhealthy []string
	for i, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}
	if len(unhealthy) > 0 && len(unhealthy) == len(cm.replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}
	return nil
}

// Stats reports pool statistics for metric collection
func (cm *ConnectionManager) Stats() (primary sql.DBStats, replicas []sql.DBStats) {
	primary = cm.primary.Stats()
	replicas = make([]sql.DBStats, len(cm.replicas))
	for i, replica := range cm.replicas {
		replicas[i] = replica.Stats()
	}
	return primary, replicas
}

// Close closes the primary and all replica connections
func (cm *ConnectionManager) Close() error {
	var errs []string
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("primary: %v", err))
	}
	for i, replica := range cm.replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("replica-%d: %v", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("connection close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(raw string) []string {
	if raw == "" {
		return nil
	}
	var result []string
	for _, url := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
