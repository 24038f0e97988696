package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/roles"
	"github.com/platinummonkey/tracker/pkg/store"
)

// CachedStore is a read-through cache over accounts and membership rows.
// The manager slot and listings always go to the underlying store so that
// appointments compare against the live version.
type CachedStore struct {
	store.Store
	backend Backend
	logger  *logrus.Logger
	hits    atomic.Int64
	misses  atomic.Int64

	hitCounter  prometheus.Counter
	missCounter prometheus.Counter
}

// Stats reports cache effectiveness
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// membershipEntry caches absence as well as presence
type membershipEntry struct {
	Present    bool              `json:"present"`
	Membership *store.Membership `json:"membership,omitempty"`
}

// New wraps next with the given backend
func New(next store.Store, backend Backend, logger *logrus.Logger) *CachedStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedStore{Store: next, backend: backend, logger: logger}
}

// WithMetrics counts lookups in tracker_cache_requests_total under the
// given backend label
func (c *CachedStore) WithMetrics(metrics *observability.Metrics, backendName string) *CachedStore {
	c.hitCounter = metrics.CacheRequestsTotal.WithLabelValues(backendName, "hit")
	c.missCounter = metrics.CacheRequestsTotal.WithLabelValues(backendName, "miss")
	return c
}

var _ store.Store = (*CachedStore)(nil)

func userKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

func membershipKey(projectID, userID int64) string {
	return fmt.Sprintf("membership:%d:%d", projectID, userID)
}

// GetUser returns the account, consulting the cache first
func (c *CachedStore) GetUser(ctx context.Context, userID int64) (*store.User, error) {
	key := userKey(userID)

	var cached store.User
	if c.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	fill := c.reserve(ctx, key)
	u, err := c.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	fill(u)
	return u, nil
}

// GetMembership returns the row, consulting the cache first. Absent rows are
// cached too since most denials are for non-members.
func (c *CachedStore) GetMembership(ctx context.Context, projectID, userID int64) (*store.Membership, error) {
	key := membershipKey(projectID, userID)

	var cached membershipEntry
	if c.lookup(ctx, key, &cached) {
		if !cached.Present || cached.Membership == nil {
			return nil, fmt.Errorf("membership %d/%d: %w", projectID, userID, store.ErrNotFound)
		}
		return cached.Membership, nil
	}

	fill := c.reserve(ctx, key)
	m, err := c.Store.GetMembership(ctx, projectID, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fill(membershipEntry{})
		return nil, err
	case err != nil:
		return nil, err
	}
	fill(membershipEntry{Present: true, Membership: m})
	return m, nil
}

// ReplaceManager writes through and evicts both affected rows
func (c *CachedStore) ReplaceManager(ctx context.Context, projectID, expectedVersion, userID int64) (*store.ManagerChange, error) {
	change, err := c.Store.ReplaceManager(ctx, projectID, expectedVersion, userID)

	keys := []string{membershipKey(projectID, userID)}
	if change != nil && change.PreviousManagerID != nil {
		keys = append(keys, membershipKey(projectID, *change.PreviousManagerID))
	}
	c.evict(ctx, keys...)

	return change, err
}

// SetMemberRole writes through and evicts the row
func (c *CachedStore) SetMemberRole(ctx context.Context, projectID, userID int64, role roles.Role) error {
	err := c.Store.SetMemberRole(ctx, projectID, userID, role)
	c.evict(ctx, membershipKey(projectID, userID))
	return err
}

// DeleteMembership writes through and evicts the row
func (c *CachedStore) DeleteMembership(ctx context.Context, projectID, userID int64) (bool, error) {
	removed, err := c.Store.DeleteMembership(ctx, projectID, userID)
	c.evict(ctx, membershipKey(projectID, userID))
	return removed, err
}

// SetUserDeleted writes through and evicts the account
func (c *CachedStore) SetUserDeleted(ctx context.Context, userID int64) (bool, error) {
	changed, err := c.Store.SetUserDeleted(ctx, userID)
	c.evict(ctx, userKey(userID))
	return changed, err
}

// Stats returns hit and miss counters
func (c *CachedStore) Stats() Stats {
	stats := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close releases the backend
func (c *CachedStore) Close() error {
	return c.backend.Close()
}

func (c *CachedStore) lookup(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		}
		c.miss()
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Dropping corrupt cache entry")
		c.evict(ctx, key)
		c.miss()
		return false
	}

	c.hits.Add(1)
	if c.hitCounter != nil {
		c.hitCounter.Inc()
	}
	return true
}

func (c *CachedStore) miss() {
	c.misses.Add(1)
	if c.missCounter != nil {
		c.missCounter.Inc()
	}
}

// reserve reads key's generation ahead of a store read and returns the fill
// for that read. The fill is dropped if a write invalidated key in between.
func (c *CachedStore) reserve(ctx context.Context, key string) func(value interface{}) {
	generation, err := c.backend.Generation(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache generation read failed")
		return func(interface{}) {}
	}

	return func(value interface{}) {
		data, err := json.Marshal(value)
		if err != nil {
			return
		}
		stored, err := c.backend.SetIfGeneration(ctx, key, generation, data)
		if err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
			return
		}
		if !stored {
			c.logger.WithField("key", key).Debug("Skipped cache fill raced by a write")
		}
	}
}

func (c *CachedStore) evict(ctx context.Context, keys ...string) {
	if err := c.backend.Invalidate(ctx, keys...); err != nil {
		c.logger.WithError(err).WithField("keys", keys).Error("Cache invalidation failed")
	}
}
