package cache

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/harborkv/dsgate/pkg/datastore"
	"github.com/harborkv/dsgate/pkg/observability"
)

// DataClass partitions cached values by churn rate; each class has its own TTL.
type DataClass string

const (
	// ClassStoreNames caches lists of store names
	ClassStoreNames DataClass = "store_names"
	// ClassKeyList caches key listing pages
	ClassKeyList DataClass = "key_list"
	// ClassContent caches record contents
	ClassContent DataClass = "content"
)

// entry is an immutable cached value. Entries are overwritten, never mutated.
type entry struct {
	value     []byte
	metadata  map[string]string
	writtenAt time.Time
	ttl       time.Duration
	fallback  bool
}

// Cache is the in-memory TTL cache. Storage is bounded by an LRU; expiry is
// evaluated lazily at read time, so an expired entry is treated as absent
// without being actively swept.
type Cache struct {
	log logrus.FieldLogger

	entries *lru.Cache[string, entry]
	markers *lru.Cache[string, time.Time]

	ttls          map[DataClass]time.Duration
	markerTTL     time.Duration
	sweepSchedule string

	hits   atomic.Uint64
	misses atomic.Uint64

	now func() time.Time
}

// New creates a TTL cache from the given configuration.
func New(log logrus.FieldLogger, cfg *Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache configuration: %w", err)
	}

	entries, err := lru.New[string, entry](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry store: %w", err)
	}

	markers, err := lru.New[string, time.Time](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create marker store: %w", err)
	}

	return &Cache{
		log:     log.WithField("component", "cache"),
		entries: entries,
		markers: markers,
		ttls: map[DataClass]time.Duration{
			ClassStoreNames: cfg.StoreNamesTTL,
			ClassKeyList:    cfg.KeyListTTL,
			ClassContent:    cfg.ContentTTL,
		},
		markerTTL:     cfg.ThrottleMarkerTTL,
		sweepSchedule: cfg.SweepSchedule,
		now:           time.Now,
	}, nil
}

// SweepSchedule returns the configured background compaction schedule;
// empty disables sweeping.
func (c *Cache) SweepSchedule() string {
	return c.sweepSchedule
}

func entryKey(target datastore.Target, class DataClass) string {
	return fmt.Sprintf("%s|%s|%s|%s", target.Store, target.Scope, target.Key, class)
}

// TTLFor returns the default TTL for a data class.
func (c *Cache) TTLFor(class DataClass) time.Duration {
	if ttl, ok := c.ttls[class]; ok {
		return ttl
	}

	return c.ttls[ClassContent]
}

// Get returns the cached value for a target and data class, treating expired
// entries as absent.
func (c *Cache) Get(target datastore.Target, class DataClass) ([]byte, bool) {
	ent, ok := c.entries.Get(entryKey(target, class))
	if !ok || c.now().Sub(ent.writtenAt) >= ent.ttl {
		c.misses.Add(1)
		observability.CacheEventsTotal.WithLabelValues(string(class), "miss").Inc()

		return nil, false
	}

	c.hits.Add(1)
	observability.CacheEventsTotal.WithLabelValues(string(class), "hit").Inc()

	return ent.value, true
}

// GetStale returns the cached value even if expired. Used as fallback data
// when an active throttle marker suppresses a remote call.
func (c *Cache) GetStale(target datastore.Target, class DataClass) ([]byte, bool) {
	ent, ok := c.entries.Get(entryKey(target, class))
	if !ok {
		return nil, false
	}

	return ent.value, true
}

// Metadata returns the metadata stored with a live entry.
func (c *Cache) Metadata(target datastore.Target, class DataClass) (map[string]string, bool) {
	ent, ok := c.entries.Get(entryKey(target, class))
	if !ok || c.now().Sub(ent.writtenAt) >= ent.ttl {
		return nil, false
	}

	return ent.metadata, true
}

// Put stores a value under the class's default TTL, overwriting any
// previous entry.
func (c *Cache) Put(target datastore.Target, class DataClass, value []byte, metadata map[string]string) {
	c.entries.Add(entryKey(target, class), entry{
		value:     value,
		metadata:  metadata,
		writtenAt: c.now(),
		ttl:       c.TTLFor(class),
	})
}

// PutFallback stores synthesized fallback data, flagged so collaborators can
// distinguish it from remotely fetched values.
func (c *Cache) PutFallback(target datastore.Target, class DataClass, value []byte) {
	c.entries.Add(entryKey(target, class), entry{
		value:     value,
		writtenAt: c.now(),
		ttl:       c.TTLFor(class),
		fallback:  true,
	})
}

// IsFallback reports whether the live entry for a target is synthesized
// fallback data.
func (c *Cache) IsFallback(target datastore.Target, class DataClass) bool {
	ent, ok := c.entries.Get(entryKey(target, class))

	return ok && ent.fallback
}

// Invalidate removes all data classes cached for a target.
func (c *Cache) Invalidate(target datastore.Target) {
	for class := range c.ttls {
		c.entries.Remove(entryKey(target, class))
	}

	c.markers.Remove(target.String())
}

// Clear removes every entry in the given scope; an empty scope clears all.
func (c *Cache) Clear(scope string) {
	if scope == "" {
		c.entries.Purge()
		c.markers.Purge()

		return
	}

	for _, key := range c.entries.Keys() {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) >= 2 && parts[1] == scope {
			c.entries.Remove(key)
		}
	}
}

// MarkThrottled records that a call for this identity was attempted recently.
// While the marker is live, callers short-circuit to cached or fallback data
// instead of re-issuing the call.
func (c *Cache) MarkThrottled(target datastore.Target) {
	c.markers.Add(target.String(), c.now())
	observability.ThrottleMarkersTotal.Inc()
}

// IsThrottled reports whether a live throttle marker exists for the target.
func (c *Cache) IsThrottled(target datastore.Target) bool {
	markedAt, ok := c.markers.Get(target.String())
	if !ok {
		return false
	}

	if c.now().Sub(markedAt) >= c.markerTTL {
		c.markers.Remove(target.String())

		return false
	}

	return true
}

// Sweep removes expired entries and stale markers, returning the number
// removed. Optional compaction only; reads never depend on it.
func (c *Cache) Sweep() int {
	removed := 0
	now := c.now()

	for _, key := range c.entries.Keys() {
		if ent, ok := c.entries.Peek(key); ok && now.Sub(ent.writtenAt) >= ent.ttl {
			c.entries.Remove(key)
			removed++
		}
	}

	for _, key := range c.markers.Keys() {
		if markedAt, ok := c.markers.Peek(key); ok && now.Sub(markedAt) >= c.markerTTL {
			c.markers.Remove(key)
			removed++
		}
	}

	return removed
}

// Len returns the number of stored entries, including expired ones not yet
// swept or overwritten.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// HitRate returns the fraction of Get calls served from cache.
func (c *Cache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()

	if total == 0 {
		return 0
	}

	return float64(hits) / float64(total)
}
