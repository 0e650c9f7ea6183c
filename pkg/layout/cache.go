package layout

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-flui/flui/pkg/geometry"
)

// DefaultCacheCapacity bounds the layout cache when no explicit capacity is
// given. Sized for a few screens' worth of elements.
const DefaultCacheCapacity = 1024

// CacheKey identifies one memoized layout result.
//
// ChildCount is the keyed node's own direct child count. It is part of the
// key because a node's computed size can change when only its number of
// children changed, without any constraint-level signal. Omitting it would
// produce stale hits. Invalidation is purely
// key-driven: a changed constraint or child count misses naturally, and
// stale entries are only ever reclaimed by eviction.
type CacheKey struct {
	Node        uint64
	Constraints geometry.Constraints
	ChildCount  int
}

// LayoutCache memoizes computed sizes with bounded capacity and
// least-recently-used eviction. It is rebuilt from empty on every process
// start; nothing is persisted.
//
// Lookups and inserts are safe for concurrent use: the underlying store
// synchronizes per operation, so unrelated subtrees laying out in parallel
// never serialize against each other for longer than a single key access.
type LayoutCache struct {
	entries *lru.Cache[CacheKey, geometry.Size]
}

// NewLayoutCache creates a cache holding at most capacity entries.
// Zero or negative capacity selects DefaultCacheCapacity.
func NewLayoutCache(capacity int) *LayoutCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	entries, err := lru.New[CacheKey, geometry.Size](capacity)
	if err != nil {
		// lru.New fails only for non-positive sizes, which the clamp above
		// rules out.
		panic(err)
	}
	return &LayoutCache{entries: entries}
}

// Get returns the memoized size for key, if present.
func (c *LayoutCache) Get(key CacheKey) (geometry.Size, bool) {
	return c.entries.Get(key)
}

// Put stores the computed size for key, evicting the least recently used
// entry when the cache is full.
func (c *LayoutCache) Put(key CacheKey, size geometry.Size) {
	c.entries.Add(key, size)
}

// Len returns the number of cached entries.
func (c *LayoutCache) Len() int {
	return c.entries.Len()
}

// Purge drops all entries.
func (c *LayoutCache) Purge() {
	c.entries.Purge()
}
