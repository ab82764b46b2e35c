// Package cache provides a bounded least-recently-used map that hands
// evicted values back to the owner so device objects can be destroyed.
//
// LRU is not safe for concurrent use. Each rendering session touches its
// caches only from the goroutine that owns it.
package cache

// Stats counts cache activity since creation or the last Purge.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// LRU maps keys to values and evicts the least recently used entry once
// more than its capacity is stored.
type LRU[K comparable, V any] struct {
	capacity int
	items    map[K]*node[K, V]
	order    list[K, V]
	onEvict  func(K, V)
	stats    Stats
}

// New creates a cache holding at most capacity entries. A capacity below
// one is raised to one. onEvict, if non-nil, receives every value that
// leaves the cache through eviction, replacement or Purge.
func New[K comparable, V any](capacity int, onEvict func(K, V)) *LRU[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*node[K, V]),
		onEvict:  onEvict,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	n, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	c.order.moveToFront(n)
	return n.value, true
}

// Add stores value under key. A value already stored under key is handed
// to onEvict first.
func (c *LRU[K, V]) Add(key K, value V) {
	if n, ok := c.items[key]; ok {
		old := n.value
		n.value = value
		c.order.moveToFront(n)
		c.evicted(key, old)
		return
	}
	c.items[key] = c.order.pushFront(key, value)
	for len(c.items) > c.capacity {
		oldest := c.order.back()
		c.order.remove(oldest)
		delete(c.items, oldest.key)
		c.stats.Evictions++
		c.evicted(oldest.key, oldest.value)
	}
}

// GetOrCreate returns the cached value for key, calling create on a miss.
// A failed create leaves the cache unchanged.
func (c *LRU[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return v, err
	}
	c.Add(key, v)
	return v, nil
}

// Len returns the number of stored entries.
func (c *LRU[K, V]) Len() int {
	return len(c.items)
}

// Stats returns the activity counters.
func (c *LRU[K, V]) Stats() Stats {
	return c.stats
}

// Purge hands every value to onEvict, oldest first, and empties the cache.
func (c *LRU[K, V]) Purge() {
	for n := c.order.back(); n != nil; n = c.order.back() {
		c.order.remove(n)
		delete(c.items, n.key)
		c.evicted(n.key, n.value)
	}
	c.stats = Stats{}
}

func (c *LRU[K, V]) evicted(key K, value V) {
	if c.onEvict != nil {
		c.onEvict(key, value)
	}
}
