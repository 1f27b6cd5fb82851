package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ResponseCache stores encoded build responses keyed by a digest of the request.
type ResponseCache interface {
	// Get retrieves a response from the cache.
	Get(key uint64) ([]byte, bool)
	// Put stores a response in the cache.
	Put(key uint64, resp []byte)
	// Size returns the number of items in the cache.
	Size() int
}

// Key digests a request body.
func Key(body []byte) uint64 {
	return xxhash.Sum64(body)
}

// MapCache is a bounded in-memory ResponseCache. When full, an arbitrary
// entry is evicted to make room.
type MapCache struct {
	data     map[uint64][]byte
	capacity int
	mu       sync.RWMutex
}

// NewMapCache creates a cache holding at most capacity responses.
// A capacity of zero or less means unbounded.
func NewMapCache(capacity int) *MapCache {
	return &MapCache{
		data:     make(map[uint64][]byte),
		capacity: capacity,
	}
}

func (c *MapCache) Get(key uint64) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return copy to avoid modification of cached value
	if v, ok := c.data[key]; ok {
		dst := make([]byte, len(v))
		copy(dst, v)
		return dst, true
	}
	return nil, false
}

func (c *MapCache) Put(key uint64, resp []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; !ok && c.capacity > 0 && len(c.data) >= c.capacity {
		for k := range c.data {
			delete(c.data, k)
			break
		}
	}
	dst := make([]byte, len(resp))
	copy(dst, resp)
	c.data[key] = dst
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
