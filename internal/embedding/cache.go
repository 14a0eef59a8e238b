package embedding

import (
	"container/list"
	"crypto/sha256"
	"sync"
)

// ImageCache is an LRU cache of embeddings keyed by the SHA-256 of the image bytes.
type ImageCache struct {
	capacity int
	cache    map[[sha256.Size]byte]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   [sha256.Size]byte
	value []float32
}

// NewImageCache creates a new cache with the given capacity.
func NewImageCache(capacity int) *ImageCache {
	return &ImageCache{
		capacity: capacity,
		cache:    make(map[[sha256.Size]byte]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present and marks it most recently used.
func (c *ImageCache) Get(key [sha256.Size]byte) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the least recently used entry if at capacity.
func (c *ImageCache) Set(key [sha256.Size]byte, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, value: value})
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached embeddings.
func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
