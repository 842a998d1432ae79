package invocation

import (
	"net/netip"
	"sync"
)

// Key identifies a logical request.
type Key struct {
	CorrelationID uint32
	Addr          netip.AddrPort
}

// ResponseCache stores the exact bytes of the first reply per Key.
// Entries are never evicted.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[Key][]byte
}

// NewResponseCache creates an empty cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{entries: make(map[Key][]byte)}
}

// Get returns the cached reply for k.
func (c *ResponseCache) Get(k Key) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[k]
	return b, ok
}

// Put stores reply under k unless k already has one. The first reply wins,
// so a later datagram always observes the bytes the first one was sent.
func (c *ResponseCache) Put(k Key, reply []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[k]; ok {
		return false
	}
	c.entries[k] = append([]byte(nil), reply...)
	return true
}

// Len returns the number of cached replies.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
