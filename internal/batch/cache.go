package batch

import (
	"log/slog"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/dshills/contractcheck/internal/check"
	"github.com/dshills/contractcheck/internal/contract"
)

// Cache compiles each distinct contract document once. Entries are keyed by
// the xxh3 hash of the contract bytes and format, so the same contract
// reached through different paths shares one compiled value. Compiled
// contracts are read-only and shared between workers.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

type cacheKey struct {
	hash   xxh3.Uint128
	format contract.Format
}

type cacheEntry struct {
	once     sync.Once
	compiled *contract.Compiled
	err      error
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*cacheEntry)}
}

// Compile returns the compiled form of data, compiling it on first use. The
// error, when non-nil, is a *check.RunError.
func (c *Cache) Compile(data []byte, format contract.Format) (*contract.Compiled, error) {
	key := cacheKey{hash: xxh3.Hash128(data), format: format}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	if ok {
		slog.Debug("contract cache hit", "hash", key.hash.Lo)
	}
	e.once.Do(func() {
		e.compiled, e.err = check.CompileBytes(data, format)
	})
	return e.compiled, e.err
}

// Len reports the number of distinct contracts seen.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
