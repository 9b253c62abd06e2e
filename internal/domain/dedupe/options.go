// Package dedupe caches evaluation results by submission digest.
package dedupe

// Option applies a configuration option to the in-memory cache.
type Option func(*inMemoryCache)

// WithMaxSize sets the maximum number of results to keep in memory.
// If maxSize > 0: bounded mode, the oldest entries are evicted.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(c *inMemoryCache) {
		c.maxSize = maxSize
	}
}
