package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Cache provides per-key result caching for chain reads. Results stay fresh
// for the configured TTL; concurrent requests for the same key share one
// in-flight fetch; Invalidate forces the next request to fetch again.
type Cache[T any] struct {
	mu       sync.Mutex
	results  map[string]T
	expiry   map[string]time.Time
	inFlight map[string]*Flight[T]
	ttl      time.Duration
}

// Flight is one in-flight fetch. Waiters block on Done and then read Result.
type Flight[T any] struct {
	done   chan struct{}
	result T
	ok     bool
}

// Done is closed once the fetch completed or failed.
func (f *Flight[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the fetched value; ok is false if the fetch failed.
// Only valid after Done is closed.
func (f *Flight[T]) Result() (T, bool) {
	return f.result, f.ok
}

// NewCache creates a new query cache with the specified TTL.
// A zero TTL disables result caching but keeps in-flight de-duplication.
func NewCache[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		results:  make(map[string]T),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]*Flight[T]),
		ttl:      ttl,
	}
}

// Key joins query arguments into a cache key, e.g. Key("listing", 3) == "listing:3".
func Key(parts ...interface{}) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = strings.ToLower(fmt.Sprint(p))
	}
	return strings.Join(s, ":")
}

// CacheStatus represents the result of checking the cache.
type CacheStatus int

const (
	// StatusNotFound means no fresh result and no in-flight request.
	StatusNotFound CacheStatus = iota
	// StatusCached means a fresh result was found.
	StatusCached
	// StatusInFlight means another request is currently fetching this key.
	StatusInFlight
)

// CheckAndMark atomically checks the cache and marks the key as in-flight if needed.
// Returns:
// - StatusCached + result if a fresh result exists
// - StatusInFlight + the running flight if another request is fetching
// - StatusNotFound + a new flight if this request should fetch (now marked in-flight)
func (c *Cache[T]) CheckAndMark(key string) (CacheStatus, T, *Flight[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if expiry, exists := c.expiry[key]; exists {
		if time.Now().Before(expiry) {
			if result, ok := c.results[key]; ok {
				return StatusCached, result, nil
			}
		}
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if f, exists := c.inFlight[key]; exists {
		return StatusInFlight, zero, f
	}

	f := &Flight[T]{done: make(chan struct{})}
	c.inFlight[key] = f
	return StatusNotFound, zero, f
}

// WaitForResult waits for an in-flight fetch to complete, respecting context cancellation.
// ok is false when the fetch failed; the caller should retry.
func (c *Cache[T]) WaitForResult(ctx context.Context, f *Flight[T]) (result T, ok bool, err error) {
	select {
	case <-f.done:
		result, ok = f.Result()
		return result, ok, nil
	case <-ctx.Done():
		return result, false, ctx.Err()
	}
}

// Get retrieves a cached result if it exists and is still fresh.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	expiry, exists := c.expiry[key]
	if !exists {
		return zero, false
	}

	if time.Now().After(expiry) {
		delete(c.results, key)
		delete(c.expiry, key)
		return zero, false
	}

	return c.results[key], true
}

// Complete caches the fetched result and signals any waiting goroutines.
// A fetch that was invalidated while in flight is handed to its waiters
// but not cached.
func (c *Cache[T]) Complete(key string, result T, f *Flight[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight[key] == f {
		if c.ttl > 0 {
			c.results[key] = result
			c.expiry[key] = time.Now().Add(c.ttl)
		}
		delete(c.inFlight, key)
	}

	f.result = result
	f.ok = true
	close(f.done)

	c.cleanupExpiredLocked()
}

// Fail removes the in-flight marker without caching a result,
// allowing the fetch to be retried.
func (c *Cache[T]) Fail(key string, f *Flight[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight[key] == f {
		delete(c.inFlight, key)
	}

	close(f.done)
}

// Invalidate drops the cached result for key and detaches any in-flight fetch,
// so the next request goes to the network.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.results, key)
	delete(c.expiry, key)
	delete(c.inFlight, key)
}

// InvalidatePrefix invalidates every key starting with prefix.
func (c *Cache[T]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix = strings.ToLower(prefix)
	for key := range c.expiry {
		if strings.HasPrefix(key, prefix) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}
	for key := range c.inFlight {
		if strings.HasPrefix(key, prefix) {
			delete(c.inFlight, key)
		}
	}
}

// Fetch returns the cached result for key, or calls fn once for all
// concurrent callers and caches its result.
func (c *Cache[T]) Fetch(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	for {
		status, result, f := c.CheckAndMark(key)
		switch status {
		case StatusCached:
			return result, nil
		case StatusInFlight:
			waited, ok, err := c.WaitForResult(ctx, f)
			if err != nil {
				return waited, err
			}
			if ok {
				return waited, nil
			}
			continue
		}

		value, err := fn(ctx)
		if err != nil {
			c.Fail(key, f)
			var zero T
			return zero, err
		}
		c.Complete(key, value, f)
		return value, nil
	}
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (c *Cache[T]) cleanupExpiredLocked() {
	now := time.Now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}
}
