package jwk

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/picatz/jose/v2/pkg/logging"
)

// DefaultURLSetCacheSize is the number of key set URLs a URLSetCache
// holds unless configured otherwise.
const DefaultURLSetCacheSize = 64

// URLSetCache is a cache of JWK sets keyed by URL that can be easily used to verify
// JWTs from multiple issuers. Entries expire after the cache duration, the least
// recently used URL is evicted when the cache is full, and Start refreshes every
// cached URL periodically.
type URLSetCache struct {
	// sets is a map of JWK sets keyed by URL.
	sets *expirable.LRU[string, *Set]

	// client is the HTTP client used to fetch JWK sets.
	client *http.Client

	// refreshInterval is the amount of time between refreshing JWK sets.
	refreshInterval time.Duration

	logger logging.Logger
}

// URLSetCacheOption configures a URLSetCache.
type URLSetCacheOption func(*urlSetCacheConfig) error

type urlSetCacheConfig struct {
	size   int
	logger logging.Logger
}

// WithCacheSize sets the maximum number of URLs held by the cache.
func WithCacheSize(size int) URLSetCacheOption {
	return func(c *urlSetCacheConfig) error {
		if size <= 0 {
			return fmt.Errorf("invalid cache size %d", size)
		}
		c.size = size
		return nil
	}
}

// WithCacheLogger sets the logger refresh failures are reported to.
func WithCacheLogger(logger logging.Logger) URLSetCacheOption {
	return func(c *urlSetCacheConfig) error {
		c.logger = logger
		return nil
	}
}

// NewURLSetCache returns a new JWK set cache.
func NewURLSetCache(client *http.Client, refreshInterval, cacheDuration time.Duration, opts ...URLSetCacheOption) (*URLSetCache, error) {
	config := &urlSetCacheConfig{
		size:   DefaultURLSetCacheSize,
		logger: logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("invalid URL set cache option: %w", err)
		}
	}

	if refreshInterval <= 0 {
		return nil, fmt.Errorf("invalid refresh interval %v", refreshInterval)
	}

	if client == nil {
		client = http.DefaultClient
	}

	logger := config.logger
	onEvict := func(url string, _ *Set) {
		logger.Debug("Evicted JWK set %s from cache.", url)
	}

	return &URLSetCache{
		sets:            expirable.NewLRU[string, *Set](config.size, onEvict, cacheDuration),
		client:          client,
		refreshInterval: refreshInterval,
		logger:          logger,
	}, nil
}

// Get returns the JWK set for the given URL, fetching it if it is not already cached.
func (c *URLSetCache) Get(ctx context.Context, url string) (*Set, error) {
	if set, ok := c.sets.Get(url); ok {
		return set, nil
	}
	return c.Fetch(ctx, url)
}

// GetKey returns the first key from the JWK set for the given URL that matches the given
// key id, fetching the JWK set if it is not already cached. A key id missing from a cached
// set triggers one refresh, to pick up rotated keys.
func (c *URLSetCache) GetKey(ctx context.Context, url string, keyID string) (*Key, error) {
	set, cached := c.sets.Get(url)
	if !cached {
		var err error
		set, err = c.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch JWK set: %w", err)
		}
	}

	key, err := set.Get(keyID)
	if err == nil || !cached {
		return key, err
	}

	set, err = c.Refresh(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh JWK set: %w", err)
	}
	return set.Get(keyID)
}

// Range iterates over the JWK sets in the cache, calling the given function for each
// URL and key. If the function returns false, the iteration will stop.
func (c *URLSetCache) Range(fn func(url string, key *Key) bool) {
	if fn == nil || c == nil {
		return
	}

	for _, url := range c.sets.Keys() {
		set, ok := c.sets.Peek(url)
		if !ok {
			continue
		}
		for _, key := range set.Keys {
			if !fn(url, key) {
				return
			}
		}
	}
}

// Fetch fetches the JWK set for the given URL and caches it.
func (c *URLSetCache) Fetch(ctx context.Context, url string) (*Set, error) {
	set, err := FetchSet(ctx, url, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWK set: %w", err)
	}

	c.sets.Add(url, set)
	c.logger.WithFields(map[string]any{"url": url, "keys": len(set.Keys)}).Debug("Cached JWK set.")

	return set, nil
}

// Refresh refreshes the JWK set for the given URL.
func (c *URLSetCache) Refresh(ctx context.Context, url string) (*Set, error) {
	return c.Fetch(ctx, url)
}

// RefreshAll refreshes all JWK sets in the cache.
func (c *URLSetCache) RefreshAll(ctx context.Context) error {
	for _, url := range c.sets.Keys() {
		if _, err := c.Refresh(ctx, url); err != nil {
			return fmt.Errorf("failed to refresh JWK set for %q: %w", url, err)
		}
	}
	return nil
}

// Len returns the number of cached URLs.
func (c *URLSetCache) Len() int {
	return c.sets.Len()
}

// Start starts the JWK set cache, refreshing the JWK sets at the given interval.
// It will block until the context is canceled. Refresh failures are logged and
// the previously cached sets are kept until they expire.
//
// Most callers will want to call this in a goroutine after creating the cache.
func (c *URLSetCache) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := c.RefreshAll(ctx)
			if err != nil {
				c.logger.Warn("Failed to refresh JWK sets: %v", err)
			}
		}
	}
}
