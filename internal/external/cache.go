package external

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"farewatch/internal/types"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"
)

// tokenRefreshMargin is subtracted from a token's lifetime so a request never
// starts with a token that expires in flight.
const tokenRefreshMargin = 60 * time.Second

// TokenFetchFunc obtains a fresh access token and its lifetime.
type TokenFetchFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenCache holds one OAuth access token per process. Concurrent callers
// that find the token expired share a single refresh.
type TokenCache struct {
	mu      sync.RWMutex
	token   string
	expires time.Time

	group singleflight.Group
	now   func() time.Time
}

// NewTokenCache creates an empty TokenCache. A nil clock uses time.Now.
func NewTokenCache(clock types.Clock) *TokenCache {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &TokenCache{now: now}
}

// Get returns the cached token, refreshing it with fetch when absent or expired.
func (c *TokenCache) Get(ctx context.Context, fetch TokenFetchFunc) (string, error) {
	c.mu.RLock()
	token, expires := c.token, c.expires
	c.mu.RUnlock()

	if token != "" && c.now().Before(expires) {
		return token, nil
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		fresh, ttl, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		ttl -= tokenRefreshMargin
		if ttl < 0 {
			ttl = 0
		}
		c.mu.Lock()
		c.token = fresh
		c.expires = c.now().Add(ttl)
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, e.g. after the provider answered 401.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expires = time.Time{}
	c.mu.Unlock()
}

// ResultCache memoizes search results per request for a short TTL. Entries are
// stored zstd-compressed since offer payloads are large and repetitive.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]resultEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

type resultEntry struct {
	payload []byte
	expires time.Time
}

// NewResultCache creates a ResultCache. A ttl <= 0 disables caching.
func NewResultCache(ttl time.Duration, maxEntries int, clock types.Clock) (*ResultCache, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	if maxEntries <= 0 {
		maxEntries = 512
	}
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &ResultCache{
		entries:    make(map[string]resultEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		encoder:    enc,
		decoder:    dec,
	}, nil
}

// ResultCacheKey derives the cache key for a provider and request.
func ResultCacheKey(provider string, req types.SearchRequest) string {
	ret := ""
	if req.Dates.Return != nil {
		ret = req.Dates.Return.Format(types.DateLayout)
	}
	return strings.Join([]string{
		provider,
		strings.ToUpper(req.Route.Origin),
		strings.ToUpper(req.Route.Destination),
		req.Dates.Depart.Format(types.DateLayout),
		ret,
		string(req.Cabin),
		strconv.Itoa(req.Adults),
		strings.ToUpper(req.Currency),
	}, "|")
}

// Get returns the cached offers for key. Expired entries are removed.
func (c *ResultCache) Get(key string) ([]types.NormalizedOffer, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && !c.now().Before(entry.expires) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	raw, err := c.decoder.DecodeAll(entry.payload, nil)
	if err != nil {
		return nil, false
	}
	var offers []types.NormalizedOffer
	if err := json.Unmarshal(raw, &offers); err != nil {
		return nil, false
	}
	return offers, true
}

// Put stores offers under key. When the cache is full, expired entries are
// purged first and then the entry closest to expiry is evicted.
func (c *ResultCache) Put(key string, offers []types.NormalizedOffer) {
	if c == nil || c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(offers)
	if err != nil {
		return
	}
	payload := c.encoder.EncodeAll(raw, nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = resultEntry{payload: payload, expires: now.Add(c.ttl)}
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResultCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
