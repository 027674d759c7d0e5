package generate

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// SuggestionCache is a TTL cache of sanitized suggestions keyed by model and
// prompt. A nil *SuggestionCache caches nothing.
type SuggestionCache struct {
	cache *ttlcache.Cache[string, string]
}

// NewSuggestionCache creates a cache with the given TTL, or nil when ttl <= 0.
func NewSuggestionCache(ttl time.Duration) *SuggestionCache {
	if ttl <= 0 {
		return nil
	}
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &SuggestionCache{cache: c}
}

func suggestionKey(model, prompt string) string {
	h := sha256.Sum256([]byte(model + "\x00" + prompt))
	return fmt.Sprintf("%x", h)
}

// Get returns the cached suggestion, if it has not expired.
func (sc *SuggestionCache) Get(model, prompt string) (string, bool) {
	if sc == nil {
		return "", false
	}
	item := sc.cache.Get(suggestionKey(model, prompt))
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Set stores a suggestion.
func (sc *SuggestionCache) Set(model, prompt, suggestion string) {
	if sc == nil {
		return
	}
	sc.cache.Set(suggestionKey(model, prompt), suggestion, ttlcache.DefaultTTL)
}

// Close stops the cache expiration loop.
func (sc *SuggestionCache) Close() {
	if sc != nil {
		sc.cache.Stop()
	}
}
