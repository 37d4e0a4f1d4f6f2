package llmcore

import (
	"context"
	"sync"
)

// Tokenizer counts tokens for preflight budgeting before a request is sent
// to a provider. Implementations typically call a provider-specific
// count_tokens endpoint.
type Tokenizer interface {
	CountTokens(ctx context.Context, text string) (int, error)
	CountMessagesTokens(ctx context.Context, msgs []Message) (int, error)
}

// TokenCacheConfig configures a TokenCache.
type TokenCacheConfig struct {
	MaxSize int
}

// TokenCache memoizes token counts for previously seen text to avoid
// repeated round trips to a provider's count_tokens endpoint. Eviction is
// FIFO once MaxSize is reached, which is sufficient given entries churn as
// conversations scroll forward.
type TokenCache struct {
	mu      sync.Mutex
	maxSize int
	order   []string
	entries map[string]int
}

// NewTokenCache creates a token cache. A non-positive MaxSize disables
// eviction bookkeeping and the cache grows unbounded.
func NewTokenCache(cfg TokenCacheConfig) *TokenCache {
	return &TokenCache{
		maxSize: cfg.MaxSize,
		entries: make(map[string]int),
	}
}

// Get returns the cached token count for text, if present.
func (c *TokenCache) Get(text string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	count, ok := c.entries[text]
	return count, ok
}

// Set records the token count for text, evicting the oldest entry if the
// cache is at capacity.
func (c *TokenCache) Set(text string, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[text]; !exists {
		c.order = append(c.order, text)
	}
	c.entries[text] = count
	if c.maxSize > 0 {
		for len(c.order) > c.maxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}
}

// Len returns the number of cached entries.
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
