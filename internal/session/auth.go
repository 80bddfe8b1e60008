package session

import (
	"sync"

	"teklif/internal/browser"
	"teklif/internal/types"
)

// TokenCache keeps the last known-good cookie set per provider so later
// sessions can skip credential entry. Cache-aside semantics: a stale or
// missing entry only costs a fresh login.
type TokenCache struct {
	mu      sync.RWMutex
	cookies map[types.ProviderID][]browser.Cookie
}

func NewTokenCache() *TokenCache {
	return &TokenCache{cookies: make(map[types.ProviderID][]browser.Cookie)}
}

func (c *TokenCache) Get(id types.ProviderID) ([]browser.Cookie, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.cookies[id]
	if !ok || len(set) == 0 {
		return nil, false
	}
	out := make([]browser.Cookie, len(set))
	copy(out, set)
	return out, true
}

func (c *TokenCache) Put(id types.ProviderID, cookies []browser.Cookie) {
	set := make([]browser.Cookie, len(cookies))
	copy(set, cookies)
	c.mu.Lock()
	c.cookies[id] = set
	c.mu.Unlock()
}

func (c *TokenCache) Drop(id types.ProviderID) {
	c.mu.Lock()
	delete(c.cookies, id)
	c.mu.Unlock()
}
