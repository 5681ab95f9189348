package rwportal

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultProfileCacheSize = 1024
	DefaultProfileCacheTTL  = time.Minute
)

// ProfileCache remembers verified profiles for a short time so a page view
// does not cost a profile call. Keys are token digests, never raw tokens.
type ProfileCache struct {
	lru *expirable.LRU[string, UserProfile]
}

// NewProfileCache creates a cache. A non positive ttl disables caching.
func NewProfileCache(size int, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultProfileCacheSize
	}
	return &ProfileCache{
		lru: expirable.NewLRU[string, UserProfile](size, nil, ttl),
	}
}

func (p *ProfileCache) Get(token string) (*UserProfile, bool) {
	if p == nil {
		return nil, false
	}
	user, ok := p.lru.Get(tokenKey(token))
	if !ok {
		return nil, false
	}
	return &user, true
}

func (p *ProfileCache) Add(token string, user *UserProfile) {
	if p == nil || user == nil {
		return
	}
	p.lru.Add(tokenKey(token), *user)
}

func (p *ProfileCache) Remove(token string) {
	if p == nil {
		return
	}
	p.lru.Remove(tokenKey(token))
}

func (p *ProfileCache) Len() int {
	if p == nil {
		return 0
	}
	return p.lru.Len()
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
