package rwportal

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultViewRegistrySize = 4096
	DefaultViewRegistryTTL  = 30 * time.Minute
)

// ViewRegistry keeps one Sequencer per session and list view so that
// overlapping requests from the same user are ordered and the last used
// params survive between requests.
type ViewRegistry struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, *Sequencer]
}

func NewViewRegistry(size int, ttl time.Duration) *ViewRegistry {
	if size <= 0 {
		size = DefaultViewRegistrySize
	}
	if ttl <= 0 {
		ttl = DefaultViewRegistryTTL
	}
	return &ViewRegistry{
		lru: expirable.NewLRU[string, *Sequencer](size, nil, ttl),
	}
}

// Sequencer returns the sequencer for view in the session identified by token.
func (v *ViewRegistry) Sequencer(token, view string) *Sequencer {
	key := tokenKey(token) + ":" + view

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq, ok := v.lru.Get(key); ok {
		return seq
	}
	seq := NewSequencer()
	v.lru.Add(key, seq)
	return seq
}

// Forget drops every view of a session. Called on logout.
func (v *ViewRegistry) Forget(token string) {
	prefix := tokenKey(token) + ":"

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, key := range v.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			v.lru.Remove(key)
		}
	}
}
