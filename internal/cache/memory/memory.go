// Package memory is the in-process cache backend.
package memory

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Puvox/sign-in-with-essentials/internal/cache"
)

type Mem struct {
	mu sync.Mutex
	c  *gocache.Cache
}

func New(defaultTTL time.Duration) cache.Store {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &Mem{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Mem) Get(k string) ([]byte, bool) {
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Set(k string, v []byte, ttl time.Duration) { m.c.Set(k, v, ttl) }

// Take serializes get+delete under the mutex so concurrent callbacks racing
// on one nonce cannot both win.
func (m *Mem) Take(k string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	m.c.Delete(k)
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Delete(k string) { m.c.Delete(k) }
