// Package redis is the Redis cache backend.
package redis

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/Puvox/sign-in-with-essentials/internal/cache"
)

type Cache struct {
	c          *rdb.Client
	prefix     string
	defaultTTL time.Duration
}

func New(addr string, db int, prefix string, defaultTTL time.Duration) cache.Store {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &Cache{
		c:          rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

func (r *Cache) key(k string) string { return r.prefix + k }

func (r *Cache) Get(k string) ([]byte, bool) {
	b, err := r.c.Get(context.Background(), r.key(k)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Cache) Set(k string, v []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	_ = r.c.Set(context.Background(), r.key(k), v, ttl).Err()
}

// Take uses GETDEL so the read-and-consume is atomic across instances.
func (r *Cache) Take(k string) ([]byte, bool) {
	b, err := r.c.GetDel(context.Background(), r.key(k)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Cache) Delete(k string) { _ = r.c.Del(context.Background(), r.key(k)).Err() }
