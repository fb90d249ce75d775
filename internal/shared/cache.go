package shared

import (
	"context"
	"time"

	"github.com/loganszeto/sharedstate/internal/client"
	"github.com/loganszeto/sharedstate/internal/protocol"
)

// CacheClient is the subset of client.KV used by Cache.
type CacheClient interface {
	Get(ctx context.Context, domain, key string) (protocol.Blob, bool, error)
	Put(ctx context.Context, domain, key string, value any, ttl time.Duration) error
	Has(ctx context.Context, domain, key string) (bool, error)
	Del(ctx context.Context, domain, key string) (bool, error)
	DelAll(ctx context.Context, domain string) error
}

var _ CacheClient = (*client.KV)(nil)

// Cache is one domain of a KV server. Unreachable servers read as misses.
type Cache struct {
	client CacheClient
	domain string
	policy policy
}

func NewCache(c CacheClient, domain string, opts ...Option) *Cache {
	return &Cache{client: c, domain: domain, policy: newPolicy("cache", opts)}
}

func (c *Cache) Domain() string {
	return c.domain
}

func (c *Cache) Get(ctx context.Context, key string) (protocol.Blob, bool) {
	type lookup struct {
		value protocol.Blob
		ok    bool
	}
	res, err := retry(ctx, c.policy, "get", func(ctx context.Context) (lookup, error) {
		v, ok, err := c.client.Get(ctx, c.domain, key)
		return lookup{value: v, ok: ok}, err
	})
	if err != nil || !res.ok {
		return nil, false
	}
	return res.value, true
}

// Set stores value for ttl; a ttl under one second never expires.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	_, err := retry(ctx, c.policy, "set", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.client.Put(ctx, c.domain, key, value, ttl)
	})
	return err == nil
}

func (c *Cache) Has(ctx context.Context, key string) bool {
	ok, err := retry(ctx, c.policy, "has", func(ctx context.Context) (bool, error) {
		return c.client.Has(ctx, c.domain, key)
	})
	return err == nil && ok
}

func (c *Cache) Delete(ctx context.Context, key string) bool {
	ok, err := retry(ctx, c.policy, "delete", func(ctx context.Context) (bool, error) {
		return c.client.Del(ctx, c.domain, key)
	})
	return err == nil && ok
}

// Clear removes every key of the domain.
func (c *Cache) Clear(ctx context.Context) bool {
	_, err := retry(ctx, c.policy, "clear", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.client.DelAll(ctx, c.domain)
	})
	return err == nil
}
