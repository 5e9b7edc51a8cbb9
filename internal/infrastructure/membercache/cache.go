// Package membercache caches organization membership lookups used by fan-out and the inbox.
package membercache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Source is the membership store being cached.
type Source interface {
	MemberIDs(ctx context.Context, organizationID string) ([]string, error)
	OrganizationsOf(ctx context.Context, userID string) ([]string, error)
	AddMember(ctx context.Context, organizationID, userID string) error
}

// Cache serves membership reads from memory for ttl. Errors are never cached.
type Cache struct {
	src   Source
	store *cache.Cache
}

func New(src Source, ttl time.Duration) *Cache {
	return &Cache{src: src, store: cache.New(ttl, 2*ttl)}
}

func (c *Cache) MemberIDs(ctx context.Context, organizationID string) ([]string, error) {
	return c.lookup("org:"+organizationID, func() ([]string, error) {
		return c.src.MemberIDs(ctx, organizationID)
	})
}

func (c *Cache) OrganizationsOf(ctx context.Context, userID string) ([]string, error) {
	return c.lookup("user:"+userID, func() ([]string, error) {
		return c.src.OrganizationsOf(ctx, userID)
	})
}

// AddMember writes through and drops both affected entries.
func (c *Cache) AddMember(ctx context.Context, organizationID, userID string) error {
	if err := c.src.AddMember(ctx, organizationID, userID); err != nil {
		return err
	}
	c.store.Delete("org:" + organizationID)
	c.store.Delete("user:" + userID)
	return nil
}

func (c *Cache) lookup(key string, load func() ([]string, error)) ([]string, error) {
	if v, ok := c.store.Get(key); ok {
		return v.([]string), nil
	}
	ids, err := load()
	if err != nil {
		return nil, err
	}
	c.store.SetDefault(key, ids)
	return ids, nil
}
