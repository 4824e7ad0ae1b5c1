package infrastructure

import (
	"context"
	"sync"
	"time"

	"upsell/internal/pkg/redis"
	"upsell/internal/service/promotion/domain"
)

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemoryCache() *memoryCache { return &memoryCache{values: map[string]string{}} }

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	v, ok := c.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (c *memoryCache) Set(ctx context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.err != nil {
		return c.err
	}
	c.values[key] = value
	return nil
}

func (c *memoryCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

type memoryStore struct {
	mu      sync.Mutex
	catalog map[string]string
	finds   int
	err     error
}

func newMemoryStore() *memoryStore { return &memoryStore{catalog: map[string]string{}} }

func (s *memoryStore) FindCatalog(ctx context.Context, shopID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.catalog[shopID]
	if !ok {
		return "", domain.ErrCatalogNotFound
	}
	return v, nil
}

func (s *memoryStore) SaveCatalog(_ context.Context, shopID, blob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[shopID] = blob
	return nil
}
