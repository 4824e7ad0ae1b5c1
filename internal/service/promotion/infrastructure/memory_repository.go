package infrastructure

import (
	"context"
	"sync"

	"upsell/internal/service/promotion/domain"
)

// MemoryCatalogRepository 是进程内的目录存储，没有配置 MySQL 时使用，重启即丢失。
type MemoryCatalogRepository struct {
	mu       sync.RWMutex
	catalogs map[string]string
}

func NewMemoryCatalogRepository() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{catalogs: make(map[string]string)}
}

func (r *MemoryCatalogRepository) FindCatalog(_ context.Context, shopID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	blob, ok := r.catalogs[shopID]
	if !ok {
		return "", domain.ErrCatalogNotFound
	}
	return blob, nil
}

func (r *MemoryCatalogRepository) SaveCatalog(_ context.Context, shopID, blob string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalogs[shopID] = blob
	return nil
}
