package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"upsell/internal/pkg/bootstrap"
	"upsell/internal/pkg/logger"
	"upsell/internal/pkg/metrics"
	"upsell/internal/pkg/redis"
	"upsell/internal/service/promotion/domain"
)

// Cache 是目录缓存需要的 Redis 操作，key 不存在时 Get 返回 redis.Nil。
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CachedCatalogRepository 在底层仓储前加一层 Redis 缓存。
// 同一店铺的并发未命中只回源一次；缓存不可用时直接读底层仓储。
type CachedCatalogRepository struct {
	next    domain.CatalogRepository
	cache   Cache
	ttl     time.Duration
	ref     metafieldRef
	group   singleflight.Group
	metrics *metrics.Metrics
}

// NewCachedCatalogRepository 创建带缓存的仓储。
func NewCachedCatalogRepository(next domain.CatalogRepository, cache Cache, cfg bootstrap.CatalogConfig, m *metrics.Metrics) *CachedCatalogRepository {
	return &CachedCatalogRepository{
		next:    next,
		cache:   cache,
		ttl:     cfg.CacheTTL,
		ref:     refFromConfig(cfg),
		metrics: m,
	}
}

// FindCatalog 先查缓存，未命中时回源并回填。
func (r *CachedCatalogRepository) FindCatalog(ctx context.Context, shopID string) (string, error) {
	key := r.ref.cacheKey(shopID)
	blob, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		r.metrics.CacheHit(true)
		return blob, nil
	case errors.Is(err, redis.Nil):
	default:
		logger.Ctx(ctx).Warn().Err(err).Str("shop_id", shopID).Msg("catalog cache read failed, falling back to store")
	}
	r.metrics.CacheHit(false)

	v, err, _ := r.group.Do(shopID, func() (interface{}, error) {
		// 回源结果由所有等待者共享，不能跟随第一个调用方的取消
		loadCtx := context.WithoutCancel(ctx)
		blob, err := r.next.FindCatalog(loadCtx, shopID)
		if err != nil {
			return "", err
		}
		if err := r.cache.Set(loadCtx, key, blob, r.ttl); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("shop_id", shopID).Msg("catalog cache write failed")
		}
		return blob, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// SaveCatalog 写底层仓储后删除缓存，下次读取时回填。
func (r *CachedCatalogRepository) SaveCatalog(ctx context.Context, shopID, blob string) error {
	if err := r.next.SaveCatalog(ctx, shopID, blob); err != nil {
		return err
	}
	return r.Invalidate(ctx, shopID)
}

// Invalidate 删除店铺的目录缓存，其它实例收到变更事件时调用。
func (r *CachedCatalogRepository) Invalidate(ctx context.Context, shopID string) error {
	if err := r.cache.Del(ctx, r.ref.cacheKey(shopID)); err != nil {
		return errors.Wrapf(err, "invalidate catalog cache for shop %s", shopID)
	}
	return nil
}
