package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"upsell/internal/pkg/logger"
	"upsell/internal/pkg/metrics"
	"upsell/internal/pkg/mq"
	"upsell/internal/service/promotion/infrastructure"
)

var errMalformedEvent = errors.New("malformed catalog event")

// MessageReader 是 kafka.Reader 中消费者用到的部分。
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CacheInvalidator 丢弃店铺目录的本地缓存。
type CacheInvalidator interface {
	Invalidate(ctx context.Context, shopID string) error
}

// CatalogEventConsumer 监听目录变更事件，让其它实例写入的目录尽快生效。
type CatalogEventConsumer struct {
	reader  MessageReader
	cache   CacheInvalidator
	metrics *metrics.Metrics
	backoff time.Duration
}

// NewCatalogEventConsumer 创建一个新的目录事件消费者。
func NewCatalogEventConsumer(reader MessageReader, cache CacheInvalidator, m *metrics.Metrics) *CatalogEventConsumer {
	return &CatalogEventConsumer{reader: reader, cache: cache, metrics: m, backoff: time.Second}
}

// Run 持续消费直到 ctx 取消，作为 bootstrap 的后台任务运行。
func (c *CatalogEventConsumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("✅ catalog event consumer started")
	for {
		// 使用 FetchMessage 而不是 ReadMessage，处理完再提交 offset
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("🛑 catalog event consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not read catalog event, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff): // 避免快速失败循环
			}
			continue
		}

		msgCtx := logger.WithTraceID(mq.ExtractTraceContext(ctx, msg.Headers))
		c.processMessage(msgCtx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit catalog event")
		}
	}
}

// Close 关闭底层 reader。
func (c *CatalogEventConsumer) Close(context.Context) error {
	return c.reader.Close()
}

func (c *CatalogEventConsumer) processMessage(ctx context.Context, msg kafka.Message) {
	var event infrastructure.CatalogChangedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil || event.ShopID == "" {
		// 坏消息只能跳过，重试也不会成功
		logger.Ctx(ctx).Warn().Err(err).Str("key", string(msg.Key)).Msg("skipping malformed catalog event")
		c.metrics.CatalogEvent("consume", errMalformedEvent)
		return
	}

	err := c.cache.Invalidate(ctx, event.ShopID)
	c.metrics.CatalogEvent("consume", err)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("shop_id", event.ShopID).Msg("failed to invalidate catalog cache")
		return
	}
	logger.Ctx(ctx).Debug().Str("shop_id", event.ShopID).Str("event_id", event.EventID).Msg("catalog cache invalidated")
}
