package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"upsell/internal/pkg/logger"
	"upsell/internal/pkg/metrics"
	"upsell/internal/pkg/mq"
)

// CatalogChangedEvent 是目录变更后发往 Kafka 的事件。
type CatalogChangedEvent struct {
	EventID    string    `json:"eventId"`
	ShopID     string    `json:"shopId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// KafkaCatalogPublisher 实现 domain.CatalogEventPublisher。
type KafkaCatalogPublisher struct {
	writer  mq.MessageWriter
	metrics *metrics.Metrics
}

func NewKafkaCatalogPublisher(writer mq.MessageWriter, m *metrics.Metrics) *KafkaCatalogPublisher {
	return &KafkaCatalogPublisher{writer: writer, metrics: m}
}

// PublishCatalogChanged 以店铺 id 为 key 发送事件，保证同一店铺的事件有序。
func (p *KafkaCatalogPublisher) PublishCatalogChanged(ctx context.Context, shopID string) error {
	event := CatalogChangedEvent{
		EventID:    uuid.New().String(),
		ShopID:     shopID,
		OccurredAt: time.Now().UTC(),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	err = mq.ProduceMessage(ctx, p.writer, []byte(shopID), eventBytes)
	p.metrics.CatalogEvent("publish", err)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("shop_id", shopID).Msg("Failed to publish catalog change")
		return err
	}
	return nil
}
