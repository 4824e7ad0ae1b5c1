package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"upsell/internal/pkg/logger"
	"upsell/internal/pkg/metrics"
	"upsell/internal/service/promotion/domain"
	"upsell/internal/service/promotion/evaluator"
	"upsell/internal/service/promotion/trigger"
)

// PromotionService 定义了促销服务提供的所有业务用例
type PromotionService struct {
	repo      domain.CatalogRepository
	locker    domain.Locker
	publisher domain.CatalogEventPublisher
	rules     domain.RuleEngine
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	newID     func() string
}

// Option 配置 PromotionService 的可选依赖
type Option func(*PromotionService)

// WithPublisher 在目录变更后发送事件，未设置时不通知其它实例。
func WithPublisher(p domain.CatalogEventPublisher) Option {
	return func(s *PromotionService) { s.publisher = p }
}

// WithRuleEngine 启用促销的附加条件。
func WithRuleEngine(r domain.RuleEngine) Option {
	return func(s *PromotionService) { s.rules = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PromotionService) { s.metrics = m }
}

// WithIDGenerator 替换新促销 id 的生成方式。
func WithIDGenerator(fn func() string) Option {
	return func(s *PromotionService) { s.newID = fn }
}

// NewPromotionService 创建一个新的促销服务实例
func NewPromotionService(repo domain.CatalogRepository, locker domain.Locker, tracer trace.Tracer, opts ...Option) *PromotionService {
	s := &PromotionService{
		repo:   repo,
		locker: locker,
		tracer: tracer,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluateCart 计算购物车的折扣。目录内容有问题或者存储不可用时都降级为空目录，保证定价始终有应答。
func (s *PromotionService) EvaluateCart(ctx context.Context, req *EvaluateRequest) (domain.EvaluationOutput, error) {
	ctx, span := s.tracer.Start(ctx, "service.EvaluateCart")
	defer span.End()

	span.SetAttributes(
		attribute.String("shop.id", req.ShopID),
		attribute.Int("cart.lines", len(req.CartLines)),
	)

	if req.PromotionCatalog == nil && req.ShopID == "" {
		err := errors.Wrap(domain.ErrInvalidRequest, "shopId or promotionCatalogBlob is required")
		recordError(span, err)
		return domain.EmptyResult(), err
	}

	start := time.Now()
	outcome := ""

	// 1. 请求自带目录时直接使用，否则从存储加载
	var blob string
	if req.PromotionCatalog != nil {
		blob = *req.PromotionCatalog
	} else {
		loaded, err := s.loadCatalog(ctx, req.ShopID)
		if err != nil {
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).Str("shop_id", req.ShopID).Msg("⚠️ catalog store unavailable, evaluating with empty catalog")
			outcome = metrics.OutcomeError
		}
		blob = loaded
	}

	// 2. 纯计算
	out := evaluator.Evaluate(
		domain.EvaluationInput{PromotionCatalog: blob, CartLines: req.CartLines},
		evaluator.WithLogger(*logger.Ctx(ctx)),
		evaluator.WithRuleEngine(s.rules),
	)

	if outcome == "" {
		outcome = metrics.OutcomeDiscounted
		if out.IsEmpty() {
			outcome = metrics.OutcomeEmpty
		}
	}
	s.metrics.ObserveEvaluation(outcome, time.Since(start).Seconds(), len(out.Discounts))

	span.SetAttributes(
		attribute.String("evaluation.strategy", string(out.Strategy)),
		attribute.Int("evaluation.discounts", len(out.Discounts)),
	)
	return out, nil
}

// ListPromotions 列出店铺目录中所有可解析的促销
func (s *PromotionService) ListPromotions(ctx context.Context, shopID string) (*ListPromotionsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListPromotions")
	defer span.End()
	span.SetAttributes(attribute.String("shop.id", shopID))

	catalog, err := s.readCatalog(ctx, shopID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return &ListPromotionsResponse{ShopID: shopID, Promotions: catalog.Promotions()}, nil
}

// GetPromotion 按 id 读取一条促销
func (s *PromotionService) GetPromotion(ctx context.Context, shopID, id string) (*domain.Promotion, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetPromotion")
	defer span.End()
	span.SetAttributes(attribute.String("shop.id", shopID), attribute.String("promotion.id", id))

	catalog, err := s.readCatalog(ctx, shopID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	p, err := catalog.Find(id)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return &p, nil
}

// UpsertPromotion 新建或覆盖一条促销：去掉同 id 的旧条目后追加到目录末尾
func (s *PromotionService) UpsertPromotion(ctx context.Context, req *UpsertPromotionRequest) (*domain.Promotion, error) {
	ctx, span := s.tracer.Start(ctx, "service.UpsertPromotion")
	defer span.End()

	p := req.Promotion
	if p.ID == "" || p.ID == "new" {
		p.ID = s.newID()
	}
	span.SetAttributes(
		attribute.String("shop.id", req.ShopID),
		attribute.String("promotion.id", p.ID),
		attribute.String("promotion.type", string(p.Type)),
	)

	// 1. 先校验，校验不过不必拿锁
	if req.ShopID == "" {
		err := errors.Wrap(domain.ErrInvalidRequest, "shopId is required")
		recordError(span, err)
		return nil, err
	}
	if err := p.Validate(); err != nil {
		recordError(span, err)
		return nil, err
	}

	// 2. 读-改-写
	err := s.mutateCatalog(ctx, req.ShopID, func(c *domain.Catalog) error {
		return c.Upsert(p)
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("shop_id", req.ShopID).Str("promotion_id", p.ID).Msg("✅ promotion saved")
	return &p, nil
}

// DeletePromotion 从目录中删除一条促销
func (s *PromotionService) DeletePromotion(ctx context.Context, req *DeletePromotionRequest) error {
	ctx, span := s.tracer.Start(ctx, "service.DeletePromotion")
	defer span.End()
	span.SetAttributes(attribute.String("shop.id", req.ShopID), attribute.String("promotion.id", req.ID))

	if req.ShopID == "" || req.ID == "" {
		err := errors.Wrap(domain.ErrInvalidRequest, "shopId and id are required")
		recordError(span, err)
		return err
	}

	err := s.mutateCatalog(ctx, req.ShopID, func(c *domain.Catalog) error {
		return c.Delete(req.ID)
	})
	if err != nil {
		recordError(span, err)
		return err
	}

	logger.Ctx(ctx).Info().Str("shop_id", req.ShopID).Str("promotion_id", req.ID).Msg("🗑️ promotion deleted")
	return nil
}

// Trigger 为顾客正在浏览的商品生成加购属性
func (s *PromotionService) Trigger(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.Trigger")
	defer span.End()
	span.SetAttributes(attribute.String("shop.id", req.ShopID), attribute.String("product.id", req.Product.ID))

	if req.Product.ID == "" {
		err := errors.Wrap(domain.ErrInvalidRequest, "product.id is required")
		recordError(span, err)
		return nil, err
	}

	var blob string
	switch {
	case req.Promotions != nil:
		blob = *req.Promotions
	case req.ShopID != "":
		loaded, err := s.loadCatalog(ctx, req.ShopID)
		if err != nil {
			recordError(span, err)
			return nil, err
		}
		blob = loaded
	default:
		err := errors.Wrap(domain.ErrInvalidRequest, "shopId or promotions is required")
		recordError(span, err)
		return nil, err
	}

	offers := make(map[string][]domain.ID, len(req.Offers))
	for promotionID, raws := range req.Offers {
		ids := make([]domain.ID, 0, len(raws))
		for _, raw := range raws {
			if id := domain.CleanRawID(raw); id != 0 {
				ids = append(ids, id)
			}
		}
		offers[promotionID] = ids
	}

	attr := trigger.Resolve(req.Product, evaluator.NormalizeCatalog(blob), offers)
	resp := &TriggerResponse{Attribute: attr.Encode(), Triggered: []string{}}
	for _, t := range attr.SortedTypes() {
		resp.Triggered = append(resp.Triggered, attr.Records[t].PromotionID)
	}
	span.SetAttributes(attribute.StringSlice("promotion.triggered", resp.Triggered))
	return resp, nil
}

// loadCatalog 读取目录原文，目录不存在视为空目录
func (s *PromotionService) loadCatalog(ctx context.Context, shopID string) (string, error) {
	blob, err := s.repo.FindCatalog(ctx, shopID)
	if errors.Is(err, domain.ErrCatalogNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "load catalog for shop %s", shopID)
	}
	return blob, nil
}

func (s *PromotionService) readCatalog(ctx context.Context, shopID string) (*domain.Catalog, error) {
	if shopID == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "shop_id is required")
	}
	blob, err := s.loadCatalog(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return domain.ParseCatalog(blob)
}

// mutateCatalog 在店铺级的锁内完成读-改-写，写成功后通知其它实例
func (s *PromotionService) mutateCatalog(ctx context.Context, shopID string, mutate func(*domain.Catalog) error) error {
	unlock, err := s.locker.Lock(ctx, lockResource(shopID))
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("shop_id", shopID).Msg("failed to release catalog lock")
		}
	}()

	catalog, err := s.readCatalog(ctx, shopID)
	if err != nil {
		return err
	}
	if err := mutate(catalog); err != nil {
		return err
	}
	blob, err := catalog.Encode()
	if err != nil {
		return err
	}
	if err := s.repo.SaveCatalog(ctx, shopID, blob); err != nil {
		return errors.Wrapf(err, "save catalog for shop %s", shopID)
	}

	// 写入已经成功，通知失败只影响其它实例的缓存时效
	if s.publisher != nil {
		if err := s.publisher.PublishCatalogChanged(ctx, shopID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("shop_id", shopID).Msg("failed to publish catalog change")
		}
	}
	return nil
}

// lockResource 把店铺 id 转成可以作为 ZooKeeper 节点名的资源名
func lockResource(shopID string) string {
	return "catalog-" + strings.NewReplacer("/", "_", ":", "_").Replace(shopID)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
