package domain

import "context"

// CatalogRepository 定义了促销目录 (商家 metafield 中的 JSON) 的持久化接口。
// 这是领域层与基础设施层之间的"插座"。
type CatalogRepository interface {
	// FindCatalog 返回店铺的促销目录原文，不存在时返回 ErrCatalogNotFound。
	FindCatalog(ctx context.Context, shopID string) (string, error)
	SaveCatalog(ctx context.Context, shopID, blob string) error
}

// CatalogEventPublisher 在促销目录变更后通知其它实例。
type CatalogEventPublisher interface {
	PublishCatalogChanged(ctx context.Context, shopID string) error
}

// Locker 为目录的"读-改-写"提供互斥。
type Locker interface {
	Lock(ctx context.Context, resource string) (unlock func() error, err error)
}

// RuleEngine 对促销的附加条件求值。
type RuleEngine interface {
	Evaluate(ruleDefinition string, fact Fact) (bool, error)
}

// Fact 是规则引擎可见的购物车事实。
type Fact struct {
	PromotionID   string     `json:"promotionId"`
	TotalQuantity int        `json:"totalQuantity"`
	Lines         []FactLine `json:"lines"`
}

// FactLine 是 Fact 中的一行。
type FactLine struct {
	VariantID   int64    `json:"variantId"`
	ProductID   int64    `json:"productId"`
	Quantity    int      `json:"quantity"`
	Collections []string `json:"collections"`
	Tags        []string `json:"tags"`
}
