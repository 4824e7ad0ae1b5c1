package application

import (
	"encoding/json"

	"upsell/internal/service/promotion/domain"
	"upsell/internal/service/promotion/trigger"
)

// EvaluateRequest 是购物车评估的请求体。
// PromotionCatalog 为空时按 ShopID 从目录存储中加载。
type EvaluateRequest struct {
	ShopID           string                 `json:"shopId"`
	PromotionCatalog *string                `json:"promotionCatalogBlob,omitempty"`
	CartLines        []domain.CartLineInput `json:"cartLines"`
}

// ListPromotionsResponse 是店铺促销列表。
type ListPromotionsResponse struct {
	ShopID     string             `json:"shopId"`
	Promotions []domain.Promotion `json:"promotions"`
}

// UpsertPromotionRequest 新建或覆盖一条促销，id 为空或 "new" 时生成新的 id。
type UpsertPromotionRequest struct {
	ShopID    string           `json:"shopId"`
	Promotion domain.Promotion `json:"promotion"`
}

// DeletePromotionRequest 删除一条促销。
type DeletePromotionRequest struct {
	ShopID string `json:"shopId"`
	ID     string `json:"id"`
}

// TriggerRequest 是店铺前端在商品页请求加购属性的请求体。
// Promotions 是目录原文，为空时按 ShopID 加载；Offers 按促销 id 给出搭售商品。
type TriggerRequest struct {
	ShopID     string                       `json:"shopId"`
	Product    trigger.ViewedProduct        `json:"product"`
	Promotions *string                      `json:"promotions,omitempty"`
	Offers     map[string][]json.RawMessage `json:"offers,omitempty"`
}

// TriggerResponse 返回写入购物车行 __promotionData 的属性原文。
type TriggerResponse struct {
	Attribute string   `json:"attribute"`
	Triggered []string `json:"triggered"`
}
