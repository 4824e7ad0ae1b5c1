// Package trigger 决定店铺前端当前浏览的商品触发了哪些促销，并生成加购时写入购物车行的属性。
package trigger

import (
	"sort"
	"strings"

	"upsell/internal/service/promotion/domain"
)

// ViewedProduct 是顾客正在浏览的商品，集合与标签由调用方预先查好。
type ViewedProduct struct {
	ID          string                 `json:"id"`
	Handle      string                 `json:"handle"`
	Collections []domain.SelectorValue `json:"collections"`
	Tags        []string               `json:"tags"`
}

// Resolve 按优先级为每种促销类型选出第一条被当前商品触发的促销。
// offers 按促销 id 给出已经查好的搭售商品；缺失时从按商品配置的 offerItems 中取。
// 返回的属性总是带上商品的集合和小写标签，评估时用于选择器匹配。
func Resolve(product ViewedProduct, promotions []domain.StorePromotion, offers map[string][]domain.ID) domain.LineAttribute {
	tags := make([]string, 0, len(product.Tags))
	for _, t := range product.Tags {
		tags = append(tags, strings.ToLower(t))
	}
	attr := domain.LineAttribute{
		Records:     make(map[domain.PromotionType]domain.PromotionRecord),
		Collections: product.Collections,
		Tags:        tags,
	}

	// 1. 按 priority 稳定排序
	sorted := make([]domain.StorePromotion, len(promotions))
	copy(sorted, promotions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	// 2. 每种类型只取第一条被触发的
	self := domain.CleanID(product.ID)
	for _, p := range sorted {
		if _, done := attr.Records[p.Type]; done {
			continue
		}
		if !isTrigger(p.Target, product, attr) {
			continue
		}
		ids, ok := offers[p.ID]
		if !ok {
			ids = offerIDs(p)
		}
		itemIDs := make([]domain.ID, 0, len(ids)+1)
		itemIDs = append(itemIDs, ids...)
		if self != 0 {
			itemIDs = append(itemIDs, self)
		}
		attr.Records[p.Type] = domain.PromotionRecord{PromotionID: p.ID, ItemIDs: itemIDs}
	}
	return attr
}

func isTrigger(target domain.Selector, product ViewedProduct, attr domain.LineAttribute) bool {
	switch target.Kind {
	case domain.SelectorProduct:
		self := domain.CleanID(product.ID)
		for _, v := range target.Values {
			if product.Handle != "" && v.Handle == product.Handle {
				return true
			}
			if self != 0 && domain.CleanID(v.ID) == self {
				return true
			}
		}
		return false
	case domain.SelectorCollection:
		return attr.HasCollection(target.Values)
	case domain.SelectorTag:
		return attr.HasTag(target.Values)
	}
	return false
}

// offerIDs 取按商品配置的 offerItems；按集合或标签配置时需要调用方查好后通过 offers 传入。
func offerIDs(p domain.StorePromotion) []domain.ID {
	var sel domain.OfferSelector
	switch cfg := p.Configuration.(type) {
	case domain.BundleConfig:
		sel = cfg.OfferItems
	case domain.UpgradeConfig:
		sel = cfg.OfferItems
	case domain.FreeGiftConfig:
		sel = cfg.OfferItems
	default:
		return nil
	}
	if sel.Kind != domain.SelectorProduct {
		return nil
	}
	ids := make([]domain.ID, 0, len(sel.Values))
	for _, v := range sel.Values {
		if id := domain.CleanID(v.ID); id != 0 {
			ids = append(ids, id)
		}
		if sel.NumItems > 0 && len(ids) == sel.NumItems {
			break
		}
	}
	return ids
}
