package evaluator

import (
	"sort"

	"upsell/internal/service/promotion/domain"
)

// CartItem 是按商品聚合后的购物车内容，用于选择器匹配。
type CartItem struct {
	ProductID   domain.ID
	Quantity    int
	Collections []domain.SelectorValue
	Tags        []string
}

// ItemsInCart 检查凭证中的每一个商品都至少出现在一行购物车里。
// 只要缺一件 (比如顾客删掉了组合中的某个商品)，整条凭证都不生效。
func ItemsInCart(rec domain.PromotionRecord, present map[domain.ID]int) bool {
	for _, id := range rec.ItemIDs {
		if _, ok := present[id]; !ok {
			return false
		}
	}
	return true
}

// MatchingProducts 返回与选择器匹配的商品 id，按 id 升序，与任何加购凭证无关。
func MatchingProducts(items []CartItem, sel domain.Selector) []domain.ID {
	if sel.IsEmpty() {
		return nil
	}
	var wanted map[domain.ID]struct{}
	if sel.Kind == domain.SelectorProduct {
		wanted = make(map[domain.ID]struct{}, len(sel.Values))
		for _, v := range sel.Values {
			if id := domain.CleanID(v.ID); id != 0 {
				wanted[id] = struct{}{}
			}
		}
	}

	var out []domain.ID
	for _, it := range items {
		attr := domain.LineAttribute{Collections: it.Collections, Tags: it.Tags}
		matched := false
		switch sel.Kind {
		case domain.SelectorProduct:
			_, matched = wanted[it.ProductID]
		case domain.SelectorCollection:
			matched = attr.HasCollection(sel.Values)
		case domain.SelectorTag:
			matched = attr.HasTag(sel.Values)
		}
		if matched {
			out = append(out, it.ProductID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// cart 是一次评估用到的购物车索引。
type cart struct {
	lineItems  []*domain.LineItemDiscount // 按变体 id 升序
	byProduct  map[domain.ID]*domain.LineItemDiscount
	lineQty    map[domain.ID]int // 变体 -> 原始数量
	productQty map[domain.ID]int // 商品 -> 所有行数量之和，只用于判断是否在购物车里
	items      []CartItem
}

// targetQty 返回商品折扣行 (变体 id 最小的那一行) 自身的数量。
// 折扣只落在这一行上，可折扣数量不能超过它。
func (c *cart) targetQty(productID domain.ID) int {
	li := c.byProduct[productID]
	if li == nil {
		return 0
	}
	return c.lineQty[li.VariantID]
}

// buildCart 从输入行建立索引，同时返回每一行解码后的属性。
func buildCart(lines []domain.CartLineInput) (*cart, []linePayload) {
	c := &cart{
		byProduct:  make(map[domain.ID]*domain.LineItemDiscount),
		lineQty:    make(map[domain.ID]int),
		productQty: make(map[domain.ID]int),
	}
	payloads := make([]linePayload, 0, len(lines))
	byVariant := make(map[domain.ID]*domain.LineItemDiscount)
	itemIdx := make(map[domain.ID]int)

	for _, l := range lines {
		payload := decodeAttribute(l.AttributeBlob)
		payloads = append(payloads, payload)

		if l.MerchandiseKind != domain.MerchandiseProductVariant {
			continue
		}
		variantID := domain.CleanID(l.VariantResourceID)
		if variantID == 0 {
			continue
		}
		productID := domain.CleanID(l.ProductResourceID)
		qty := l.Quantity
		if qty < 0 {
			qty = 0
		}

		li, ok := byVariant[variantID]
		if !ok {
			li = &domain.LineItemDiscount{
				VariantResourceID: l.VariantResourceID,
				VariantID:         variantID,
				ProductID:         productID,
				ProductTitle:      l.ProductTitle,
			}
			byVariant[variantID] = li
			c.lineItems = append(c.lineItems, li)
		}
		c.lineQty[variantID] += qty
		li.Quantity = c.lineQty[variantID]

		if productID == 0 {
			continue
		}
		c.productQty[productID] += qty
		idx, ok := itemIdx[productID]
		if !ok {
			idx = len(c.items)
			itemIdx[productID] = idx
			c.items = append(c.items, CartItem{ProductID: productID})
		}
		it := &c.items[idx]
		it.Quantity += qty
		it.Collections = append(it.Collections, payload.collections...)
		it.Tags = append(it.Tags, payload.tags...)
	}

	sort.Slice(c.lineItems, func(i, j int) bool { return c.lineItems[i].VariantID < c.lineItems[j].VariantID })
	sort.Slice(c.items, func(i, j int) bool { return c.items[i].ProductID < c.items[j].ProductID })
	for _, li := range c.lineItems {
		if li.ProductID == 0 {
			continue
		}
		if _, ok := c.byProduct[li.ProductID]; !ok {
			c.byProduct[li.ProductID] = li
		}
	}
	return c, payloads
}

// fact 构造规则引擎可见的购物车事实。
func (c *cart) fact() domain.Fact {
	f := domain.Fact{Lines: make([]domain.FactLine, 0, len(c.lineItems))}
	collections := make(map[domain.ID][]string, len(c.items))
	tags := make(map[domain.ID][]string, len(c.items))
	for _, it := range c.items {
		for _, col := range it.Collections {
			collections[it.ProductID] = append(collections[it.ProductID], col.Keys()...)
		}
		tags[it.ProductID] = it.Tags
	}
	for _, li := range c.lineItems {
		qty := c.lineQty[li.VariantID]
		f.TotalQuantity += qty
		f.Lines = append(f.Lines, domain.FactLine{
			VariantID:   int64(li.VariantID),
			ProductID:   int64(li.ProductID),
			Quantity:    qty,
			Collections: nonNil(collections[li.ProductID]),
			Tags:        nonNil(tags[li.ProductID]),
		})
	}
	return f
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
