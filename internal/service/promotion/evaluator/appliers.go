package evaluator

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upsell/internal/service/promotion/domain"
)

var freeGiftDiscount = domain.Discount{Kind: domain.DiscountPercentage, Amount: decimal.NewFromInt(100)}

// evaluation 持有一次评估的全部中间状态，评估结束即丢弃。
type evaluation struct {
	log     zerolog.Logger
	rules   domain.RuleEngine
	promos  map[string]domain.StorePromotion
	byType  map[domain.PromotionType][]domain.StorePromotion
	records RecordSet
	cart    *cart
	fact    *domain.Fact
}

func newEvaluation(promos []domain.StorePromotion, records RecordSet, c *cart, o options) *evaluation {
	e := &evaluation{
		log:     o.log,
		rules:   o.rules,
		promos:  make(map[string]domain.StorePromotion, len(promos)),
		byType:  make(map[domain.PromotionType][]domain.StorePromotion),
		records: records,
		cart:    c,
	}
	for _, p := range promos {
		e.promos[p.ID] = p
		e.byType[p.Type] = append(e.byType[p.Type], p)
	}
	return e
}

// allowed 对促销的附加条件求值。没有条件或没有规则引擎时直接放行，求值出错按不生效处理。
func (e *evaluation) allowed(p domain.StorePromotion) bool {
	if p.Condition == "" || e.rules == nil {
		return true
	}
	if e.fact == nil {
		f := e.cart.fact()
		e.fact = &f
	}
	fact := *e.fact
	fact.PromotionID = p.ID
	ok, err := e.rules.Evaluate(p.Condition, fact)
	if err != nil {
		e.log.Warn().Err(err).Str("promotion_id", p.ID).Msg("promotion condition failed to evaluate, skipping")
		return false
	}
	return ok
}

// setQuantity 覆盖可折扣数量。不同促销先后写同一行时保留后写者，并记一条诊断日志。
func (e *evaluation) setQuantity(li *domain.LineItemDiscount, qty int, promotionID string) {
	if li.QuantitySetBy != "" && li.QuantitySetBy != promotionID && li.Quantity != qty {
		e.log.Debug().
			Int64("variant_id", int64(li.VariantID)).
			Str("previous_promotion", li.QuantitySetBy).
			Int("previous_quantity", li.Quantity).
			Str("promotion_id", promotionID).
			Int("quantity", qty).
			Msg("eligible quantity overwritten")
	}
	li.Quantity = qty
	li.QuantitySetBy = promotionID
}

func applied(p domain.StorePromotion, d domain.Discount) domain.AppliedDiscount {
	return domain.AppliedDiscount{
		Title:       p.Title,
		PromotionID: p.ID,
		Kind:        d.Kind,
		Amount:      d.Amount,
		Message:     p.Message,
	}
}

// recordPromotion 找到凭证对应的促销，要求凭证完整在购物车里且促销类型一致。
func (e *evaluation) recordPromotion(rec domain.PromotionRecord, t domain.PromotionType) (domain.StorePromotion, bool) {
	if !ItemsInCart(rec, e.cart.productQty) {
		return domain.StorePromotion{}, false
	}
	p, ok := e.promos[rec.PromotionID]
	if !ok || p.Type != t {
		return domain.StorePromotion{}, false
	}
	return p, e.allowed(p)
}

// applyBundles 处理组合购：整组都在购物车里时，组内每个商品都获得折扣，
// 可折扣数量取组内各商品折扣行数量中最小的那个。
func (e *evaluation) applyBundles() {
	for _, rec := range e.records[domain.PromotionTypeBundle] {
		p, ok := e.recordPromotion(rec, domain.PromotionTypeBundle)
		if !ok {
			continue
		}
		cfg, ok := p.Configuration.(domain.BundleConfig)
		if !ok {
			continue
		}
		ids := uniqueIDs(rec.ItemIDs)
		minQty := -1
		for _, id := range ids {
			if q := e.cart.targetQty(id); minQty < 0 || q < minQty {
				minQty = q
			}
		}
		for _, id := range ids {
			li := e.cart.byProduct[id]
			if li == nil {
				continue
			}
			e.setQuantity(li, minQty, p.ID)
			li.Discounts = append(li.Discounts, applied(p, cfg.Discount))
		}
	}
}

// applyUpgrades 与组合购的校验相同，但数量取每一行自己的数量。
func (e *evaluation) applyUpgrades() {
	for _, rec := range e.records[domain.PromotionTypeUpgrade] {
		p, ok := e.recordPromotion(rec, domain.PromotionTypeUpgrade)
		if !ok {
			continue
		}
		cfg, ok := p.Configuration.(domain.UpgradeConfig)
		if !ok {
			continue
		}
		for _, id := range uniqueIDs(rec.ItemIDs) {
			li := e.cart.byProduct[id]
			if li == nil {
				continue
			}
			e.setQuantity(li, e.cart.lineQty[li.VariantID], p.ID)
			li.Discounts = append(li.Discounts, applied(p, cfg.Discount))
		}
	}
}

// applyVolume 处理阶梯折扣：按折扣行自身的数量选中 minQuantity 不超过它的最高一档。
func (e *evaluation) applyVolume() {
	for _, p := range e.byType[domain.PromotionTypeVolume] {
		cfg, ok := p.Configuration.(domain.VolumeConfig)
		if !ok || len(cfg.Tiers) == 0 {
			continue
		}
		matched := MatchingProducts(e.cart.items, p.Target)
		if len(matched) == 0 || !e.allowed(p) {
			continue
		}
		for _, id := range matched {
			tier, ok := SelectTier(cfg.Tiers, e.cart.targetQty(id))
			if !ok {
				continue
			}
			li := e.cart.byProduct[id]
			if li == nil {
				continue
			}
			e.setQuantity(li, tier.MinQuantity, p.ID)
			li.Discounts = append(li.Discounts, applied(p, tier.Discount))
		}
	}
}

// applyFreeGifts 处理赠品：匹配 offerItems 的商品整行免费，不改数量。
func (e *evaluation) applyFreeGifts() {
	for _, p := range e.byType[domain.PromotionTypeFreeGift] {
		cfg, ok := p.Configuration.(domain.FreeGiftConfig)
		if !ok {
			continue
		}
		matched := MatchingProducts(e.cart.items, cfg.OfferItems.Selector)
		if len(matched) == 0 || !e.allowed(p) {
			continue
		}
		for _, id := range matched {
			li := e.cart.byProduct[id]
			if li == nil {
				continue
			}
			li.Discounts = append(li.Discounts, applied(p, freeGiftDiscount))
		}
	}
}

// SelectTier 选出 minQuantity <= quantity 的最高一档；相同 minQuantity 取列表中靠前的。
func SelectTier(tiers []domain.VolumeTier, quantity int) (domain.VolumeTier, bool) {
	best := -1
	for i, t := range tiers {
		if t.MinQuantity > quantity {
			continue
		}
		if best < 0 || t.MinQuantity > tiers[best].MinQuantity {
			best = i
		}
	}
	if best < 0 {
		return domain.VolumeTier{}, false
	}
	return tiers[best], true
}

func uniqueIDs(ids []domain.ID) []domain.ID {
	seen := make(map[domain.ID]struct{}, len(ids))
	out := make([]domain.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
