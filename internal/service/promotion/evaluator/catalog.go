package evaluator

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"upsell/internal/service/promotion/domain"
)

// NormalizeCatalog 把 metafield 中的促销目录解析成统一的 StorePromotion 列表。
// 目录缺失或格式错误时返回空列表，绝不报错。
func NormalizeCatalog(blob string) []domain.StorePromotion {
	return normalizeCatalog(blob, zerolog.Nop())
}

func normalizeCatalog(blob string, log zerolog.Logger) []domain.StorePromotion {
	// 1. 目录可能是 {id: promotion} 的对象，也可能是后台直接存的数组
	catalog, err := domain.ParseCatalog(blob)
	if err != nil {
		log.Warn().Err(err).Msg("promotion catalog is malformed, treating as empty")
		return nil
	}
	entries := catalog.Entries()

	// 2. 逐条解析，单条坏数据只跳过自己
	promos := make([]domain.StorePromotion, 0, len(entries))
	for _, raw := range entries {
		var p domain.Promotion
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Debug().Err(err).Msg("skipping malformed promotion entry")
			continue
		}
		sp, ok := Project(p)
		if !ok {
			log.Debug().Str("promotion_id", p.ID).Str("type", string(p.Type)).Msg("skipping unsupported promotion")
			continue
		}
		promos = append(promos, sp)
	}

	// 3. 按 (priority, id) 排序，重复 id 只保留第一条
	sort.SliceStable(promos, func(i, j int) bool {
		if promos[i].Priority != promos[j].Priority {
			return promos[i].Priority < promos[j].Priority
		}
		return promos[i].ID < promos[j].ID
	})
	seen := make(map[string]struct{}, len(promos))
	out := promos[:0]
	for _, p := range promos {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Project 把一条促销配置投影成 StorePromotion，类型不支持或缺少 id 时返回 false。
func Project(p domain.Promotion) (domain.StorePromotion, bool) {
	if strings.TrimSpace(p.ID) == "" {
		return domain.StorePromotion{}, false
	}
	sp := domain.StorePromotion{
		ID:        p.ID,
		Title:     p.Title,
		Type:      p.Type,
		Message:   p.DiscountMessage,
		Priority:  p.Priority,
		Condition: p.Condition,
		Target:    p.Target,
		Discount:  p.Discount,
	}
	var offer domain.OfferSelector
	if p.OfferItems != nil {
		offer = *p.OfferItems
	}
	switch p.Type {
	case domain.PromotionTypeBundle:
		sp.Configuration = domain.BundleConfig{OfferItems: offer, Discount: p.Discount}
	case domain.PromotionTypeUpgrade:
		sp.Configuration = domain.UpgradeConfig{OfferItems: offer, Discount: p.Discount}
	case domain.PromotionTypeVolume:
		tiers := make([]domain.VolumeTier, len(p.VolumeTiers))
		copy(tiers, p.VolumeTiers)
		sp.Configuration = domain.VolumeConfig{Tiers: tiers}
	case domain.PromotionTypeFreeGift:
		sp.Configuration = domain.FreeGiftConfig{OfferItems: offer}
	default:
		return domain.StorePromotion{}, false
	}
	return sp, true
}
