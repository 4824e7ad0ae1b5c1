package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// MerchandiseProductVariant 是唯一参与折扣计算的商品类型。
const MerchandiseProductVariant = "ProductVariant"

// AttributeKey 是加购时写入购物车行的属性名。
const AttributeKey = "__promotionData"

// CartLineInput 是宿主平台传入的一行购物车数据。
type CartLineInput struct {
	MerchandiseKind   string  `json:"merchandiseKind"`
	VariantResourceID string  `json:"variantResourceId"`
	ProductResourceID string  `json:"productResourceId"`
	ProductTitle      string  `json:"productTitle"`
	Quantity          int     `json:"quantity"`
	AttributeBlob     *string `json:"attributeBlob"`
}

// PromotionRecord 是加购时写入的凭证：ItemIDs 中的商品必须同时在购物车里，该记录才被承认。
type PromotionRecord struct {
	PromotionID string `json:"promotionId"`
	ItemIDs     []ID   `json:"itemIds"`
}

// LineAttribute 是购物车行属性解码后的内容。
// Collections 和 Tags 由店铺前端写入，因为评估时无法访问商品目录。
type LineAttribute struct {
	Records     map[PromotionType]PromotionRecord
	Collections []SelectorValue
	Tags        []string
}

// Encode 序列化成 __promotionData 属性值，键按固定顺序输出。
func (a LineAttribute) Encode() string {
	payload := make(map[string]any, len(a.Records)+2)
	for t, rec := range a.Records {
		ids := rec.ItemIDs
		if ids == nil {
			ids = []ID{}
		}
		payload[wireName(t)] = PromotionRecord{PromotionID: rec.PromotionID, ItemIDs: ids}
	}
	collections := a.Collections
	if collections == nil {
		collections = []SelectorValue{}
	}
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	payload["collections"] = collections
	payload["tags"] = tags
	// encoding/json 对 map 的键排序，输出是确定的
	b, _ := json.Marshal(payload)
	return string(b)
}

// wireName 返回店铺前端使用的属性桶名。
func wireName(t PromotionType) string {
	switch t {
	case PromotionTypeBundle:
		return "frequentlyBoughtTogether"
	case PromotionTypeUpgrade:
		return "upgradeDiscount"
	default:
		return string(t)
	}
}

// HasCollection 判断行属性中的集合是否与给定取值相交。
func (a LineAttribute) HasCollection(values []SelectorValue) bool {
	if len(a.Collections) == 0 || len(values) == 0 {
		return false
	}
	want := make(map[string]struct{})
	for _, v := range values {
		for _, k := range v.Keys() {
			want[k] = struct{}{}
		}
	}
	for _, c := range a.Collections {
		for _, k := range c.Keys() {
			if _, ok := want[k]; ok {
				return true
			}
		}
	}
	return false
}

// HasTag 判断行属性中的标签是否与给定取值相交，大小写不敏感。
func (a LineAttribute) HasTag(values []SelectorValue) bool {
	if len(a.Tags) == 0 || len(values) == 0 {
		return false
	}
	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		tag := v.ID
		if tag == "" {
			tag = v.Title
		}
		want[strings.ToLower(tag)] = struct{}{}
	}
	for _, t := range a.Tags {
		if _, ok := want[strings.ToLower(t)]; ok {
			return true
		}
	}
	return false
}

// SortedTypes 返回属性中出现的促销类型，按评估顺序排列。
func (a LineAttribute) SortedTypes() []PromotionType {
	out := make([]PromotionType, 0, len(a.Records))
	for t := range a.Records {
		out = append(out, t)
	}
	order := make(map[PromotionType]int, len(PromotionTypes))
	for i, t := range PromotionTypes {
		order[t] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}
