package evaluator

import (
	"bytes"
	"encoding/json"
	"sort"

	"upsell/internal/service/promotion/domain"
)

// RecordSet 是按促销类型分桶、按 promotionId 去重并清洗过 id 的加购凭证。
type RecordSet map[domain.PromotionType][]domain.PromotionRecord

// rawRecord 是属性中解码出的原始凭证，itemIds 里可能混着资源标识串和数字。
type rawRecord struct {
	PromotionID string
	ItemIDs     []any
}

type linePayload struct {
	records     map[domain.PromotionType]rawRecord
	collections []domain.SelectorValue
	tags        []string
}

// decodeAttribute 解码一行的 __promotionData，缺失或非法时返回空内容。
func decodeAttribute(blob *string) linePayload {
	p := linePayload{records: map[domain.PromotionType]rawRecord{}}
	if blob == nil || len(bytes.TrimSpace([]byte(*blob))) == 0 {
		return p
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*blob), &m); err != nil {
		return p
	}
	// 同一个桶可能同时出现新旧两个键名，规范键名优先，结果与 map 遍历顺序无关
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		raw := m[key]
		switch key {
		case "collections":
			p.collections = decodeCollections(raw)
		case "tags":
			p.tags = decodeTags(raw)
		default:
			t, ok := domain.ParsePromotionType(key)
			if !ok {
				continue
			}
			if _, seen := p.records[t]; seen && key != string(t) {
				continue
			}
			if rec, ok := decodeRecord(raw); ok {
				p.records[t] = rec
			}
		}
	}
	return p
}

func decodeRecord(raw json.RawMessage) (rawRecord, bool) {
	var w struct {
		PromotionID json.RawMessage   `json:"promotionId"`
		ItemIDs     []json.RawMessage `json:"itemIds"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return rawRecord{}, false
	}
	id := decodeLoose(w.PromotionID)
	var promotionID string
	switch v := id.(type) {
	case string:
		promotionID = v
	case json.Number:
		promotionID = v.String()
	}
	if promotionID == "" {
		return rawRecord{}, false
	}
	items := make([]any, 0, len(w.ItemIDs))
	for _, it := range w.ItemIDs {
		items = append(items, decodeLoose(it))
	}
	return rawRecord{PromotionID: promotionID, ItemIDs: items}, true
}

// decodeLoose 把一个 JSON 值解成 string / json.Number / 其它，数字不丢精度。
func decodeLoose(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func decodeCollections(raw json.RawMessage) []domain.SelectorValue {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]domain.SelectorValue, 0, len(items))
	for _, it := range items {
		var v domain.SelectorValue
		if err := json.Unmarshal(it, &v); err == nil && (v.ID != "" || v.Handle != "") {
			out = append(out, v)
		}
	}
	return out
}

func decodeTags(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err == nil && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// processPromotionRecords 合并所有行的凭证，每个类型桶内按 promotionId 去重。
// 同一个组合购会把同一条凭证写到组合中的每一行，这里只保留第一份。
func processPromotionRecords(payloads []linePayload) map[domain.PromotionType][]rawRecord {
	buckets := make(map[domain.PromotionType][]rawRecord, len(domain.PromotionTypes))
	seen := make(map[domain.PromotionType]map[string]struct{}, len(domain.PromotionTypes))
	for _, p := range payloads {
		for _, t := range domain.PromotionTypes {
			rec, ok := p.records[t]
			if !ok {
				continue
			}
			if seen[t] == nil {
				seen[t] = make(map[string]struct{})
			}
			if _, dup := seen[t][rec.PromotionID]; dup {
				continue
			}
			seen[t][rec.PromotionID] = struct{}{}
			buckets[t] = append(buckets[t], rec)
		}
	}
	return buckets
}

// cleanIDs 把凭证中的每个商品标识清洗成裸数字 id。
func cleanIDs(buckets map[domain.PromotionType][]rawRecord) RecordSet {
	out := make(RecordSet, len(buckets))
	for t, recs := range buckets {
		cleaned := make([]domain.PromotionRecord, 0, len(recs))
		for _, rec := range recs {
			ids := make([]domain.ID, 0, len(rec.ItemIDs))
			for _, raw := range rec.ItemIDs {
				ids = append(ids, domain.CleanID(raw))
			}
			cleaned = append(cleaned, domain.PromotionRecord{PromotionID: rec.PromotionID, ItemIDs: ids})
		}
		out[t] = cleaned
	}
	return out
}

// AggregateRecords 解码所有购物车行的属性并合并成 RecordSet。
func AggregateRecords(lines []domain.CartLineInput) RecordSet {
	payloads := make([]linePayload, 0, len(lines))
	for _, l := range lines {
		payloads = append(payloads, decodeAttribute(l.AttributeBlob))
	}
	return cleanIDs(processPromotionRecords(payloads))
}

// CleanRecords 对已清洗的 RecordSet 再清洗一次，结果不变。
func CleanRecords(rs RecordSet) RecordSet {
	buckets := make(map[domain.PromotionType][]rawRecord, len(rs))
	for t, recs := range rs {
		for _, rec := range recs {
			items := make([]any, 0, len(rec.ItemIDs))
			for _, id := range rec.ItemIDs {
				items = append(items, id)
			}
			buckets[t] = append(buckets[t], rawRecord{PromotionID: rec.PromotionID, ItemIDs: items})
		}
	}
	return cleanIDs(buckets)
}
