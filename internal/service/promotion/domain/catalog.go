package domain

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Catalog 是店铺 metafield 中保存的促销目录。
// 每一条保留原始 JSON，未识别的字段 (比如样式配置) 在改写目录时原样保留。
type Catalog struct {
	entries []catalogEntry
}

type catalogEntry struct {
	id  string
	raw json.RawMessage
}

// ParseCatalog 解析目录原文。目录可能是 {id: promotion} 对象，也可能是后台写入的数组；
// 空串视为空目录，其它无法解析的内容返回 ErrInvalidCatalog。
func ParseCatalog(blob string) (*Catalog, error) {
	blob = strings.TrimSpace(blob)
	c := &Catalog{}
	if blob == "" {
		return c, nil
	}

	var raws []json.RawMessage
	switch blob[0] {
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal([]byte(blob), &m); err != nil {
			return nil, errors.Wrap(ErrInvalidCatalog, err.Error())
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			raws = append(raws, m[k])
		}
	case '[':
		if err := json.Unmarshal([]byte(blob), &raws); err != nil {
			return nil, errors.Wrap(ErrInvalidCatalog, err.Error())
		}
	default:
		return nil, errors.Wrap(ErrInvalidCatalog, "catalog is neither a JSON object nor an array")
	}

	for _, raw := range raws {
		var head struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw, &head)
		c.entries = append(c.entries, catalogEntry{id: head.ID, raw: raw})
	}
	return c, nil
}

// Entries 返回每一条的原始 JSON。
func (c *Catalog) Entries() []json.RawMessage {
	out := make([]json.RawMessage, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.raw
	}
	return out
}

// Promotions 返回能够解析的促销，顺序与目录一致。
func (c *Catalog) Promotions() []Promotion {
	out := make([]Promotion, 0, len(c.entries))
	for _, e := range c.entries {
		var p Promotion
		if err := json.Unmarshal(e.raw, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Find 按 id 查找促销。
func (c *Catalog) Find(id string) (Promotion, error) {
	for _, e := range c.entries {
		if e.id != id {
			continue
		}
		var p Promotion
		if err := json.Unmarshal(e.raw, &p); err != nil {
			return Promotion{}, errors.Wrapf(ErrInvalidPromotion, "stored promotion %s: %v", id, err)
		}
		return p, nil
	}
	return Promotion{}, errors.Wrap(ErrPromotionNotFound, id)
}

// Upsert 去掉同 id 的旧条目，再把 p 追加到末尾。
func (c *Catalog) Upsert(p Promotion) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode promotion")
	}
	c.remove(p.ID)
	c.entries = append(c.entries, catalogEntry{id: p.ID, raw: raw})
	return nil
}

// Delete 删除促销，不存在时返回 ErrPromotionNotFound。
func (c *Catalog) Delete(id string) error {
	if !c.remove(id) {
		return errors.Wrap(ErrPromotionNotFound, id)
	}
	return nil
}

func (c *Catalog) remove(id string) bool {
	kept := c.entries[:0]
	removed := false
	for _, e := range c.entries {
		if e.id == id {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
	return removed
}

// Encode 把目录序列化成 JSON 数组。
func (c *Catalog) Encode() (string, error) {
	raws := c.Entries()
	b, err := json.Marshal(raws)
	if err != nil {
		return "", errors.Wrap(err, "encode catalog")
	}
	return string(b), nil
}
