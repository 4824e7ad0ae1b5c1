package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PromotionType 是促销的类型判别字段，闭集，可扩展。
type PromotionType string

const (
	PromotionTypeBundle   PromotionType = "bundle"         // 组合购 (frequently bought together)
	PromotionTypeVolume   PromotionType = "volumeDiscount" // 阶梯数量折扣
	PromotionTypeUpgrade  PromotionType = "upgrade"        // 升级优惠
	PromotionTypeFreeGift PromotionType = "freeGift"       // 赠品
)

// PromotionTypes 按评估顺序列出所有支持的促销类型。
var PromotionTypes = []PromotionType{
	PromotionTypeBundle,
	PromotionTypeUpgrade,
	PromotionTypeVolume,
	PromotionTypeFreeGift,
}

// ParsePromotionType 解析促销类型，兼容店铺前端和管理后台写入的旧名字。
func ParsePromotionType(s string) (PromotionType, bool) {
	switch s {
	case "bundle", "frequentlyBoughtTogether":
		return PromotionTypeBundle, true
	case "volumeDiscount":
		return PromotionTypeVolume, true
	case "upgrade", "upgradeDiscount":
		return PromotionTypeUpgrade, true
	case "freeGift":
		return PromotionTypeFreeGift, true
	}
	return "", false
}

// UsesOfferItems 表示该类型是否需要配置 offerItems。
func (t PromotionType) UsesOfferItems() bool {
	return t == PromotionTypeBundle || t == PromotionTypeUpgrade || t == PromotionTypeFreeGift
}

// SelectorKind 决定 Selector 按商品、集合还是标签匹配。
type SelectorKind string

const (
	SelectorProduct    SelectorKind = "product"
	SelectorCollection SelectorKind = "collection"
	SelectorTag        SelectorKind = "tag"
)

// SelectorValue 是选择器里的一个取值。存储里既有裸字符串，也有 {id,title,handle} 对象。
type SelectorValue struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
	Handle string `json:"handle,omitempty"`
}

func (v *SelectorValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = SelectorValue{ID: s}
		return nil
	}
	if len(data) > 0 && data[0] != '{' {
		// 数字 id
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = SelectorValue{ID: n.String()}
		return nil
	}
	type plain SelectorValue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = SelectorValue(p)
	return nil
}

// Keys 返回该取值可用于比较的所有形式：原始值、handle、以及清洗后的数字 id。
func (v SelectorValue) Keys() []string {
	keys := make([]string, 0, 3)
	if v.ID != "" {
		keys = append(keys, v.ID)
		if id := CleanID(v.ID); id != 0 && id.String() != v.ID {
			keys = append(keys, id.String())
		}
	}
	if v.Handle != "" {
		keys = append(keys, v.Handle)
	}
	return keys
}

// Selector 定义了哪些商品可以触发或参与一个促销。
type Selector struct {
	Kind   SelectorKind    `json:"kind"`
	Values []SelectorValue `json:"values"`
}

type selectorWire struct {
	Kind   SelectorKind    `json:"kind"`
	Values []SelectorValue `json:"values"`
	// 管理后台的旧字段名
	Type  SelectorKind    `json:"type"`
	Value []SelectorValue `json:"value"`
}

func (s *Selector) UnmarshalJSON(data []byte) error {
	var w selectorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = w.selector()
	return nil
}

func (w selectorWire) selector() Selector {
	s := Selector{Kind: w.Kind, Values: w.Values}
	if s.Kind == "" {
		s.Kind = w.Type
	}
	if len(s.Values) == 0 {
		s.Values = w.Value
	}
	return s
}

// IsEmpty 表示选择器没有任何取值。
func (s Selector) IsEmpty() bool {
	return len(s.Values) == 0
}

// OfferSelector 是带数量限制的 offerItems 选择器 (numItems 仅 bundle 使用)。
type OfferSelector struct {
	Selector
	NumItems int `json:"numItems,omitempty"`
}

func (o *OfferSelector) UnmarshalJSON(data []byte) error {
	var w struct {
		selectorWire
		NumItems FlexInt `json:"numItems"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = OfferSelector{Selector: w.selector(), NumItems: int(w.NumItems)}
	return nil
}

// DiscountKind 是折扣的计算方式。
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

func parseDiscountKind(s string) DiscountKind {
	switch s {
	case "fixed", "fixedAmount", "fixed_amount", "FIXED_AMOUNT":
		return DiscountFixed
	default:
		return DiscountPercentage
	}
}

// Discount 是一个固定的折扣值。
type Discount struct {
	Kind   DiscountKind    `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

func (d *Discount) UnmarshalJSON(data []byte) error {
	var w struct {
		Kind   string     `json:"kind"`
		Type   string     `json:"type"`
		Amount FlexAmount `json:"amount"`
		Value  FlexAmount `json:"value"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind := w.Kind
	if kind == "" {
		kind = w.Type
	}
	amount := w.Amount
	if !amount.Set {
		amount = w.Value
	}
	*d = Discount{Kind: parseDiscountKind(kind), Amount: amount.Decimal}
	return nil
}

func (d Discount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind   DiscountKind `json:"kind"`
		Amount json.Number  `json:"amount"`
	}{d.Kind, json.Number(d.Amount.String())})
}

// VolumeTier 是阶梯折扣的一档。
type VolumeTier struct {
	MinQuantity int
	Discount
}

func (t *VolumeTier) UnmarshalJSON(data []byte) error {
	var w struct {
		MinQuantity *FlexInt `json:"minQuantity"`
		Quantity    FlexInt  `json:"quantity"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var d Discount
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	t.Discount = d
	t.MinQuantity = int(w.Quantity)
	if w.MinQuantity != nil {
		t.MinQuantity = int(*w.MinQuantity)
	}
	return nil
}

func (t VolumeTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MinQuantity int          `json:"minQuantity"`
		Kind        DiscountKind `json:"kind"`
		Amount      json.Number  `json:"amount"`
	}{t.MinQuantity, t.Kind, json.Number(t.Amount.String())})
}

// Promotion 是商家在后台配置的促销，按 id 存在促销目录中。
type Promotion struct {
	ID              string         `json:"id"`
	Type            PromotionType  `json:"type"`
	Title           string         `json:"title"`
	DiscountMessage string         `json:"discountMessage"`
	Target          Selector       `json:"target"`
	OfferItems      *OfferSelector `json:"offerItems,omitempty"`
	Discount        Discount       `json:"discount"`
	VolumeTiers     []VolumeTier   `json:"volumeTiers,omitempty"`
	Priority        int            `json:"priority"`
	// Condition 是可选的 CEL 表达式，对购物车事实求值，为 false 时促销不生效。
	Condition string `json:"condition,omitempty"`
}

// legacyConfiguration 是管理后台写入的嵌套结构 (configuration.{target, offerItems, offerDiscount, volumes, metadata})。
type legacyConfiguration struct {
	Target        *Selector      `json:"target"`
	OfferItems    *OfferSelector `json:"offerItems"`
	OfferDiscount *Discount      `json:"offerDiscount"`
	Volumes       []VolumeTier   `json:"volumes"`
	Condition     string         `json:"condition"`
	Metadata      *struct {
		Title           string  `json:"title"`
		DiscountMessage string  `json:"discountMessage"`
		Priority        FlexInt `json:"priority"`
	} `json:"metadata"`
}

func (p *Promotion) UnmarshalJSON(data []byte) error {
	var w struct {
		ID              string               `json:"id"`
		Type            string               `json:"type"`
		Title           string               `json:"title"`
		DiscountMessage string               `json:"discountMessage"`
		Target          *Selector            `json:"target"`
		OfferItems      *OfferSelector       `json:"offerItems"`
		Discount        *Discount            `json:"discount"`
		VolumeTiers     []VolumeTier         `json:"volumeTiers"`
		Priority        *FlexInt             `json:"priority"`
		Condition       string               `json:"condition"`
		Configuration   *legacyConfiguration `json:"configuration"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := Promotion{
		ID:              w.ID,
		Title:           w.Title,
		DiscountMessage: w.DiscountMessage,
		OfferItems:      w.OfferItems,
		VolumeTiers:     w.VolumeTiers,
		Condition:       w.Condition,
		Discount:        Discount{Kind: DiscountPercentage},
	}
	if t, ok := ParsePromotionType(w.Type); ok {
		out.Type = t
	} else {
		out.Type = PromotionType(w.Type)
	}
	if w.Target != nil {
		out.Target = *w.Target
	}
	if w.Discount != nil {
		out.Discount = *w.Discount
	}
	if w.Priority != nil {
		out.Priority = int(*w.Priority)
	}

	// 扁平字段优先，缺失时回落到嵌套的 configuration
	if c := w.Configuration; c != nil {
		if w.Target == nil && c.Target != nil {
			out.Target = *c.Target
		}
		if out.OfferItems == nil {
			out.OfferItems = c.OfferItems
		}
		if w.Discount == nil && c.OfferDiscount != nil {
			out.Discount = *c.OfferDiscount
		}
		if len(out.VolumeTiers) == 0 {
			out.VolumeTiers = c.Volumes
		}
		if out.Condition == "" {
			out.Condition = c.Condition
		}
		if m := c.Metadata; m != nil {
			if out.Title == "" {
				out.Title = m.Title
			}
			if out.DiscountMessage == "" {
				out.DiscountMessage = m.DiscountMessage
			}
			if w.Priority == nil {
				out.Priority = int(m.Priority)
			}
		}
	}
	*p = out
	return nil
}

// Validate 检查促销配置的不变量，管理接口在写入前调用。
func (p *Promotion) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.Wrap(ErrInvalidPromotion, "id is required")
	}
	if _, ok := ParsePromotionType(string(p.Type)); !ok {
		return errors.Wrapf(ErrInvalidPromotion, "unknown promotion type %q", p.Type)
	}
	if p.Target.IsEmpty() {
		return errors.Wrap(ErrInvalidPromotion, "target selector must not be empty")
	}
	if p.Type.UsesOfferItems() && (p.OfferItems == nil || p.OfferItems.IsEmpty()) {
		return errors.Wrapf(ErrInvalidPromotion, "%s promotion requires offer items", p.Type)
	}
	if err := validateAmount(p.Discount); err != nil {
		return err
	}
	if p.Type == PromotionTypeVolume {
		if len(p.VolumeTiers) == 0 {
			return errors.Wrap(ErrInvalidPromotion, "volume discount requires at least one tier")
		}
		for i, tier := range p.VolumeTiers {
			if tier.MinQuantity < 0 {
				return errors.Wrapf(ErrInvalidPromotion, "tier %d: negative minQuantity", i)
			}
			if err := validateAmount(tier.Discount); err != nil {
				return errors.Wrapf(err, "tier %d", i)
			}
		}
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

func validateAmount(d Discount) error {
	if d.Amount.IsNegative() {
		return errors.Wrap(ErrInvalidPromotion, "discount amount must not be negative")
	}
	if d.Kind == DiscountPercentage && d.Amount.GreaterThan(hundred) {
		return errors.Wrap(ErrInvalidPromotion, "percentage discount must be within [0,100]")
	}
	return nil
}

// FlexInt 兼容数字和数字字符串，无法解析时为 0。
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			*f = FlexInt(i)
			return nil
		}
		if fl, err := n.Float64(); err == nil {
			*f = FlexInt(int(fl))
			return nil
		}
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			*f = FlexInt(i)
			return nil
		}
	}
	*f = 0
	return nil
}

// FlexAmount 是宽松解析的金额：数字或数字字符串，其它一律按 0 处理。
type FlexAmount struct {
	decimal.Decimal
	Set bool
}

func (f *FlexAmount) UnmarshalJSON(data []byte) error {
	f.Set = true
	f.Decimal = ParseAmount(data)
	return nil
}

// ParseAmount 宽松地解析一个 JSON 金额。
func ParseAmount(data []byte) decimal.Decimal {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d
		}
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return d
		}
	}
	return decimal.Zero
}
