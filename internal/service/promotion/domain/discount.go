package domain

import "github.com/shopspring/decimal"

// Strategy 决定多条折扣指令是叠加 (ALL) 还是只取第一条 (FIRST)。
type Strategy string

const (
	StrategyAll   Strategy = "ALL"
	StrategyFirst Strategy = "FIRST"
)

// EvaluationInput 是折扣函数的完整输入，评估结果只由它决定。
type EvaluationInput struct {
	PromotionCatalog string          `json:"promotionCatalogBlob"`
	CartLines        []CartLineInput `json:"cartLines"`
}

// EvaluationOutput 是交给宿主平台的折扣结果。
type EvaluationOutput struct {
	Strategy  Strategy              `json:"strategy"`
	Discounts []DiscountInstruction `json:"discounts"`
}

// IsEmpty 表示"无事可做"的结果，区别于"有折扣但折扣值为 0"。
func (o EvaluationOutput) IsEmpty() bool {
	return len(o.Discounts) == 0
}

// EmptyResult 是没有任何折扣时返回的固定结果。
func EmptyResult() EvaluationOutput {
	return EvaluationOutput{Strategy: StrategyFirst, Discounts: []DiscountInstruction{}}
}

// DiscountInstruction 是一条平台可执行的折扣指令。
type DiscountInstruction struct {
	TargetVariantID  string       `json:"targetVariantResourceId"`
	EligibleQuantity int          `json:"eligibleQuantity"`
	ValueKind        DiscountKind `json:"valueKind"`
	ValueAmount      float64      `json:"valueAmount"`
	Message          string       `json:"message"`
}

// AppliedDiscount 是叠加在某一行上的一条折扣。
type AppliedDiscount struct {
	Title       string
	PromotionID string
	Kind        DiscountKind
	Amount      decimal.Decimal
	Message     string
}

// LineItemDiscount 是单次评估中某个变体的临时结果，只在一次评估内存在。
type LineItemDiscount struct {
	VariantResourceID string
	VariantID         ID
	ProductID         ID
	ProductTitle      string
	// Quantity 是可享受折扣的数量，由各个处理器覆盖写入 (后写者生效)。
	Quantity int
	// QuantitySetBy 记录最后一次写入 Quantity 的促销 id，用于诊断重复写入。
	QuantitySetBy string
	Discounts     []AppliedDiscount
}
