package evaluator

import (
	"strings"

	"github.com/shopspring/decimal"

	"upsell/internal/service/promotion/domain"
)

// Reduce 把每一行叠加的折扣归并成平台指令。
// 折扣值是所有叠加金额之和，固定金额与百分比不做换算，输出统一标记为百分比。
func Reduce(lineItems []*domain.LineItemDiscount) domain.EvaluationOutput {
	instructions := make([]domain.DiscountInstruction, 0, len(lineItems))
	for _, li := range lineItems {
		if li == nil || len(li.Discounts) == 0 {
			continue
		}
		total := decimal.Zero
		var msg strings.Builder
		msg.WriteString(li.ProductTitle)
		for _, d := range li.Discounts {
			total = total.Add(d.Amount)
			msg.WriteString(", ")
			msg.WriteString(d.Message)
		}
		instructions = append(instructions, domain.DiscountInstruction{
			TargetVariantID:  li.VariantResourceID,
			EligibleQuantity: li.Quantity,
			ValueKind:        domain.DiscountPercentage,
			ValueAmount:      total.InexactFloat64(),
			Message:          msg.String(),
		})
	}
	if len(instructions) == 0 {
		return domain.EmptyResult()
	}
	return domain.EvaluationOutput{Strategy: domain.StrategyAll, Discounts: instructions}
}
