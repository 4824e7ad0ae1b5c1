package evaluator

import (
	"fmt"

	"upsell/internal/service/promotion/domain"
)

func variantGID(id int) string { return fmt.Sprintf("gid://shopify/ProductVariant/%d", id) }
func productGID(id int) string { return fmt.Sprintf("gid://shopify/Product/%d", id) }

func cartLine(variant, product, qty int, title string, attr string) domain.CartLineInput {
	l := domain.CartLineInput{
		MerchandiseKind:   domain.MerchandiseProductVariant,
		VariantResourceID: variantGID(variant),
		ProductResourceID: productGID(product),
		ProductTitle:      title,
		Quantity:          qty,
	}
	if attr != "" {
		l.AttributeBlob = &attr
	}
	return l
}

func bundleAttr(promotionID string, products ...int) string {
	ids := ""
	for i, p := range products {
		if i > 0 {
			ids += ","
		}
		ids += fmt.Sprintf("%q", productGID(p))
	}
	return fmt.Sprintf(`{"frequentlyBoughtTogether":{"promotionId":%q,"itemIds":[%s]}}`, promotionID, ids)
}
