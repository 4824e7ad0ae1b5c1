package evaluator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upsell/internal/service/promotion/domain"
)

func TestNormalizeCatalog_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"whitespace": "   ",
		"not json":   "{oops",
		"scalar":     "42",
		"bad array":  "[1,",
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, NormalizeCatalog(blob))
		})
	}
}

func TestNormalizeCatalog_ObjectMapFlatShape(t *testing.T) {
	blob := `{
		"b": {"id":"p2","type":"bundle","title":"Bundle","discountMessage":"15% off",
		      "target":{"kind":"product","values":["gid://shopify/Product/1"]},
		      "offerItems":{"kind":"product","values":["2"],"numItems":1},
		      "discount":{"kind":"percentage","amount":15},"priority":2},
		"a": {"id":"p1","type":"volumeDiscount","title":"Volume",
		      "target":{"kind":"tag","values":["sale"]},
		      "volumeTiers":[{"minQuantity":1,"kind":"percentage","amount":0},{"minQuantity":5,"kind":"percentage","amount":"10"}],
		      "priority":1}
	}`
	promos := NormalizeCatalog(blob)
	require.Len(t, promos, 2)

	assert.Equal(t, "p1", promos[0].ID)
	vol, ok := promos[0].Configuration.(domain.VolumeConfig)
	require.True(t, ok)
	require.Len(t, vol.Tiers, 2)
	assert.Equal(t, 5, vol.Tiers[1].MinQuantity)
	assert.True(t, vol.Tiers[1].Amount.Equal(decimal.NewFromInt(10)))

	assert.Equal(t, "p2", promos[1].ID)
	bundle, ok := promos[1].Configuration.(domain.BundleConfig)
	require.True(t, ok)
	assert.Equal(t, 1, bundle.OfferItems.NumItems)
	assert.True(t, bundle.Discount.Amount.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "15% off", promos[1].Message)
}

func TestNormalizeCatalog_AdminNestedShapeAndLegacyNames(t *testing.T) {
	blob := `[
		{"id":"fbt","type":"frequentlyBoughtTogether","configuration":{
			"target":{"type":"product","value":[{"id":"gid://shopify/Product/1","title":"Shirt"}]},
			"offerItems":{"type":"product","value":[{"id":"gid://shopify/Product/2"}],"numItems":"1"},
			"offerDiscount":{"type":"fixedAmount","value":"5"},
			"metadata":{"title":"Better together","discountMessage":"Save 5","priority":3}}},
		{"id":"up","type":"upgradeDiscount","configuration":{
			"target":{"type":"collection","value":[{"id":"gid://shopify/Collection/9","handle":"shoes"}]},
			"offerItems":{"type":"product","value":["gid://shopify/Product/3"]},
			"offerDiscount":{"type":"percentage","value":20}}}
	]`
	promos := NormalizeCatalog(blob)
	require.Len(t, promos, 2)

	up := promos[0]
	assert.Equal(t, domain.PromotionTypeUpgrade, up.Type)
	assert.Equal(t, domain.SelectorCollection, up.Target.Kind)

	fbt := promos[1]
	assert.Equal(t, domain.PromotionTypeBundle, fbt.Type)
	assert.Equal(t, "Better together", fbt.Title)
	assert.Equal(t, "Save 5", fbt.Message)
	assert.Equal(t, 3, fbt.Priority)
	assert.Equal(t, domain.DiscountFixed, fbt.Discount.Kind)
	assert.True(t, fbt.Discount.Amount.Equal(decimal.NewFromInt(5)))
	cfg := fbt.Configuration.(domain.BundleConfig)
	assert.Equal(t, 1, cfg.OfferItems.NumItems)
	assert.Equal(t, domain.SelectorProduct, cfg.OfferItems.Kind)
}

func TestNormalizeCatalog_SkipsBadEntriesAndDuplicates(t *testing.T) {
	blob := `[
		{"id":"x","type":"bundle","discount":{"kind":"percentage","amount":"ten"}},
		{"id":"x","type":"freeGift","priority":9},
		{"id":"","type":"bundle"},
		{"id":"y","type":"mystery"},
		"garbage"
	]`
	promos := NormalizeCatalog(blob)
	require.Len(t, promos, 1)
	assert.Equal(t, "x", promos[0].ID)
	assert.Equal(t, domain.PromotionTypeBundle, promos[0].Type)
	assert.True(t, promos[0].Discount.Amount.IsZero(), "non-numeric amount coerces to 0")
}
