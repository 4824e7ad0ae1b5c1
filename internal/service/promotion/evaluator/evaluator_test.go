package evaluator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upsell/internal/service/promotion/domain"
)

const bundleCatalog = `{"p1":{"id":"p1","type":"bundle","title":"Bundle","discountMessage":"Bundle 15%",
	"target":{"kind":"product","values":["gid://shopify/Product/1"]},
	"offerItems":{"kind":"product","values":["gid://shopify/Product/2"],"numItems":1},
	"discount":{"kind":"percentage","amount":15}}}`

func TestEvaluate_EmptyCatalogReturnsSentinel(t *testing.T) {
	in := domain.EvaluationInput{CartLines: []domain.CartLineInput{cartLine(11, 1, 1, "A", bundleAttr("p1", 1))}}
	for _, blob := range []string{"", "{not json", "[]", "{}"} {
		in.PromotionCatalog = blob
		out := Evaluate(in)
		assert.Equal(t, domain.EmptyResult(), out, "catalog %q", blob)
		assert.True(t, out.IsEmpty())
		assert.Equal(t, domain.StrategyFirst, out.Strategy)
		assert.NotNil(t, out.Discounts)
	}
}

func TestEvaluate_BundleAllOrNothing(t *testing.T) {
	attr := bundleAttr("p1", 1, 2)

	t.Run("partial set", func(t *testing.T) {
		out := Evaluate(domain.EvaluationInput{
			PromotionCatalog: bundleCatalog,
			CartLines:        []domain.CartLineInput{cartLine(11, 1, 1, "A", attr)},
		})
		assert.True(t, out.IsEmpty())
	})

	t.Run("full set", func(t *testing.T) {
		out := Evaluate(domain.EvaluationInput{
			PromotionCatalog: bundleCatalog,
			CartLines: []domain.CartLineInput{
				cartLine(11, 1, 1, "A", attr),
				cartLine(22, 2, 1, "B", attr),
			},
		})
		want := domain.EvaluationOutput{
			Strategy: domain.StrategyAll,
			Discounts: []domain.DiscountInstruction{
				{TargetVariantID: variantGID(11), EligibleQuantity: 1, ValueKind: domain.DiscountPercentage, ValueAmount: 15, Message: "A, Bundle 15%"},
				{TargetVariantID: variantGID(22), EligibleQuantity: 1, ValueKind: domain.DiscountPercentage, ValueAmount: 15, Message: "B, Bundle 15%"},
			},
		}
		if diff := cmp.Diff(want, out); diff != "" {
			t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestEvaluate_BundleQuantityFloor(t *testing.T) {
	attr := bundleAttr("p1", 1, 2)
	out := Evaluate(domain.EvaluationInput{
		PromotionCatalog: bundleCatalog,
		CartLines: []domain.CartLineInput{
			cartLine(11, 1, 5, "A", attr),
			cartLine(22, 2, 2, "B", attr),
		},
	})
	require.Len(t, out.Discounts, 2)
	for _, d := range out.Discounts {
		assert.Equal(t, 2, d.EligibleQuantity)
	}
}

func TestEvaluate_BundleRequiresMatchingType(t *testing.T) {
	catalog := `[{"id":"p1","type":"upgrade","target":{"kind":"product","values":["1"]},
		"offerItems":{"kind":"product","values":["2"]},"discount":{"kind":"percentage","amount":10}}]`
	out := Evaluate(domain.EvaluationInput{
		PromotionCatalog: catalog,
		CartLines: []domain.CartLineInput{
			cartLine(11, 1, 1, "A", bundleAttr("p1", 1, 2)),
			cartLine(22, 2, 1, "B", bundleAttr("p1", 1, 2)),
		},
	})
	assert.True(t, out.IsEmpty())
}

func TestEvaluate_UpgradeUsesLineQuantity(t *testing.T) {
	catalog := `[{"id":"u1","type":"upgrade","title":"Upgrade","discountMessage":"Upgrade 20%",
		"target":{"kind":"product","values":["1"]},
		"offerItems":{"kind":"product","values":["2"]},"discount":{"kind":"percentage","amount":20}}]`
	attr := `{"upgradeDiscount":{"promotionId":"u1","itemIds":["gid://shopify/Product/2"]}}`
	out := Evaluate(domain.EvaluationInput{
		PromotionCatalog: catalog,
		CartLines: []domain.CartLineInput{
			cartLine(11, 1, 5, "A", ""),
			cartLine(22, 2, 3, "B", attr),
		},
	})
	require.Len(t, out.Discounts, 1)
	assert.Equal(t, variantGID(22), out.Discounts[0].TargetVariantID)
	assert.Equal(t, 3, out.Discounts[0].EligibleQuantity)
	assert.Equal(t, float64(20), out.Discounts[0].ValueAmount)
}

func TestEvaluate_VolumeTierSelection(t *testing.T) {
	catalog := `[{"id":"v1","type":"volumeDiscount","title":"Volume","discountMessage":"Buy more",
		"target":{"kind":"product","values":["gid://shopify/Product/1"]},
		"volumeTiers":[{"minQuantity":1,"kind":"percentage","amount":0},
			{"minQuantity":5,"kind":"percentage","amount":10},
			{"minQuantity":10,"kind":"percentage","amount":20}]}]`
	out := Evaluate(domain.EvaluationInput{
		PromotionCatalog: catalog,
		CartLines:        []domain.CartLineInput{cartLine(11, 1, 7, "A", "")},
	})
	require.Len(t, out.Discounts, 1)
	assert.Equal(t, 5, out.Discounts[0].EligibleQuantity)
	assert.Equal(t, float64(10), out.Discounts[0].ValueAmount)
	assert.Equal(t, "A, Buy more", out.Discounts[0].Message)
}

func TestEvaluate_SplitVariantsUseTargetLineQuantity(t *testing.T) {
	volume := func(tiers string) string {
		return `[{"id":"v1","type":"volumeDiscount","title":"Volume","discountMessage":"Buy more",
			"target":{"kind":"product","values":["1"]},"volumeTiers":[` + tiers + `]}]`
	}
	// 商品 1 拆成两个变体：11 (1 件) 和 12 (6 件)，折扣只落在 11 上
	split := []domain.CartLineInput{
		cartLine(12, 1, 6, "A", ""),
		cartLine(11, 1, 1, "A", ""),
	}

	t.Run("volume tier uses lowest variant line", func(t *testing.T) {
		out := Evaluate(domain.EvaluationInput{
			PromotionCatalog: volume(`{"minQuantity":1,"kind":"percentage","amount":5},{"minQuantity":5,"kind":"percentage","amount":10}`),
			CartLines:        split,
		})
		want := domain.EvaluationOutput{
			Strategy: domain.StrategyAll,
			Discounts: []domain.DiscountInstruction{
				{TargetVariantID: variantGID(11), EligibleQuantity: 1, ValueKind: domain.DiscountPercentage, ValueAmount: 5, Message: "A, Buy more"},
			},
		}
		if diff := cmp.Diff(want, out); diff != "" {
			t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no tier reachable by target line", func(t *testing.T) {
		out := Evaluate(domain.EvaluationInput{
			PromotionCatalog: volume(`{"minQuantity":5,"kind":"percentage","amount":10}`),
			CartLines:        split,
		})
		assert.True(t, out.IsEmpty())
	})

	t.Run("bundle floor uses lowest variant line", func(t *testing.T) {
		attr := bundleAttr("p1", 1, 2)
		out := Evaluate(domain.EvaluationInput{
			PromotionCatalog: bundleCatalog,
			CartLines: []domain.CartLineInput{
				cartLine(12, 1, 6, "A", attr),
				cartLine(11, 1, 1, "A", attr),
				cartLine(22, 2, 4, "B", attr),
			},
		})
		require.Len(t, out.Discounts, 2)
		for _, d := range out.Discounts {
			assert.Equal(t, 1, d.EligibleQuantity, d.TargetVariantID)
		}
		assert.Equal(t, variantGID(11), out.Discounts[0].TargetVariantID)
	})
}

func TestSelectTier(t *testing.T) {
	tiers := []domain.VolumeTier{
		{MinQuantity: 10, Discount: domain.Discount{Kind: domain.DiscountPercentage}},
		{MinQuantity: 5, Discount: domain.Discount{Kind: domain.DiscountFixed}},
		{MinQuantity: 5, Discount: domain.Discount{Kind: domain.DiscountPercentage}},
	}
	_, ok := SelectTier(tiers, 4)
	assert.False(t, ok)

	tier, ok := SelectTier(tiers, 7)
	require.True(t, ok)
	assert.Equal(t, 5, tier.MinQuantity)
	assert.Equal(t, domain.DiscountFixed, tier.Kind, "ties keep the first tier in the list")

	tier, ok = SelectTier(tiers, 12)
	require.True(t, ok)
	assert.Equal(t, 10, tier.MinQuantity)
}

func TestEvaluate_FreeGift(t *testing.T) {
	catalog := `{"g":{"id":"g","type":"freeGift","title":"Gift","discountMessage":"Free!",
		"target":{"kind":"product","values":["gid://shopify/Product/1"]},
		"offerItems":{"kind":"product","values":["gid://shopify/Product/5"]}}}`
	out := Evaluate(domain.EvaluationInput{
		PromotionCatalog: catalog,
		CartLines:        []domain.CartLineInput{cartLine(55, 5, 1, "X", "")},
	})
	require.Len(t, out.Discounts, 1)
	assert.Equal(t, domain.StrategyAll, out.Strategy)
	assert.Equal(t, variantGID(55), out.Discounts[0].TargetVariantID)
	assert.Equal(t, float64(100), out.Discounts[0].ValueAmount)
	assert.Equal(t, 1, out.Discounts[0].EligibleQuantity)
}

func TestEvaluate_StackingIsAdditive(t *testing.T) {
	catalog := `[
		{"id":"p1","type":"bundle","discountMessage":"Bundle 15%",
		 "target":{"kind":"product","values":["1"]},"offerItems":{"kind":"product","values":["2"]},
		 "discount":{"kind":"percentage","amount":15}},
		{"id":"v1","type":"volumeDiscount","discountMessage":"Volume 10%",
		 "target":{"kind":"tag","values":["bulk"]},
		 "volumeTiers":[{"minQuantity":2,"kind":"percentage","amount":10}]}
	]`
	attrA := `{"frequentlyBoughtTogether":{"promotionId":"p1","itemIds":[1,2]},"tags":["BULK"]}`
	out := Evaluate(domain.EvaluationInput{
		PromotionCatalog: catalog,
		CartLines: []domain.CartLineInput{
			cartLine(11, 1, 3, "A", attrA),
			cartLine(22, 2, 3, "B", bundleAttr("p1", 1, 2)),
		},
	})
	require.Len(t, out.Discounts, 2)
	assert.Equal(t, float64(25), out.Discounts[0].ValueAmount)
	assert.Equal(t, "A, Bundle 15%, Volume 10%", out.Discounts[0].Message)
	assert.Equal(t, 2, out.Discounts[0].EligibleQuantity, "volume applier runs after bundles and overwrites")
	assert.Equal(t, float64(15), out.Discounts[1].ValueAmount)
}

func TestEvaluate_IdempotentAndOrderIndependent(t *testing.T) {
	attr := bundleAttr("p1", 1, 2)
	in := domain.EvaluationInput{
		PromotionCatalog: bundleCatalog,
		CartLines: []domain.CartLineInput{
			cartLine(22, 2, 2, "B", attr),
			cartLine(11, 1, 4, "A", attr),
		},
	}
	first, err := json.Marshal(Evaluate(in))
	require.NoError(t, err)
	second, err := json.Marshal(Evaluate(in))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	in.CartLines[0], in.CartLines[1] = in.CartLines[1], in.CartLines[0]
	reordered, err := json.Marshal(Evaluate(in))
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(reordered))
}

type stubRules struct {
	allow map[string]bool
	err   error
	facts []domain.Fact
}

func (s *stubRules) Evaluate(_ string, fact domain.Fact) (bool, error) {
	s.facts = append(s.facts, fact)
	if s.err != nil {
		return false, s.err
	}
	return s.allow[fact.PromotionID], nil
}

func TestEvaluate_ConditionGating(t *testing.T) {
	catalog := `[{"id":"g","type":"freeGift","condition":"fact.totalQuantity >= 2",
		"target":{"kind":"product","values":["1"]},"offerItems":{"kind":"product","values":["5"]}}]`
	in := domain.EvaluationInput{
		PromotionCatalog: catalog,
		CartLines:        []domain.CartLineInput{cartLine(55, 5, 1, "X", "")},
	}

	assert.False(t, Evaluate(in).IsEmpty(), "conditions are ignored without a rule engine")

	deny := &stubRules{allow: map[string]bool{}}
	assert.True(t, Evaluate(in, WithRuleEngine(deny)).IsEmpty())
	require.Len(t, deny.facts, 1)
	assert.Equal(t, 1, deny.facts[0].TotalQuantity)
	assert.Equal(t, "g", deny.facts[0].PromotionID)

	allow := &stubRules{allow: map[string]bool{"g": true}}
	assert.False(t, Evaluate(in, WithRuleEngine(allow)).IsEmpty())

	broken := &stubRules{err: errors.New("boom")}
	assert.True(t, Evaluate(in, WithRuleEngine(broken)).IsEmpty())
}

type panickingRules struct{}

func (panickingRules) Evaluate(string, domain.Fact) (bool, error) { panic("rule engine exploded") }

func TestEvaluate_RecoversFromPanics(t *testing.T) {
	catalog := `[{"id":"g","type":"freeGift","condition":"true",
		"target":{"kind":"product","values":["1"]},"offerItems":{"kind":"product","values":["5"]}}]`
	out := Evaluate(domain.EvaluationInput{
		PromotionCatalog: catalog,
		CartLines:        []domain.CartLineInput{cartLine(55, 5, 1, "X", "")},
	}, WithRuleEngine(panickingRules{}))
	assert.Equal(t, domain.EmptyResult(), out)
}

func TestReduce_ZeroValueIsNotEmpty(t *testing.T) {
	out := Reduce([]*domain.LineItemDiscount{
		{VariantResourceID: variantGID(1), ProductTitle: "A", Quantity: 1, Discounts: []domain.AppliedDiscount{{Message: "nothing"}}},
		{VariantResourceID: variantGID(2), ProductTitle: "B", Quantity: 1},
	})
	require.Len(t, out.Discounts, 1)
	assert.Equal(t, domain.StrategyAll, out.Strategy)
	assert.Equal(t, float64(0), out.Discounts[0].ValueAmount)
	assert.Equal(t, "A, nothing", out.Discounts[0].Message)
}
