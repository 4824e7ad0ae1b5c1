package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upsell/internal/service/promotion/domain"
)

func TestCELEngine(t *testing.T) {
	engine, err := NewCELEngine()
	require.NoError(t, err)

	fact := domain.Fact{
		PromotionID:   "p1",
		TotalQuantity: 3,
		Lines: []domain.FactLine{
			{VariantID: 11, ProductID: 1, Quantity: 2, Collections: []string{"shoes"}, Tags: []string{"vip"}},
			{VariantID: 22, ProductID: 2, Quantity: 1, Collections: []string{}, Tags: []string{}},
		},
	}

	tests := []struct {
		name    string
		rule    string
		want    bool
		wantErr bool
	}{
		{name: "total quantity", rule: "fact.totalQuantity >= 3", want: true},
		{name: "total quantity too low", rule: "fact.totalQuantity > 3", want: false},
		{name: "line tag", rule: `fact.lines.exists(l, "vip" in l.tags)`, want: true},
		{name: "collection and quantity", rule: `fact.lines.exists(l, "shoes" in l.collections && l.quantity >= 2)`, want: true},
		{name: "promotion id", rule: `fact.promotionId == "p2"`, want: false},
		{name: "syntax error", rule: "fact.totalQuantity >=", wantErr: true},
		{name: "not a bool", rule: "fact.totalQuantity + 1", wantErr: true},
		{name: "missing key", rule: "fact.nope == 1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(tt.rule, fact)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCELEngineCachesPrograms(t *testing.T) {
	engine, err := NewCELEngine()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		ok, err := engine.Evaluate("size(fact.lines) == 0", domain.Fact{})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	n := 0
	engine.programs.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, 1, n)
}
