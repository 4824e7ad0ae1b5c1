package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"upsell/internal/service/promotion/application"
	"upsell/internal/service/promotion/domain"
	"upsell/internal/service/promotion/infrastructure"
)

const catalog = `[{"id":"p1","type":"volumeDiscount","title":"Buy more","discountMessage":"Tier",` +
	`"target":{"kind":"product","values":["gid://shopify/Product/1"]},` +
	`"volumeTiers":[{"minQuantity":2,"kind":"percentage","amount":5},{"minQuantity":5,"kind":"percentage","amount":10}]}]`

func newTestMux(t *testing.T) (*http.ServeMux, *infrastructure.MemoryCatalogRepository) {
	t.Helper()
	repo := infrastructure.NewMemoryCatalogRepository()
	require.NoError(t, repo.SaveCatalog(context.Background(), "shop-1", catalog))
	svc := application.NewPromotionService(repo, infrastructure.NewLocalLocker(), noop.NewTracerProvider().Tracer("test"))
	mux := http.NewServeMux()
	NewPromotionHandler(svc).RegisterRoutes(mux)
	return mux, repo
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleEvaluate(t *testing.T) {
	mux, _ := newTestMux(t)

	body := `{"shopId":"shop-1","cartLines":[{"merchandiseKind":"ProductVariant",` +
		`"variantResourceId":"gid://shopify/ProductVariant/11","productResourceId":"gid://shopify/Product/1",` +
		`"productTitle":"Shirt","quantity":6}]}`
	rec := do(mux, http.MethodPost, "/evaluate", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out domain.EvaluationOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, domain.StrategyAll, out.Strategy)
	require.Len(t, out.Discounts, 1)
	assert.Equal(t, 5, out.Discounts[0].EligibleQuantity)
	assert.Equal(t, 10.0, out.Discounts[0].ValueAmount)

	// 目录内容有问题也必须给出应答
	rec = do(mux, http.MethodPost, "/evaluate", `{"promotionCatalogBlob":"{not json","cartLines":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"strategy":"FIRST","discounts":[]}`, rec.Body.String())
}

func TestHandlerErrorMapping(t *testing.T) {
	mux, _ := newTestMux(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"bad body", http.MethodPost, "/evaluate", `{`, http.StatusBadRequest},
		{"missing shop", http.MethodPost, "/evaluate", `{"cartLines":[]}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/evaluate", ``, http.StatusMethodNotAllowed},
		{"unknown promotion", http.MethodGet, "/promotions/get?shop_id=shop-1&id=nope", ``, http.StatusNotFound},
		{"invalid promotion", http.MethodPost, "/promotions/upsert", `{"shopId":"shop-1","promotion":{"id":"x","type":"bundle"}}`, http.StatusBadRequest},
		{"delete unknown", http.MethodPost, "/promotions/delete", `{"shopId":"shop-1","id":"nope"}`, http.StatusNotFound},
		{"trigger without product", http.MethodPost, "/trigger", `{"shopId":"shop-1"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusCode(domain.ErrLockTimeout))
	assert.Equal(t, http.StatusNotFound, statusCode(domain.ErrCatalogNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusCode(context.Canceled))
}

func TestPromotionLifecycle(t *testing.T) {
	mux, repo := newTestMux(t)

	upsert := `{"shopId":"shop-1","promotion":{"id":"new","type":"freeGift","title":"Gift",` +
		`"target":{"kind":"tag","values":["summer"]},"offerItems":{"kind":"product","values":["3"]}}}`
	rec := do(mux, http.MethodPost, "/promotions/upsert", upsert)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved domain.Promotion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.NotEqual(t, "new", saved.ID)
	assert.NotEmpty(t, saved.ID)

	rec = do(mux, http.MethodGet, "/promotions?shop_id=shop-1", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	var list application.ListPromotionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Promotions, 2)
	assert.Equal(t, saved.ID, list.Promotions[1].ID)

	rec = do(mux, http.MethodGet, "/promotions/get?shop_id=shop-1&id="+saved.ID, ``)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(mux, http.MethodPost, "/promotions/delete", `{"shopId":"shop-1","id":"`+saved.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	blob, err := repo.FindCatalog(context.Background(), "shop-1")
	require.NoError(t, err)
	assert.NotContains(t, blob, saved.ID)
}

func TestHandleTrigger(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(mux, http.MethodPost, "/trigger", `{"shopId":"shop-1","product":{"id":"gid://shopify/Product/1","tags":["Summer"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp application.TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"p1"}, resp.Triggered)
	assert.Contains(t, resp.Attribute, `"tags":["summer"]`)
}
