package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"upsell/internal/pkg/logger"
	"upsell/internal/service/promotion/application"
	"upsell/internal/service/promotion/domain"
)

// PromotionHandler 封装了 promotion 服务的 HTTP 处理器
type PromotionHandler struct {
	service *application.PromotionService
}

// NewPromotionHandler 创建一个新的 HTTP 处理器实例
func NewPromotionHandler(service *application.PromotionService) *PromotionHandler {
	return &PromotionHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PromotionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/evaluate", post(h.handleEvaluate))
	mux.HandleFunc("/promotions", get(h.handleListPromotions))
	mux.HandleFunc("/promotions/get", get(h.handleGetPromotion))
	mux.HandleFunc("/promotions/upsert", post(h.handleUpsertPromotion))
	mux.HandleFunc("/promotions/delete", post(h.handleDeletePromotion))
	mux.HandleFunc("/trigger", post(h.handleTrigger))
}

func (h *PromotionHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req application.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	out, err := h.service.EvaluateCart(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PromotionHandler) handleListPromotions(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListPromotions(r.Context(), r.URL.Query().Get("shop_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PromotionHandler) handleGetPromotion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := h.service.GetPromotion(r.Context(), q.Get("shop_id"), q.Get("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PromotionHandler) handleUpsertPromotion(w http.ResponseWriter, r *http.Request) {
	var req application.UpsertPromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.service.UpsertPromotion(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PromotionHandler) handleDeletePromotion(w http.ResponseWriter, r *http.Request) {
	var req application.DeletePromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.DeletePromotion(r.Context(), &req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      req.ID,
	})
}

func (h *PromotionHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req application.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Trigger(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusCode 根据错误类型返回不同的 HTTP 状态码
func statusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrPromotionNotFound), errors.Is(err, domain.ErrCatalogNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPromotion), errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLockTimeout):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func post(fn http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodPost, fn)
}

func get(fn http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodGet, fn)
}

func method(m string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			w.Header().Set("Allow", m)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}
