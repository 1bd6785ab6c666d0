package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cmykmanya/shopai-sub000/cart"
	"github.com/cmykmanya/shopai-sub000/logging"
	"github.com/cmykmanya/shopai-sub000/promotion"
	"github.com/cmykmanya/shopai-sub000/service"
	"github.com/cmykmanya/shopai-sub000/session"
	"github.com/cmykmanya/shopai-sub000/store"
)

// Handler is the HTTP layer that talks to service.Service
type Handler struct {
	svc      service.ServiceInterface
	logger   *zap.Logger
	gatherer prometheus.Gatherer
}

type Option func(*Handler)

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithGatherer exposes g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// NewHandler returns a Handler instance
func NewHandler(s service.ServiceInterface, opts ...Option) *Handler {
	h := &Handler{svc: s}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrNop(h.logger)
	return h
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Products
	r.HandleFunc("/products", h.CreateProduct).Methods("POST")
	r.HandleFunc("/products/list", h.ListProducts).Methods("GET")
	r.HandleFunc("/products/stock", h.UpdateStock).Methods("POST")

	// Cart
	r.HandleFunc("/cart/add", h.AddToCart).Methods("POST")
	r.HandleFunc("/cart/update", h.UpdateCartItem).Methods("POST")
	r.HandleFunc("/cart/remove", h.RemoveFromCart).Methods("POST")
	r.HandleFunc("/cart/clear", h.ClearCart).Methods("POST")
	r.HandleFunc("/cart/list", h.ListCart).Methods("GET")
	r.HandleFunc("/cart/promotion", h.ApplyPromotion).Methods("POST")
	r.HandleFunc("/cart/promotion/remove", h.RemovePromotion).Methods("POST")

	// Checkout
	r.HandleFunc("/checkout/order", h.Checkout).Methods("POST")

	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// --- request / response shapes ---
type updateStockReq struct {
	ProductID string `json:"product_id"`
	NewStock  int    `json:"new_stock"`
}

type addCartReq struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

type lineReq struct {
	UserID   string `json:"user_id"`
	LineID   string `json:"line_id"`
	Quantity int    `json:"quantity,omitempty"` // update only
}

type userReq struct {
	UserID string `json:"user_id"`
}

type promotionReq struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

type promotionErrResp struct {
	Error string          `json:"error"`
	Cart  service.CartDTO `json:"cart"`
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUserRequired),
		errors.Is(err, service.ErrTitleRequired),
		errors.Is(err, service.ErrNegativePrice),
		errors.Is(err, service.ErrNegativeStock),
		errors.Is(err, cart.ErrProductRequired),
		errors.Is(err, cart.ErrQuantityPositive),
		errors.Is(err, cart.ErrNegativePrice),
		errors.Is(err, cart.ErrVariantMismatch),
		errors.Is(err, session.ErrKeyRequired):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrVariantUnavailable),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, promotion.ErrInvalidCode),
		errors.Is(err, promotion.ErrExpired),
		errors.Is(err, promotion.ErrNotYetActive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Unmapped errors are logged and
// hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, code, "internal error")
		return
	}
	writeErr(w, code, err.Error())
}

// --- Handler ---

// CreateProduct handles POST /products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.ProductInput
	if !decode(w, r, &req) {
		return
	}
	id, err := h.svc.CreateProduct(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ListProducts handles GET /products/list
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.ListProducts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// UpdateStock handles POST /products/stock
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	var req updateStockReq
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeErr(w, http.StatusBadRequest, "product_id required")
		return
	}
	if err := h.svc.UpdateStock(r.Context(), req.ProductID, req.NewStock); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AddToCart handles POST /cart/add
// body: { "user_id": "...", "product_id": "...", "size": "M", "color": "Red", "quantity": 2 }
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addCartReq
	if !decode(w, r, &req) {
		return
	}
	view, err := h.svc.AddToCart(r.Context(), req.UserID, service.AddItemInput{
		ProductID: req.ProductID,
		Size:      req.Size,
		Color:     req.Color,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateCartItem handles POST /cart/update
// body: { "user_id": "...", "line_id": "...", "quantity": 3 }; quantity 0 removes the line
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req lineReq
	if !decode(w, r, &req) {
		return
	}
	view, err := h.svc.UpdateCartItem(r.Context(), req.UserID, req.LineID, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RemoveFromCart handles POST /cart/remove
// body: { "user_id": "...", "line_id": "..." }
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req lineReq
	if !decode(w, r, &req) {
		return
	}
	view, err := h.svc.RemoveFromCart(r.Context(), req.UserID, req.LineID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ClearCart handles POST /cart/clear
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	var req userReq
	if !decode(w, r, &req) {
		return
	}
	view, err := h.svc.ClearCart(r.Context(), req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListCart handles GET /cart/list?user_id=...
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeErr(w, http.StatusBadRequest, "user_id required")
		return
	}
	view, err := h.svc.GetCart(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ApplyPromotion handles POST /cart/promotion
// body: { "user_id": "...", "code": "save10" }
func (h *Handler) ApplyPromotion(w http.ResponseWriter, r *http.Request) {
	var req promotionReq
	if !decode(w, r, &req) {
		return
	}
	view, err := h.svc.ApplyPromotion(r.Context(), req.UserID, req.Code)
	if err != nil {
		code := statusFor(err)
		if code != http.StatusUnprocessableEntity {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, code, promotionErrResp{Error: err.Error(), Cart: view})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RemovePromotion handles POST /cart/promotion/remove
func (h *Handler) RemovePromotion(w http.ResponseWriter, r *http.Request) {
	var req userReq
	if !decode(w, r, &req) {
		return
	}
	view, err := h.svc.RemovePromotion(r.Context(), req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Checkout handles POST /checkout/order
// body: { "user_id": "..." }
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req userReq
	if !decode(w, r, &req) {
		return
	}
	ord, err := h.svc.Checkout(r.Context(), req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ord)
}
