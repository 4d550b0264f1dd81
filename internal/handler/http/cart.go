package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/internal/service"
	"github.com/angiebeauty/storefront/pkg/httputil"
	"github.com/angiebeauty/storefront/pkg/middleware"
)

// streamHeartbeat keeps idle SSE connections open through proxies.
const streamHeartbeat = 25 * time.Second

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	sessions *service.CartSessions
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(sessions *service.CartSessions, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
type AddItemRequest struct {
	ID            string            `json:"id" validate:"required,max=100"`
	Type          string            `json:"type" validate:"required,oneof=product service"`
	Name          string            `json:"name" validate:"required,max=255"`
	ImageURL      string            `json:"image_url" validate:"omitempty,url"`
	Price         int64             `json:"price" validate:"gte=0,lte=1000000000"`
	OriginalPrice int64             `json:"original_price" validate:"gte=0,lte=1000000000"`
	Quantity      int               `json:"quantity" validate:"required,min=1,lte=1000"`
	MaxQuantity   int               `json:"max_quantity" validate:"required,min=1,lte=1000"`
	Variations    map[string]string `json:"variations,omitempty" validate:"max=10"`
}

// UpdateQuantityRequest is the JSON request body for updating an item's quantity.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// SelectShippingRequest is the JSON request body for choosing a shipping option.
type SelectShippingRequest struct {
	OptionID string `json:"option_id" validate:"required"`
}

// ApplyPromoRequest is the JSON request body for applying a promo code.
type ApplyPromoRequest struct {
	Code string `json:"code" validate:"required,max=50"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, store.Current())
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	store, ok := h.open(w, r)
	if !ok {
		return
	}

	cart, err := store.AddItem(r.Context(), domain.CartItem{
		ID:            req.ID,
		Type:          req.Type,
		Name:          req.Name,
		ImageURL:      req.ImageURL,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Quantity:      req.Quantity,
		MaxQuantity:   req.MaxQuantity,
		Variations:    req.Variations,
	})
	h.respond(w, r, cart, err)
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{itemId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	cart, err := store.UpdateQuantity(r.Context(), chi.URLParam(r, "itemId"), *req.Quantity)
	h.respond(w, r, cart, err)
}

// RemoveItem handles DELETE /api/v1/cart/items/{itemId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	cart, err := store.RemoveItem(r.Context(), chi.URLParam(r, "itemId"))
	h.respond(w, r, cart, err)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	cart, err := store.Clear(r.Context())
	h.respond(w, r, cart, err)
}

// SelectShipping handles PUT /api/v1/cart/shipping
func (h *CartHandler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	var req SelectShippingRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	cart, err := store.SelectShipping(r.Context(), req.OptionID)
	h.respond(w, r, cart, err)
}

// ApplyPromoCode handles POST /api/v1/cart/promo
func (h *CartHandler) ApplyPromoCode(w http.ResponseWriter, r *http.Request) {
	var req ApplyPromoRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	cart, err := store.ApplyPromoCode(r.Context(), req.Code)
	h.respond(w, r, cart, err)
}

// RemovePromoCode handles DELETE /api/v1/cart/promo
func (h *CartHandler) RemovePromoCode(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	cart, err := store.RemovePromoCode(r.Context())
	h.respond(w, r, cart, err)
}

// ListPromoCodes handles GET /api/v1/promo-codes
func (h *CartHandler) ListPromoCodes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, h.sessions.Promos().Active())
}

// PreviewPromoCode handles GET /api/v1/promo-codes/{code}
func (h *CartHandler) PreviewPromoCode(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	preview, err := store.PreviewPromoCode(chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, preview)
}

// CloseSession handles DELETE /api/v1/cart/session. The stored cart is kept.
func (h *CartHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close(middleware.OwnerFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /api/v1/cart/stream. It sends the current cart and
// every later state as server-sent events until the client disconnects or
// the cart session closes.
func (h *CartHandler) Stream(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(r.Context(), "cart stream cannot flush", slog.String("error", err.Error()))
		return
	}

	updates, cancel := store.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case cart, ok := <-updates:
			if !ok {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			data, err := json.Marshal(cart)
			if err != nil {
				h.logger.ErrorContext(r.Context(), "failed to encode cart event", slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: cart\ndata: %s\n\n", cart.Version, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *CartHandler) open(w http.ResponseWriter, r *http.Request) (*service.CartStore, bool) {
	store, err := h.sessions.Open(r.Context(), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil, false
	}
	return store, true
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, cart *domain.Cart, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, cart)
}
