package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angiebeauty/storefront/internal/service"
	"github.com/angiebeauty/storefront/internal/shipping"
	"github.com/angiebeauty/storefront/pkg/httputil"
	"github.com/angiebeauty/storefront/pkg/middleware"
)

// PreferenceHandler serves the wishlist, locale and shipping catalog.
type PreferenceHandler struct {
	wishlist *service.WishlistService
	locales  *service.LocaleService
	shipping *shipping.Catalog
	logger   *slog.Logger
}

// NewPreferenceHandler creates a new preference HTTP handler.
func NewPreferenceHandler(
	wishlist *service.WishlistService,
	locales *service.LocaleService,
	shippingCatalog *shipping.Catalog,
	logger *slog.Logger,
) *PreferenceHandler {
	return &PreferenceHandler{
		wishlist: wishlist,
		locales:  locales,
		shipping: shippingCatalog,
		logger:   logger,
	}
}

// WishlistRequest is the JSON request body for saving a product.
type WishlistRequest struct {
	ProductID string `json:"product_id" validate:"required,max=100"`
}

// LocaleRequest is the JSON request body for changing the locale.
type LocaleRequest struct {
	Locale string `json:"locale" validate:"required,max=16"`
}

// LocaleResponse reports the resolved locale.
type LocaleResponse struct {
	Locale    string   `json:"locale"`
	Supported []string `json:"supported"`
}

// WishlistResponse lists saved product ids.
type WishlistResponse struct {
	ProductIDs []string `json:"product_ids"`
}

// ListShippingOptions handles GET /api/v1/shipping-options
func (h *PreferenceHandler) ListShippingOptions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, h.shipping.List())
}

// ListWishlist handles GET /api/v1/wishlist
func (h *PreferenceHandler) ListWishlist(w http.ResponseWriter, r *http.Request) {
	ids, err := h.wishlist.List(r.Context(), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, WishlistResponse{ProductIDs: ids})
}

// AddToWishlist handles POST /api/v1/wishlist
func (h *PreferenceHandler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	var req WishlistRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	owner := middleware.OwnerFromContext(r.Context())
	if err := h.wishlist.Add(r.Context(), owner, req.ProductID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.ListWishlist(w, r)
}

// ToggleWishlist handles POST /api/v1/wishlist/{productId}/toggle
func (h *PreferenceHandler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	saved, err := h.wishlist.Toggle(r.Context(), middleware.OwnerFromContext(r.Context()), chi.URLParam(r, "productId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, map[string]bool{"saved": saved})
}

// RemoveFromWishlist handles DELETE /api/v1/wishlist/{productId}
func (h *PreferenceHandler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.wishlist.Remove(r.Context(), middleware.OwnerFromContext(r.Context()), chi.URLParam(r, "productId")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLocale handles GET /api/v1/preferences/locale
func (h *PreferenceHandler) GetLocale(w http.ResponseWriter, r *http.Request) {
	locale, err := h.locales.Get(r.Context(), middleware.OwnerFromContext(r.Context()), r.Header.Get("Accept-Language"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, LocaleResponse{Locale: locale, Supported: h.locales.Supported()})
}

// SetLocale handles PUT /api/v1/preferences/locale
func (h *PreferenceHandler) SetLocale(w http.ResponseWriter, r *http.Request) {
	var req LocaleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	locale, err := h.locales.Set(r.Context(), middleware.OwnerFromContext(r.Context()), req.Locale)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, LocaleResponse{Locale: locale, Supported: h.locales.Supported()})
}
