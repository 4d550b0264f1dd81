package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angiebeauty/storefront/pkg/health"
	"github.com/angiebeauty/storefront/pkg/middleware"
)

const serviceName = "storefront"

// RouterConfig holds the edge settings of the router.
type RouterConfig struct {
	PprofCIDRs  []string
	CORSOrigins []string
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	carts *CartHandler,
	checkout *CheckoutHandler,
	prefs *PreferenceHandler,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.CacheControl(5*time.Minute)).Get("/shipping-options", prefs.ListShippingOptions)
		r.With(middleware.CacheControl(5*time.Minute)).Get("/promo-codes", carts.ListPromoCodes)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Owner())
			r.Use(middleware.RequestLogger(logger))
			r.Use(middleware.NoStore)

			// Streams outlive the request timeout.
			r.Get("/cart/stream", carts.Stream)

			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(30 * time.Second))
				r.Use(ContentTypeJSON)

				r.Get("/cart", carts.GetCart)
				r.Delete("/cart", carts.ClearCart)
				r.Post("/cart/items", carts.AddItem)
				r.Put("/cart/items/{itemId}", carts.UpdateItemQuantity)
				r.Delete("/cart/items/{itemId}", carts.RemoveItem)
				r.Put("/cart/shipping", carts.SelectShipping)
				r.Post("/cart/promo", carts.ApplyPromoCode)
				r.Delete("/cart/promo", carts.RemovePromoCode)
				r.Delete("/cart/session", carts.CloseSession)

				r.Get("/promo-codes/{code}", carts.PreviewPromoCode)

				r.Post("/checkout", checkout.StartCheckout)
				r.Get("/checkout", checkout.GetActiveCheckout)
				r.Get("/checkout/{id}", checkout.GetCheckout)
				r.Put("/checkout/{id}/contact", checkout.SetContact)
				r.Put("/checkout/{id}/address", checkout.SetAddress)
				r.Put("/checkout/{id}/payment", checkout.SetPayment)
				r.Post("/checkout/{id}/payment-intent", checkout.CreatePaymentIntent)
				r.Post("/checkout/{id}/advance", checkout.Advance)
				r.Post("/checkout/{id}/back", checkout.GoBack)
				r.Post("/checkout/{id}/jump", checkout.JumpTo)
				r.Post("/checkout/{id}/submit", checkout.Submit)

				r.Get("/wishlist", prefs.ListWishlist)
				r.Post("/wishlist", prefs.AddToWishlist)
				r.Post("/wishlist/{productId}/toggle", prefs.ToggleWishlist)
				r.Delete("/wishlist/{productId}", prefs.RemoveFromWishlist)

				r.Get("/preferences/locale", prefs.GetLocale)
				r.Put("/preferences/locale", prefs.SetLocale)
			})
		})
	})

	return r
}
