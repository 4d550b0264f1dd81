package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/internal/service"
	"github.com/angiebeauty/storefront/pkg/httputil"
	"github.com/angiebeauty/storefront/pkg/logger"
	"github.com/angiebeauty/storefront/pkg/middleware"
)

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// JumpRequest is the JSON request body for moving to a step directly.
type JumpRequest struct {
	Step *domain.Step `json:"step" validate:"required"`
}

// CheckoutResponse is a session together with its step overview.
type CheckoutResponse struct {
	*domain.CheckoutSession
	Steps []domain.CheckoutStep `json:"steps"`
}

// PaymentIntentResponse carries the client secret used to confirm payment.
type PaymentIntentResponse struct {
	PaymentIntentID string            `json:"payment_intent_id"`
	ClientSecret    string            `json:"client_secret"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Checkout        *CheckoutResponse `json:"checkout"`
}

func newCheckoutResponse(s *domain.CheckoutSession) *CheckoutResponse {
	return &CheckoutResponse{CheckoutSession: s, Steps: s.Steps()}
}

// StartCheckout handles POST /api/v1/checkout
func (h *CheckoutHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.service.StartCheckout(ctx, middleware.OwnerFromContext(ctx), middleware.UserIDFromContext(ctx))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: newCheckoutResponse(session)})
}

// GetActiveCheckout handles GET /api/v1/checkout. It returns the owner's
// session that has not placed an order yet.
func (h *CheckoutHandler) GetActiveCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.service.Active(ctx, middleware.OwnerFromContext(ctx))
	h.respond(w, r, session, err)
}

// GetCheckout handles GET /api/v1/checkout/{id}
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	r, id, ok := checkoutID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Get(r.Context(), middleware.OwnerFromContext(r.Context()), id)
	h.respond(w, r, session, err)
}

// SetContact handles PUT /api/v1/checkout/{id}/contact
func (h *CheckoutHandler) SetContact(w http.ResponseWriter, r *http.Request) {
	r, id, ok := checkoutID(w, r)
	if !ok {
		return
	}
	var req domain.ContactInfo
	if !decodeAndValidate(w, r, &req) {
		return
	}
	session, err := h.service.SetContact(r.Context(), middleware.OwnerFromContext(r.Context()), id, req)
	h.respond(w, r, session, err)
}

// SetAddress handles PUT /api/v1/checkout/{id}/address
func (h *CheckoutHandler) SetAddress(w http.ResponseWriter, r *http.Request) {
	r, id, ok := checkoutID(w, r)
	if !ok {
		return
	}
	var req service.AddressInput
	if !decodeAndValidate(w, r, &req) {
		return
	}
	session, err := h.service.SetAddress(r.Context(), middleware.OwnerFromContext(r.Context()), id, req)
	h.respond(w, r, session, err)
}

// SetPayment handles PUT /api/v1/checkout/{id}/payment
func (h *CheckoutHandler) SetPayment(w http.ResponseWriter, r *http.Request) {
	r, id, ok := checkoutID(w, r)
	if !ok {
		return
	}
	var req service.PaymentInput
	if !decodeAndValidate(w, r, &req) {
		return
	}
	session, err := h.service.SetPayment(r.Context(), middleware.OwnerFromContext(r.Context()), id, req)
	h.respond(w, r, session, err)
}

// CreatePaymentIntent handles POST /api/v1/checkout/{id}/payment-intent
func (h *CheckoutHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	r, id, ok := checkoutID(w, r)
	if !ok {
		return
	}
	intent, session, err := h.service.CreatePaymentIntent(r.Context(), middleware.OwnerFromContext(r.Context()), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, PaymentIntentResponse{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Checkout:        newCheckoutResponse(session),
	})
}

// Advance handles POST /api/v1/checkout/{id}/advance
func (h *CheckoutHandler) Advance(w http.ResponseWriter, r *http.Request) {
	r, id, ok := checkoutID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	session, err := h.service.Advance(ctx, middleware.OwnerFromContext(ctx), middleware.UserIDFromContext(ctx), id)
	h.respond(w, r, session, err)
}

// GoBack handles POST /api/v1/checkout/{id}/back
func (h *CheckoutHandler) GoBack(w http.ResponseWriter, r *http.Request) {
	r, id, ok := checkoutID(w, r)
	if !ok {
		return
	}
	session, err := h.service.GoBack(r.Context(), middleware.OwnerFromContext(r.Context()), id)
	h.respond(w, r, session, err)
}

// JumpTo handles POST /api/v1/checkout/{id}/jump
func (h *CheckoutHandler) JumpTo(w http.ResponseWriter, r *http.Request) {
	r, id, ok := checkoutID(w, r)
	if !ok {
		return
	}
	var req JumpRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	session, err := h.service.JumpTo(r.Context(), middleware.OwnerFromContext(r.Context()), id, *req.Step)
	h.respond(w, r, session, err)
}

// Submit handles POST /api/v1/checkout/{id}/submit
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r, id, ok := checkoutID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Submit(r.Context(), middleware.OwnerFromContext(r.Context()), id)
	h.respond(w, r, session, err)
}

// checkoutID parses the session id from the path and tags the request
// logger with it.
func checkoutID(w http.ResponseWriter, r *http.Request) (*http.Request, string, bool) {
	parsed, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return r, "", false
	}
	id := parsed.String()
	ctx := logger.WithCheckoutID(r.Context(), id)
	ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("checkout_id", id)))
	return r.WithContext(ctx), id, true
}

func (h *CheckoutHandler) respond(w http.ResponseWriter, r *http.Request, session *domain.CheckoutSession, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, newCheckoutResponse(session))
}
