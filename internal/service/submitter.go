package service

import (
	"context"
	"log/slog"

	"github.com/angiebeauty/storefront/internal/domain"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

// OrderSubmitter turns a cart and a completed checkout into an order.
type OrderSubmitter struct {
	orders OrderCreator
	events OrderEventPublisher
	logger *slog.Logger
}

// NewOrderSubmitter creates an order submitter.
func NewOrderSubmitter(orders OrderCreator, events OrderEventPublisher, logger *slog.Logger) *OrderSubmitter {
	return &OrderSubmitter{orders: orders, events: events, logger: logger}
}

// Submit places an order for the product lines of the cart in store. The
// checkout id is the idempotency key, so a retried submission cannot create a
// second order. On success the cart is cleared; on failure it is kept.
//
// Once sent, the request is not recalled when ctx is cancelled; it runs to
// completion under the order client's own timeout.
func (s *OrderSubmitter) Submit(ctx context.Context, store *CartStore, session *domain.CheckoutSession) (*domain.OrderResult, error) {
	if session.UserID == "" {
		return nil, domain.ErrSignInRequired()
	}
	if session.ShippingAddress == nil {
		return nil, domain.ErrIncompleteInformation(domain.StepShipping)
	}

	var paymentIntentID string
	if session.Payment != nil {
		paymentIntentID = session.Payment.PaymentIntentID
	}

	cart := store.Current()
	req := domain.NewOrderRequest(cart, *session.ShippingAddress, session.ShippingMethodID, session.UserID, paymentIntentID)
	if req.IsEmpty() {
		return nil, domain.ErrEmptyCart()
	}

	sctx := context.WithoutCancel(ctx)
	result, err := s.orders.CreateOrder(sctx, req, session.ID)
	if err != nil {
		orderSubmissionsTotal.WithLabelValues(resultLabel(err)).Inc()
		s.logger.ErrorContext(ctx, "order submission failed",
			slog.String("checkout_id", session.ID),
			slog.String("owner", session.Owner),
			slog.Bool("retryable", apperrors.IsRetryable(err)),
			slog.String("error", err.Error()),
		)
		return nil, domain.ErrOrderSubmissionFailed(err)
	}
	orderSubmissionsTotal.WithLabelValues(resultLabel(nil)).Inc()

	if _, err := store.Clear(sctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear cart after order",
			slog.String("checkout_id", session.ID),
			slog.String("order_id", result.OrderID),
			slog.String("error", err.Error()),
		)
	}

	if s.events != nil {
		if err := s.events.PublishOrderSubmitted(sctx, session.ID, result.OrderID, req); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order submitted event",
				slog.String("checkout_id", session.ID),
				slog.String("order_id", result.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "order submitted",
		slog.String("checkout_id", session.ID),
		slog.String("order_id", result.OrderID),
		slog.String("owner", session.Owner),
		slog.Int64("total", req.Total()),
	)
	return result, nil
}
