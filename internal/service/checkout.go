package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/internal/repository"
	"github.com/angiebeauty/storefront/internal/shipping"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
	"github.com/angiebeauty/storefront/pkg/validator"
)

// PaymentInput is the payment step form. Card is required for card payments
// and is only used to check validity.
type PaymentInput struct {
	Method          string              `json:"method" validate:"required,oneof=card paypal cash_on_delivery"`
	Card            *domain.CardDetails `json:"card,omitempty" validate:"-"`
	PaymentIntentID string              `json:"payment_intent_id,omitempty" validate:"max=255"`
}

// AddressInput is the shipping step form.
type AddressInput struct {
	Address          domain.Address `json:"address"`
	ShippingMethodID string         `json:"shipping_method_id" validate:"required"`
}

// CheckoutService drives checkout sessions through their steps.
type CheckoutService struct {
	repo      repository.CheckoutRepository
	carts     *CartSessions
	shipping  *shipping.Catalog
	payments  PaymentIntentCreator
	submitter *OrderSubmitter
	logger    *slog.Logger
	now       func() time.Time
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	repo repository.CheckoutRepository,
	carts *CartSessions,
	payments PaymentIntentCreator,
	submitter *OrderSubmitter,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		repo:      repo,
		carts:     carts,
		shipping:  carts.Shipping(),
		payments:  payments,
		submitter: submitter,
		logger:    logger,
		now:       time.Now,
	}
}

// StartCheckout opens a fresh session for the owner's cart. The cart must
// hold at least one item.
func (s *CheckoutService) StartCheckout(ctx context.Context, owner, userID string) (*domain.CheckoutSession, error) {
	store, err := s.carts.Open(ctx, owner)
	if err != nil {
		return nil, err
	}
	cart := store.Current()
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart()
	}

	session := domain.NewCheckoutSession(uuid.New().String(), owner, userID)
	session.ShippingMethodID = cart.ShippingOptionID

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	s.logger.InfoContext(ctx, "checkout started",
		slog.String("checkout_id", session.ID),
		slog.String("owner", owner),
		slog.String("cart_id", cart.ID),
	)
	return session, nil
}

// Get returns the owner's session with the given id.
func (s *CheckoutService) Get(ctx context.Context, owner, id string) (*domain.CheckoutSession, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Owner != owner {
		return nil, apperrors.NotFound("checkout session", id)
	}
	return session, nil
}

// Active returns the owner's latest session that has not placed an order.
func (s *CheckoutService) Active(ctx context.Context, owner string) (*domain.CheckoutSession, error) {
	return s.repo.GetActiveByOwner(ctx, owner)
}

// SetContact stores the customer info form.
func (s *CheckoutService) SetContact(ctx context.Context, owner, id string, contact domain.ContactInfo) (*domain.CheckoutSession, error) {
	if err := validator.Validate(contact); err != nil {
		return nil, err
	}
	return s.modify(ctx, owner, id, func(session *domain.CheckoutSession) error {
		session.Contact = &contact
		return nil
	})
}

// SetAddress stores the shipping address and method. The method is also
// selected on the cart so its totals include the shipping cost. When the
// session cannot be saved, the cart gets its previous selection back.
func (s *CheckoutService) SetAddress(ctx context.Context, owner, id string, input AddressInput) (*domain.CheckoutSession, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}
	if _, ok := s.shipping.Find(input.ShippingMethodID); !ok {
		return nil, domain.ErrInvalidShippingOption(input.ShippingMethodID)
	}

	store, err := s.carts.Open(ctx, owner)
	if err != nil {
		return nil, err
	}
	previous := store.Current().ShippingOptionID
	selected := false

	session, err := s.modify(ctx, owner, id, func(session *domain.CheckoutSession) error {
		if _, err := store.SelectShipping(ctx, input.ShippingMethodID); err != nil {
			return err
		}
		selected = true
		address := input.Address
		session.ShippingAddress = &address
		session.ShippingMethodID = input.ShippingMethodID
		return nil
	})
	if err != nil && selected && previous != input.ShippingMethodID {
		if rerr := store.restoreShipping(context.WithoutCancel(ctx), previous); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to restore cart shipping selection",
				slog.String("checkout_id", id),
				slog.String("owner", owner),
				slog.String("error", rerr.Error()),
			)
		}
	}
	return session, err
}

// SetPayment stores the payment method. Card details are checked and only
// their validity and last four digits are kept.
func (s *CheckoutService) SetPayment(ctx context.Context, owner, id string, input PaymentInput) (*domain.CheckoutSession, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	payment := domain.PaymentInfo{
		Method:          input.Method,
		PaymentIntentID: input.PaymentIntentID,
	}
	if payment.RequiresCard() {
		if input.Card == nil {
			return nil, apperrors.InvalidInput("card details are required for card payments")
		}
		if err := validator.Validate(input.Card); err != nil {
			return nil, err
		}
		if input.Card.Expired(s.now()) {
			return nil, apperrors.InvalidInput("card has expired")
		}
		payment.CardValid = true
		digits := strings.ReplaceAll(input.Card.Number, " ", "")
		payment.CardLast4 = digits[len(digits)-4:]
	}

	return s.modify(ctx, owner, id, func(session *domain.CheckoutSession) error {
		if payment.PaymentIntentID == "" && session.Payment != nil {
			payment.PaymentIntentID = session.Payment.PaymentIntentID
		}
		session.Payment = &payment
		return nil
	})
}

// CreatePaymentIntent opens a payment intent for the current cart total and
// records its id on the session. Repeating the call for an unchanged total
// returns the same intent.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, owner, id string) (*domain.PaymentIntent, *domain.CheckoutSession, error) {
	session, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, nil, err
	}
	if session.IsCompleted() {
		return nil, nil, domain.ErrCheckoutCompleted(id)
	}

	store, err := s.carts.Open(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	cart := store.Current()
	if cart.IsEmpty() {
		return nil, nil, domain.ErrEmptyCart()
	}

	key := fmt.Sprintf("%s:%d", session.ID, cart.Total)
	intent, err := s.payments.CreatePaymentIntent(ctx, cart.Total, cart.Currency, "Order for checkout "+session.ID, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create payment intent",
			slog.String("checkout_id", session.ID),
			slog.String("error", err.Error()),
		)
		return nil, nil, err
	}

	updated, err := s.modify(ctx, owner, id, func(session *domain.CheckoutSession) error {
		if session.Payment == nil {
			session.Payment = &domain.PaymentInfo{Method: domain.PaymentMethodCard}
		}
		session.Payment.PaymentIntentID = intent.ID
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return intent, updated, nil
}

// Advance completes the current step and moves on. Leaving the payment step
// requires a signed-in user and reaching confirmation submits the order.
func (s *CheckoutService) Advance(ctx context.Context, owner, userID, id string) (*domain.CheckoutSession, error) {
	session, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && session.UserID == "" {
		session.UserID = userID
	}
	if session.CurrentStep == domain.StepPayment && session.UserID == "" {
		return nil, domain.ErrSignInRequired()
	}
	if err := session.Advance(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update checkout session: %w", err)
	}

	if session.AwaitingSubmission() {
		return s.submit(ctx, session)
	}
	return session, nil
}

// GoBack moves the session to the previous step.
func (s *CheckoutService) GoBack(ctx context.Context, owner, id string) (*domain.CheckoutSession, error) {
	return s.modify(ctx, owner, id, func(session *domain.CheckoutSession) error {
		return session.GoBack()
	})
}

// JumpTo moves the session directly to step. Jumping onto confirmation
// with the order still unplaced submits it.
func (s *CheckoutService) JumpTo(ctx context.Context, owner, id string, step domain.Step) (*domain.CheckoutSession, error) {
	session, err := s.modify(ctx, owner, id, func(session *domain.CheckoutSession) error {
		return session.JumpTo(step)
	})
	if err != nil {
		return nil, err
	}
	if step == domain.StepConfirmation && session.AwaitingSubmission() {
		return s.submit(ctx, session)
	}
	return session, nil
}

// Submit retries a failed order submission.
func (s *CheckoutService) Submit(ctx context.Context, owner, id string) (*domain.CheckoutSession, error) {
	session, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if !session.AwaitingSubmission() {
		return nil, domain.ErrInvalidStep("checkout is not on the confirmation step")
	}
	return s.submit(ctx, session)
}

// submit places the order and records the outcome. On failure the session
// stays on confirmation and the returned error is retryable when the cause
// was transient.
func (s *CheckoutService) submit(ctx context.Context, session *domain.CheckoutSession) (*domain.CheckoutSession, error) {
	store, err := s.carts.Open(ctx, session.Owner)
	if err != nil {
		return nil, err
	}

	result, submitErr := s.submitter.Submit(ctx, store, session)
	if submitErr != nil {
		session.MarkSubmissionFailed(failureReason(submitErr))
	} else {
		session.MarkSubmitted(result.OrderID, result.Status)
	}

	if err := s.repo.Update(context.WithoutCancel(ctx), session); err != nil {
		s.logger.ErrorContext(ctx, "failed to record submission outcome",
			slog.String("checkout_id", session.ID),
			slog.String("order_id", session.OrderID),
			slog.String("error", err.Error()),
		)
		if submitErr == nil {
			return nil, apperrors.ServiceUnavailable("order was placed but checkout could not be saved, please retry")
		}
	}
	if submitErr != nil {
		return nil, submitErr
	}
	return session, nil
}

// modify loads the session, applies fn and saves it. Completed sessions are
// read-only.
func (s *CheckoutService) modify(ctx context.Context, owner, id string, fn func(*domain.CheckoutSession) error) (*domain.CheckoutSession, error) {
	session, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	session.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update checkout session: %w", err)
	}
	return session, nil
}

func failureReason(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func (s *CheckoutService) load(ctx context.Context, owner, id string) (*domain.CheckoutSession, error) {
	session, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if session.IsCompleted() {
		return nil, domain.ErrCheckoutCompleted(id)
	}
	return session, nil
}
