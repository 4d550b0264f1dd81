package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/internal/shipping"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
	"github.com/angiebeauty/storefront/pkg/validator"
)

type checkoutFixture struct {
	svc      *CheckoutService
	carts    *CartSessions
	cartRepo *mockCartRepository
	repo     *memoryCheckoutRepository
	orders   *mockOrderCreator
	payments *mockPaymentCreator
	events   *recordingPublisher
}

func newCheckoutFixture(t *testing.T, owner string, items ...domain.CartItem) *checkoutFixture {
	t.Helper()
	cartRepo := new(mockCartRepository)
	cartRepo.On("Get", mock.Anything, mock.Anything).Return(nil, apperrors.NotFound("cart", owner))
	cartRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	cartRepo.On("Delete", mock.Anything, owner).Return(nil)

	events := &recordingPublisher{}
	carts := newTestSessions(cartRepo, events)
	store, err := carts.Open(context.Background(), owner)
	require.NoError(t, err)
	for _, item := range items {
		_, err := store.AddItem(context.Background(), item)
		require.NoError(t, err)
	}

	f := &checkoutFixture{
		carts:    carts,
		cartRepo: cartRepo,
		repo:     newMemoryCheckoutRepository(),
		orders:   new(mockOrderCreator),
		payments: new(mockPaymentCreator),
		events:   events,
	}
	submitter := NewOrderSubmitter(f.orders, events, newTestLogger())
	f.svc = NewCheckoutService(f.repo, carts, f.payments, submitter, newTestLogger())
	return f
}

func validContact() domain.ContactInfo {
	return domain.ContactInfo{
		FirstName: "Ada",
		LastName:  "Byron",
		Email:     "ada@example.com",
		Phone:     "+14155550100",
	}
}

func validAddress() AddressInput {
	return AddressInput{
		Address: domain.Address{
			FullName:    "Ada Byron",
			AddressLine: "1 Market St",
			City:        "San Francisco",
			State:       "CA",
			PostalCode:  "94105",
			Country:     "US",
		},
		ShippingMethodID: shipping.OptionStandard,
	}
}

func validCard() PaymentInput {
	return PaymentInput{
		Method: domain.PaymentMethodCard,
		Card: &domain.CardDetails{
			HolderName: "Ada Byron",
			Number:     "4242424242424242",
			ExpMonth:   12,
			ExpYear:    2099,
			CVC:        "123",
		},
	}
}

// toPayment fills the first two steps and leaves the session on Payment.
func (f *checkoutFixture) toPayment(t *testing.T, owner, userID string) *domain.CheckoutSession {
	t.Helper()
	ctx := context.Background()

	session, err := f.svc.StartCheckout(ctx, owner, userID)
	require.NoError(t, err)
	_, err = f.svc.SetContact(ctx, owner, session.ID, validContact())
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, owner, userID, session.ID)
	require.NoError(t, err)
	_, err = f.svc.SetAddress(ctx, owner, session.ID, validAddress())
	require.NoError(t, err)
	session, err = f.svc.Advance(ctx, owner, userID, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StepPayment, session.CurrentStep)
	return session
}

func TestCheckout_FullFlow(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(2), facial())
	ctx := context.Background()

	session := f.toPayment(t, "user-1", "user-1")

	store, _ := f.carts.Get("user-1")
	assert.Equal(t, shipping.OptionStandard, store.Current().ShippingOptionID)

	_, err := f.svc.SetPayment(ctx, "user-1", session.ID, validCard())
	require.NoError(t, err)

	total := store.Current().Total
	assert.Equal(t, int64(15340), total)
	f.payments.On("CreatePaymentIntent", mock.Anything, total, "USD", mock.Anything, session.ID+":15340").
		Return(&domain.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: total, Currency: "USD"}, nil).Once()

	intent, session, err := f.svc.CreatePaymentIntent(ctx, "user-1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
	assert.Equal(t, "pi_1", session.Payment.PaymentIntentID)
	assert.Equal(t, "4242", session.Payment.CardLast4)
	assert.True(t, session.Payment.CardValid)

	f.orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req *domain.OrderRequest) bool {
		lines := req.Lines()
		return len(lines) == 1 &&
			lines[0] == domain.OrderLine{ProductID: "prod-lipstick", Quantity: 2} &&
			req.UserID() == "user-1" &&
			req.PaymentIntentID() == "pi_1" &&
			req.ShippingMethodID() == shipping.OptionStandard
	}), session.ID).Return(&domain.OrderResult{OrderID: "ord-1", Status: "pending"}, nil).Once()

	session, err = f.svc.Advance(ctx, "user-1", "user-1", session.ID)
	require.NoError(t, err)

	assert.True(t, session.IsCompleted())
	assert.Equal(t, "ord-1", session.OrderID)
	assert.Equal(t, domain.StepConfirmation, session.CurrentStep)
	assert.Equal(t, [domain.StepCount]bool{true, true, true, true}, session.Completed)
	assert.True(t, store.Current().IsEmpty())
	assert.Equal(t, []string{"ord-1"}, f.events.submitted)

	stored, err := f.svc.Get(ctx, "user-1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)

	_, err = f.svc.SetContact(ctx, "user-1", session.ID, validContact())
	assert.True(t, domain.HasCode(err, domain.CodeCheckoutCompleted))

	f.orders.AssertExpectations(t)
	f.payments.AssertExpectations(t)
}

func TestCheckout_SubmissionFailureIsRetryable(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()

	session := f.toPayment(t, "user-1", "user-1")
	_, err := f.svc.SetPayment(ctx, "user-1", session.ID, PaymentInput{Method: domain.PaymentMethodCashOnDelivery})
	require.NoError(t, err)

	f.orders.On("CreateOrder", mock.Anything, mock.Anything, session.ID).
		Return(nil, apperrors.ServiceUnavailable("order service unavailable")).Once()

	_, err = f.svc.Advance(ctx, "user-1", "user-1", session.ID)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeOrderSubmissionFailed))
	assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatus(err))
	assert.True(t, apperrors.IsRetryable(err))

	stored, err := f.svc.Get(ctx, "user-1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmissionFailed, stored.Status)
	assert.Equal(t, domain.StepConfirmation, stored.CurrentStep)
	assert.False(t, stored.Completed[domain.StepConfirmation])
	assert.Equal(t, 1, stored.Attempts)
	assert.NotEmpty(t, stored.FailureReason)

	store, _ := f.carts.Get("user-1")
	assert.Len(t, store.Current().Items, 1)

	f.orders.On("CreateOrder", mock.Anything, mock.Anything, session.ID).
		Return(&domain.OrderResult{OrderID: "ord-2", Status: "pending"}, nil).Once()

	session, err = f.svc.Submit(ctx, "user-1", session.ID)
	require.NoError(t, err)
	assert.True(t, session.IsCompleted())
	assert.Equal(t, 2, session.Attempts)
	assert.Empty(t, session.FailureReason)
	assert.True(t, store.Current().IsEmpty())
}

func TestCheckout_SubmissionRejected(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()

	session := f.toPayment(t, "user-1", "user-1")
	_, err := f.svc.SetPayment(ctx, "user-1", session.ID, PaymentInput{Method: domain.PaymentMethodPayPal})
	require.NoError(t, err)

	f.orders.On("CreateOrder", mock.Anything, mock.Anything, session.ID).
		Return(nil, apperrors.InvalidInput("product is discontinued")).Once()

	_, err = f.svc.Advance(ctx, "user-1", "user-1", session.ID)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeOrderSubmissionFailed))
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestCheckout_JumpToConfirmationResubmits(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()

	session := f.toPayment(t, "user-1", "user-1")
	_, err := f.svc.SetPayment(ctx, "user-1", session.ID, PaymentInput{Method: domain.PaymentMethodPayPal})
	require.NoError(t, err)

	f.orders.On("CreateOrder", mock.Anything, mock.Anything, session.ID).
		Return(nil, apperrors.BadGateway("timeout", nil)).Once()
	_, err = f.svc.Advance(ctx, "user-1", "user-1", session.ID)
	require.Error(t, err)

	session, err = f.svc.GoBack(ctx, "user-1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPayment, session.CurrentStep)

	f.orders.On("CreateOrder", mock.Anything, mock.Anything, session.ID).
		Return(&domain.OrderResult{OrderID: "ord-3", Status: "pending"}, nil).Once()
	session, err = f.svc.JumpTo(ctx, "user-1", session.ID, domain.StepConfirmation)
	require.NoError(t, err)
	assert.Equal(t, "ord-3", session.OrderID)
	f.orders.AssertExpectations(t)
}

func TestCheckout_GuestMustSignInBeforeSubmitting(t *testing.T) {
	owner := "guest:abcdefgh"
	f := newCheckoutFixture(t, owner, lipstick(1))
	ctx := context.Background()

	session := f.toPayment(t, owner, "")
	_, err := f.svc.SetPayment(ctx, owner, session.ID, PaymentInput{Method: domain.PaymentMethodPayPal})
	require.NoError(t, err)

	_, err = f.svc.Advance(ctx, owner, "", session.ID)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeSignInRequired))
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))

	stored, err := f.svc.Get(ctx, owner, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPayment, stored.CurrentStep)

	f.orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req *domain.OrderRequest) bool {
		return req.UserID() == "user-9"
	}), session.ID).Return(&domain.OrderResult{OrderID: "ord-4", Status: "pending"}, nil).Once()

	session, err = f.svc.Advance(ctx, owner, "user-9", session.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-9", session.UserID)
	assert.True(t, session.IsCompleted())
}

func TestCheckout_StartRequiresItems(t *testing.T) {
	f := newCheckoutFixture(t, "user-1")

	_, err := f.svc.StartCheckout(context.Background(), "user-1", "user-1")
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeEmptyCart))
}

func TestCheckout_StartPrefillsShippingMethod(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()

	store, _ := f.carts.Get("user-1")
	_, err := store.SelectShipping(ctx, shipping.OptionPickup)
	require.NoError(t, err)

	session, err := f.svc.StartCheckout(ctx, "user-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, shipping.OptionPickup, session.ShippingMethodID)
	assert.Equal(t, domain.StepCustomerInfo, session.CurrentStep)
	assert.Equal(t, domain.StatusInProgress, session.Status)
}

func TestCheckout_SetAddressFailureKeepsCartShipping(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()
	store, _ := f.carts.Get("user-1")
	_, err := store.SelectShipping(ctx, shipping.OptionPickup)
	require.NoError(t, err)

	session, err := f.svc.StartCheckout(ctx, "user-1", "user-1")
	require.NoError(t, err)

	f.repo.updateErr = errors.New("connection reset")
	input := validAddress()
	input.ShippingMethodID = shipping.OptionExpress
	_, err = f.svc.SetAddress(ctx, "user-1", session.ID, input)
	require.Error(t, err)

	assert.Equal(t, shipping.OptionPickup, store.Current().ShippingOptionID)
	stored, err := f.svc.Get(ctx, "user-1", session.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ShippingAddress)
	assert.Equal(t, shipping.OptionPickup, stored.ShippingMethodID)
}

func TestCheckout_SetAddressFailureWithoutPriorSelection(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()
	session, err := f.svc.StartCheckout(ctx, "user-1", "user-1")
	require.NoError(t, err)

	f.repo.updateErr = errors.New("connection reset")
	_, err = f.svc.SetAddress(ctx, "user-1", session.ID, validAddress())
	require.Error(t, err)

	store, _ := f.carts.Get("user-1")
	cart := store.Current()
	assert.Empty(t, cart.ShippingOptionID)
	assert.Equal(t, int64(0), cart.Shipping)
}

func TestCheckout_Active(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()

	_, err := f.svc.Active(ctx, "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	session, err := f.svc.StartCheckout(ctx, "user-1", "user-1")
	require.NoError(t, err)

	active, err := f.svc.Active(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, active.ID)

	_, err = f.svc.Active(ctx, "user-2")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckout_OtherOwnerCannotSeeSession(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()

	session, err := f.svc.StartCheckout(ctx, "user-1", "user-1")
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "user-2", session.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.SetContact(ctx, "user-2", session.ID, validContact())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckout_AdvanceRequiresCompleteStep(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()

	session, err := f.svc.StartCheckout(ctx, "user-1", "user-1")
	require.NoError(t, err)

	_, err = f.svc.Advance(ctx, "user-1", "user-1", session.ID)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeIncompleteInformation))
	assert.Equal(t, http.StatusUnprocessableEntity, apperrors.HTTPStatus(err))

	_, err = f.svc.GoBack(ctx, "user-1", session.ID)
	assert.True(t, domain.HasCode(err, domain.CodeInvalidStep))

	_, err = f.svc.JumpTo(ctx, "user-1", session.ID, domain.StepPayment)
	assert.True(t, domain.HasCode(err, domain.CodeInvalidStep))
}

func TestCheckout_FormValidation(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()

	session, err := f.svc.StartCheckout(ctx, "user-1", "user-1")
	require.NoError(t, err)

	contact := validContact()
	contact.Email = "not-an-email"
	_, err = f.svc.SetContact(ctx, "user-1", session.ID, contact)
	var valErr *validator.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields(), "email")

	address := validAddress()
	address.ShippingMethodID = "drone"
	_, err = f.svc.SetAddress(ctx, "user-1", session.ID, address)
	assert.True(t, domain.HasCode(err, domain.CodeInvalidShipping))

	address = validAddress()
	address.Address.Country = "USA"
	_, err = f.svc.SetAddress(ctx, "user-1", session.ID, address)
	require.ErrorAs(t, err, &valErr)

	stored, err := f.svc.Get(ctx, "user-1", session.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Contact)
	assert.Nil(t, stored.ShippingAddress)
}

func TestCheckout_SetPaymentCardChecks(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()

	session, err := f.svc.StartCheckout(ctx, "user-1", "user-1")
	require.NoError(t, err)

	tests := []struct {
		name           string
		input          func() PaymentInput
		wantValidation bool
	}{
		{"missing card", func() PaymentInput { return PaymentInput{Method: domain.PaymentMethodCard} }, false},
		{"bad number", func() PaymentInput {
			in := validCard()
			in.Card.Number = "4242424242424241"
			return in
		}, true},
		{"expired", func() PaymentInput {
			in := validCard()
			in.Card.ExpYear = 2020
			return in
		}, false},
		{"unknown method", func() PaymentInput { return PaymentInput{Method: "crypto"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SetPayment(ctx, "user-1", session.ID, tt.input())
			require.Error(t, err)
			if tt.wantValidation {
				var valErr *validator.ValidationError
				assert.ErrorAs(t, err, &valErr)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}

	stored, err := f.svc.Get(ctx, "user-1", session.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Payment)
}

func TestCheckout_SubmitOnlyFromConfirmation(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", lipstick(1))
	ctx := context.Background()

	session, err := f.svc.StartCheckout(ctx, "user-1", "user-1")
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, "user-1", session.ID)
	assert.True(t, domain.HasCode(err, domain.CodeInvalidStep))
	f.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderSubmitter_ServiceOnlyCartIsEmpty(t *testing.T) {
	f := newCheckoutFixture(t, "user-1", facial())
	store, _ := f.carts.Get("user-1")

	session := domain.NewCheckoutSession("chk-1", "user-1", "user-1")
	address := validAddress().Address
	session.ShippingAddress = &address

	submitter := NewOrderSubmitter(f.orders, nil, newTestLogger())
	_, err := submitter.Submit(context.Background(), store, session)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeEmptyCart))
	assert.Len(t, store.Current().Items, 1)
}
