package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/internal/service"
	"github.com/angiebeauty/storefront/internal/shipping"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

func validContact() domain.ContactInfo {
	return domain.ContactInfo{
		FirstName: "Ada",
		LastName:  "Yilmaz",
		Email:     "ada@example.com",
		Phone:     "+905551112233",
	}
}

func validAddress() service.AddressInput {
	return service.AddressInput{
		Address: domain.Address{
			FullName:    "Ada Yilmaz",
			AddressLine: "Bagdat Cd. 12",
			City:        "Istanbul",
			PostalCode:  "34728",
			Country:     "TR",
		},
		ShippingMethodID: shipping.OptionStandard,
	}
}

// startCheckout fills a cart for identity and opens a checkout session.
func startCheckout(t *testing.T, env *testEnv, identity http.Header) *CheckoutResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/cart/items", lipstickRequest(2), identity).Code)

	rec := env.do(t, http.MethodPost, "/api/v1/checkout", nil, identity)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeData[*CheckoutResponse](t, rec)
	require.NotNil(t, resp.Data)
	return resp.Data
}

// fillSteps completes contact, address and payment and advances to the
// payment step.
func fillSteps(t *testing.T, env *testEnv, id string, identity http.Header) {
	t.Helper()
	base := "/api/v1/checkout/" + id

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, base+"/contact", validContact(), identity).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/advance", nil, identity).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, base+"/address", validAddress(), identity).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/advance", nil, identity).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, base+"/payment", service.PaymentInput{Method: domain.PaymentMethodPayPal}, identity).Code)
}

func TestCheckout_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	user := asUser("user-1")

	started := startCheckout(t, env, user)
	assert.Equal(t, domain.StepCustomerInfo, started.CurrentStep)
	require.Len(t, started.Steps, domain.StepCount)
	assert.True(t, started.Steps[0].Current)

	fillSteps(t, env, started.ID, user)
	base := "/api/v1/checkout/" + started.ID

	rec := env.do(t, http.MethodPost, base+"/payment-intent", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	intent := decodeData[PaymentIntentResponse](t, rec).Data
	assert.Equal(t, "pi_1", intent.PaymentIntentID)
	assert.Equal(t, int64(11800), intent.Amount)
	assert.Equal(t, []string{started.ID + ":11800"}, env.payments.keys)

	rec = env.do(t, http.MethodPost, base+"/advance", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decodeData[*CheckoutResponse](t, rec).Data
	assert.Equal(t, domain.StepConfirmation, done.CurrentStep)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, "ord-1", done.OrderID)
	assert.Equal(t, []string{started.ID}, env.orders.keys)

	rec = env.do(t, http.MethodGet, "/api/v1/cart", nil, user)
	assert.Empty(t, decodeData[*domain.Cart](t, rec).Data.Items)

	rec = env.do(t, http.MethodPost, base+"/advance", nil, user)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.CodeCheckoutCompleted, decodeData[*CheckoutResponse](t, rec).Error.Code)
}

func TestCheckout_RetryAfterUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	user := asUser("user-1")
	started := startCheckout(t, env, user)
	fillSteps(t, env, started.ID, user)
	base := "/api/v1/checkout/" + started.ID

	env.orders.err = apperrors.BadGateway("order service returned 503", nil)
	rec := env.do(t, http.MethodPost, base+"/advance", nil, user)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeData[*CheckoutResponse](t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CodeOrderSubmissionFailed, resp.Error.Code)
	assert.True(t, resp.Error.Retryable)

	rec = env.do(t, http.MethodGet, base, nil, user)
	session := decodeData[*CheckoutResponse](t, rec).Data
	assert.Equal(t, domain.StatusSubmissionFailed, session.Status)
	assert.Equal(t, domain.StepConfirmation, session.CurrentStep)

	rec = env.do(t, http.MethodGet, "/api/v1/cart", nil, user)
	assert.Len(t, decodeData[*domain.Cart](t, rec).Data.Items, 1)

	env.orders.err = nil
	rec = env.do(t, http.MethodPost, base+"/submit", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	session = decodeData[*CheckoutResponse](t, rec).Data
	assert.Equal(t, domain.StatusCompleted, session.Status)
	assert.Equal(t, 2, session.Attempts)
	assert.Equal(t, []string{started.ID, started.ID}, env.orders.keys)
}

func TestCheckout_GuestMustSignInToLeavePayment(t *testing.T) {
	env := newTestEnv(t)
	guest := asGuest()
	started := startCheckout(t, env, guest)
	fillSteps(t, env, started.ID, guest)
	base := "/api/v1/checkout/" + started.ID

	rec := env.do(t, http.MethodPost, base+"/advance", nil, guest)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeSignInRequired, decodeData[*CheckoutResponse](t, rec).Error.Code)
	assert.Empty(t, env.orders.keys)
}

func TestCheckout_NavigationErrors(t *testing.T) {
	env := newTestEnv(t)
	user := asUser("user-1")
	started := startCheckout(t, env, user)
	base := "/api/v1/checkout/" + started.ID

	rec := env.do(t, http.MethodPost, base+"/advance", nil, user)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, domain.CodeIncompleteInformation, decodeData[*CheckoutResponse](t, rec).Error.Code)

	rec = env.do(t, http.MethodPost, base+"/back", nil, user)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.CodeInvalidStep, decodeData[*CheckoutResponse](t, rec).Error.Code)

	payment := domain.StepPayment
	rec = env.do(t, http.MethodPost, base+"/jump", JumpRequest{Step: &payment}, user)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/jump", map[string]any{}, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/submit", nil, user)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckout_GoBackAndJumpForward(t *testing.T) {
	env := newTestEnv(t)
	user := asUser("user-1")
	started := startCheckout(t, env, user)
	fillSteps(t, env, started.ID, user)
	base := "/api/v1/checkout/" + started.ID

	rec := env.do(t, http.MethodPost, base+"/back", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StepShipping, decodeData[*CheckoutResponse](t, rec).Data.CurrentStep)

	payment := domain.StepPayment
	rec = env.do(t, http.MethodPost, base+"/jump", JumpRequest{Step: &payment}, user)
	require.Equal(t, http.StatusOK, rec.Code)
	session := decodeData[*CheckoutResponse](t, rec).Data
	assert.Equal(t, domain.StepPayment, session.CurrentStep)
	assert.True(t, session.Steps[domain.StepShipping].Completed)
}

func TestCheckout_StartWithEmptyCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/checkout", nil, asUser("user-1"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, domain.CodeEmptyCart, decodeData[*CheckoutResponse](t, rec).Error.Code)
}

func TestCheckout_GetActive(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/checkout", nil, asUser("user-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	started := startCheckout(t, env, asUser("user-1"))

	rec = env.do(t, http.MethodGet, "/api/v1/checkout", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[*CheckoutResponse](t, rec)
	assert.Equal(t, started.ID, resp.Data.ID)
	assert.Len(t, resp.Data.Steps, len(started.Steps))

	rec = env.do(t, http.MethodGet, "/api/v1/checkout", nil, asUser("user-2"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_SessionBelongsToOwner(t *testing.T) {
	env := newTestEnv(t)
	started := startCheckout(t, env, asUser("user-1"))

	rec := env.do(t, http.MethodGet, "/api/v1/checkout/"+started.ID, nil, asUser("user-2"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/checkout/not-a-uuid", nil, asUser("user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decodeData[*CheckoutResponse](t, rec).Error.Code)
}

func TestCheckout_FormValidation(t *testing.T) {
	env := newTestEnv(t)
	user := asUser("user-1")
	started := startCheckout(t, env, user)
	base := "/api/v1/checkout/" + started.ID

	contact := validContact()
	contact.Email = "not-an-email"
	rec := env.do(t, http.MethodPut, base+"/contact", contact, user)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeData[*CheckoutResponse](t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "must be a valid email address", resp.Error.Fields["email"])

	address := validAddress()
	address.ShippingMethodID = "drone"
	rec = env.do(t, http.MethodPut, base+"/address", address, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeInvalidShipping, decodeData[*CheckoutResponse](t, rec).Error.Code)

	rec = env.do(t, http.MethodPut, base+"/payment", service.PaymentInput{Method: domain.PaymentMethodCard}, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_CardPaymentKeepsOnlyLastFour(t *testing.T) {
	env := newTestEnv(t)
	user := asUser("user-1")
	started := startCheckout(t, env, user)

	rec := env.do(t, http.MethodPut, "/api/v1/checkout/"+started.ID+"/payment", service.PaymentInput{
		Method: domain.PaymentMethodCard,
		Card: &domain.CardDetails{
			HolderName: "Ada Yilmaz",
			Number:     "4242424242424242",
			ExpMonth:   12,
			ExpYear:    2099,
			CVC:        "123",
		},
	}, user)

	require.Equal(t, http.StatusOK, rec.Code)
	session := decodeData[*CheckoutResponse](t, rec).Data
	require.NotNil(t, session.Payment)
	assert.True(t, session.Payment.CardValid)
	assert.Equal(t, "4242", session.Payment.CardLast4)
}
