package domain

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

// Storefront error codes surfaced to clients.
const (
	CodeInvalidPromoCode      = "INVALID_PROMO_CODE"
	CodePromoMinimumNotMet    = "PROMO_MINIMUM_NOT_MET"
	CodeInsufficientStock     = "INSUFFICIENT_STOCK"
	CodeIncompleteInformation = "INCOMPLETE_INFORMATION"
	CodeInvalidStep           = "INVALID_STEP"
	CodeOrderSubmissionFailed = "ORDER_SUBMISSION_FAILED"
	CodeCheckoutCompleted     = "CHECKOUT_COMPLETED"
	CodeEmptyCart             = "EMPTY_CART"
	CodeSignInRequired        = "SIGN_IN_REQUIRED"
	CodeInvalidShipping       = "INVALID_SHIPPING_OPTION"
	CodeUnsupportedLocale     = "UNSUPPORTED_LOCALE"
)

// ErrInvalidPromoCode reports an unknown or expired code.
func ErrInvalidPromoCode(code, reason string) *apperrors.AppError {
	return apperrors.New(CodeInvalidPromoCode, fmt.Sprintf("promo code %q %s", code, reason),
		http.StatusBadRequest, apperrors.ErrInvalidInput)
}

// ErrPromoMinimumNotMet reports a subtotal below the code's minimum order.
func ErrPromoMinimumNotMet(code string, minimum int64) *apperrors.AppError {
	return apperrors.New(CodePromoMinimumNotMet,
		fmt.Sprintf("promo code %q requires a minimum order of %d", code, minimum),
		http.StatusUnprocessableEntity, apperrors.ErrInvalidInput)
}

// ErrInsufficientStock reports a requested quantity above the purchasable maximum.
func ErrInsufficientStock(itemID string, requested, available int) *apperrors.AppError {
	return apperrors.New(CodeInsufficientStock,
		fmt.Sprintf("only %d of item %s available, %d requested", available, itemID, requested),
		http.StatusConflict, apperrors.ErrConflict)
}

// ErrInvalidShippingOption reports an unknown shipping option id.
func ErrInvalidShippingOption(id string) *apperrors.AppError {
	return apperrors.New(CodeInvalidShipping, fmt.Sprintf("shipping option %q is not available", id),
		http.StatusBadRequest, apperrors.ErrInvalidInput)
}

// ErrUnsupportedLocale reports a locale outside the configured set.
func ErrUnsupportedLocale(locale string) *apperrors.AppError {
	return apperrors.New(CodeUnsupportedLocale, fmt.Sprintf("locale %q is not supported", locale),
		http.StatusBadRequest, apperrors.ErrInvalidInput)
}

// ErrIncompleteInformation reports a checkout step whose preconditions do not hold.
func ErrIncompleteInformation(step Step) *apperrors.AppError {
	return apperrors.New(CodeIncompleteInformation,
		fmt.Sprintf("%s step is missing required information", step.Label()),
		http.StatusUnprocessableEntity, apperrors.ErrInvalidInput)
}

// ErrInvalidStep reports a navigation that the checkout flow does not allow.
func ErrInvalidStep(message string) *apperrors.AppError {
	return apperrors.New(CodeInvalidStep, message, http.StatusConflict, apperrors.ErrConflict)
}

// ErrCheckoutCompleted reports a change to a checkout whose order was placed.
func ErrCheckoutCompleted(id string) *apperrors.AppError {
	return apperrors.New(CodeCheckoutCompleted, fmt.Sprintf("checkout %s is already completed", id),
		http.StatusConflict, apperrors.ErrConflict)
}

// ErrEmptyCart reports a submission with no product lines.
func ErrEmptyCart() *apperrors.AppError {
	return apperrors.New(CodeEmptyCart, "cart has no products to order",
		http.StatusUnprocessableEntity, apperrors.ErrInvalidInput)
}

// ErrSignInRequired reports a guest attempting an operation reserved for users.
func ErrSignInRequired() *apperrors.AppError {
	return apperrors.New(CodeSignInRequired, "sign in to place an order",
		http.StatusUnauthorized, apperrors.ErrUnauthorized)
}

// ErrOrderSubmissionFailed wraps an order collaborator failure. Transient
// causes map to 502 and stay retryable; a rejection by the collaborator keeps
// its status so the client does not resend the same order.
func ErrOrderSubmissionFailed(cause error) *apperrors.AppError {
	if apperrors.IsRetryable(cause) || apperrors.HTTPStatus(cause) >= http.StatusInternalServerError {
		return apperrors.New(CodeOrderSubmissionFailed, "order could not be placed, please try again",
			http.StatusBadGateway, fmt.Errorf("%w: %w", apperrors.ErrUpstream, cause))
	}
	return apperrors.New(CodeOrderSubmissionFailed, "order was rejected: "+rejectionMessage(cause),
		apperrors.HTTPStatus(cause), cause)
}

func rejectionMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *apperrors.AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
