package domain

import (
	"time"

	"github.com/angiebeauty/storefront/pkg/validator"
)

// Step is a position in the linear checkout flow.
type Step int

// Checkout steps in order.
const (
	StepCustomerInfo Step = iota
	StepShipping
	StepPayment
	StepConfirmation
)

// StepCount is the number of checkout steps.
const StepCount = 4

var stepLabels = [StepCount]string{"Customer Info", "Shipping", "Payment", "Confirmation"}

// Label returns the display label of the step.
func (s Step) Label() string {
	if !s.Valid() {
		return "Unknown"
	}
	return stepLabels[s]
}

// Valid reports whether s names a checkout step.
func (s Step) Valid() bool {
	return s >= StepCustomerInfo && s <= StepConfirmation
}

// Checkout session status constants.
const (
	StatusInProgress       = "in_progress"
	StatusSubmissionFailed = "submission_failed"
	StatusCompleted        = "completed"
)

// Payment method constants.
const (
	PaymentMethodCard           = "card"
	PaymentMethodPayPal         = "paypal"
	PaymentMethodCashOnDelivery = "cash_on_delivery"
)

// CheckoutStep is the public view of one step.
type CheckoutStep struct {
	Index     Step   `json:"index"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
	Current   bool   `json:"current"`
}

// ContactInfo is the customer info form.
type ContactInfo struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,e164"`
}

// Address is the shipping address form.
type Address struct {
	FullName    string `json:"full_name" validate:"required,max=200"`
	AddressLine string `json:"address_line" validate:"required,max=255"`
	City        string `json:"city" validate:"required,max=100"`
	State       string `json:"state" validate:"max=100"`
	PostalCode  string `json:"postal_code" validate:"required,max=20"`
	Country     string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// CardDetails is the card form. It is validated on submission and never stored.
type CardDetails struct {
	HolderName string `json:"holder_name" validate:"required,max=200"`
	Number     string `json:"number" validate:"required,credit_card"`
	ExpMonth   int    `json:"exp_month" validate:"required,min=1,max=12"`
	ExpYear    int    `json:"exp_year" validate:"required,min=2000,max=2100"`
	CVC        string `json:"cvc" validate:"required,numeric,min=3,max=4"`
}

// Expired reports whether the card expiry month lies before now.
func (c CardDetails) Expired(now time.Time) bool {
	y, m, _ := now.Date()
	return c.ExpYear < y || (c.ExpYear == y && c.ExpMonth < int(m))
}

// PaymentInfo is the stored payment selection. Only the outcome of card
// validation and the last four digits are kept.
type PaymentInfo struct {
	Method          string `json:"method" validate:"required,oneof=card paypal cash_on_delivery"`
	CardValid       bool   `json:"card_valid,omitempty"`
	CardLast4       string `json:"card_last4,omitempty"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
}

// RequiresCard reports whether the method needs card details.
func (p PaymentInfo) RequiresCard() bool {
	return p.Method == PaymentMethodCard
}

// CheckoutSession is one run through the checkout flow. A new checkout starts
// a fresh session; a completed one is never reset.
type CheckoutSession struct {
	ID               string          `json:"id"`
	Owner            string          `json:"owner"`
	UserID           string          `json:"user_id,omitempty"`
	Status           string          `json:"status"`
	CurrentStep      Step            `json:"current_step"`
	Completed        [StepCount]bool `json:"completed"`
	Contact          *ContactInfo    `json:"contact,omitempty"`
	ShippingAddress  *Address        `json:"shipping_address,omitempty"`
	ShippingMethodID string          `json:"shipping_method_id,omitempty"`
	Payment          *PaymentInfo    `json:"payment,omitempty"`
	OrderID          string          `json:"order_id,omitempty"`
	OrderStatus      string          `json:"order_status,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	Attempts         int             `json:"attempts"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewCheckoutSession starts a session on the first step.
func NewCheckoutSession(id, owner, userID string) *CheckoutSession {
	now := time.Now().UTC()
	return &CheckoutSession{
		ID:          id,
		Owner:       owner,
		UserID:      userID,
		Status:      StatusInProgress,
		CurrentStep: StepCustomerInfo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanAdvance reports whether the preconditions of step hold.
func (s *CheckoutSession) CanAdvance(step Step) bool {
	switch step {
	case StepCustomerInfo:
		return s.Contact != nil && validator.Valid(s.Contact)
	case StepShipping:
		return s.ShippingAddress != nil && validator.Valid(s.ShippingAddress) && s.ShippingMethodID != ""
	case StepPayment:
		if s.Payment == nil || !validator.Valid(s.Payment) {
			return false
		}
		return !s.Payment.RequiresCard() || s.Payment.CardValid
	case StepConfirmation:
		return true
	default:
		return false
	}
}

// Advance marks the current step complete and moves to the next one. The
// session is unchanged when the current step is incomplete.
func (s *CheckoutSession) Advance() error {
	if s.IsCompleted() {
		return ErrCheckoutCompleted(s.ID)
	}
	if s.CurrentStep == StepConfirmation {
		return ErrInvalidStep("confirmation is the final step")
	}
	if !s.CanAdvance(s.CurrentStep) {
		return ErrIncompleteInformation(s.CurrentStep)
	}
	s.Completed[s.CurrentStep] = true
	s.CurrentStep++
	s.touch()
	return nil
}

// GoBack moves to the previous step.
func (s *CheckoutSession) GoBack() error {
	if s.IsCompleted() {
		return ErrCheckoutCompleted(s.ID)
	}
	if s.CurrentStep == StepCustomerInfo {
		return ErrInvalidStep("already on the first step")
	}
	s.CurrentStep--
	s.touch()
	return nil
}

// CanJumpTo reports whether step is enterable: not ahead of the current step,
// or directly after a completed one.
func (s *CheckoutSession) CanJumpTo(step Step) bool {
	if !step.Valid() {
		return false
	}
	return step <= s.CurrentStep || s.Completed[step-1]
}

// JumpTo moves directly to step.
func (s *CheckoutSession) JumpTo(step Step) error {
	if s.IsCompleted() {
		return ErrCheckoutCompleted(s.ID)
	}
	if !step.Valid() {
		return ErrInvalidStep("unknown checkout step")
	}
	if !s.CanJumpTo(step) {
		return ErrInvalidStep("complete " + (step - 1).Label() + " before continuing to " + step.Label())
	}
	s.CurrentStep = step
	s.touch()
	return nil
}

// AwaitingSubmission reports whether the session sits on Confirmation with no
// order placed yet.
func (s *CheckoutSession) AwaitingSubmission() bool {
	return s.CurrentStep == StepConfirmation && !s.Completed[StepConfirmation]
}

// MarkSubmitted records a placed order and completes the flow.
func (s *CheckoutSession) MarkSubmitted(orderID, orderStatus string) {
	s.Attempts++
	s.OrderID = orderID
	s.OrderStatus = orderStatus
	s.FailureReason = ""
	s.Completed[StepConfirmation] = true
	s.Status = StatusCompleted
	s.touch()
}

// MarkSubmissionFailed records a failed attempt. The session stays on
// Confirmation so the submission can be retried.
func (s *CheckoutSession) MarkSubmissionFailed(reason string) {
	s.Attempts++
	s.FailureReason = reason
	s.Status = StatusSubmissionFailed
	s.touch()
}

// IsCompleted reports whether the order was placed.
func (s *CheckoutSession) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// Steps returns the public view of every step.
func (s *CheckoutSession) Steps() []CheckoutStep {
	steps := make([]CheckoutStep, StepCount)
	for i := range steps {
		step := Step(i)
		steps[i] = CheckoutStep{
			Index:     step,
			Label:     step.Label(),
			Completed: s.Completed[i],
			Current:   step == s.CurrentStep,
		}
	}
	return steps
}

// Clone returns a copy of the session that shares no form pointers.
func (s *CheckoutSession) Clone() *CheckoutSession {
	cp := *s
	if s.Contact != nil {
		c := *s.Contact
		cp.Contact = &c
	}
	if s.ShippingAddress != nil {
		a := *s.ShippingAddress
		cp.ShippingAddress = &a
	}
	if s.Payment != nil {
		p := *s.Payment
		cp.Payment = &p
	}
	return &cp
}

func (s *CheckoutSession) touch() {
	s.UpdatedAt = time.Now().UTC()
}
