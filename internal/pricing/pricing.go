// Package pricing computes the derived totals of a cart. All amounts are in
// minor currency units; rates are applied with decimal arithmetic and rounded
// half-up to the nearest unit.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angiebeauty/storefront/internal/domain"
)

// Defaults used when no configuration overrides them.
const (
	DefaultTaxRatePercent        = 18
	DefaultFreeShippingThreshold = 10000
)

var hundred = decimal.NewFromInt(100)

// Totals are the derived amounts of a cart.
//
// Shipping is the cost of the selected option after the threshold waiver.
// A free-shipping promo code does not zero it; the waived cost is reported
// in Discount instead, so Total already excludes it. Display Shipping and
// Discount as separate lines and do not subtract shipping again.
type Totals struct {
	Subtotal  int64 `json:"subtotal"`
	Shipping  int64 `json:"shipping"`
	Tax       int64 `json:"tax"`
	Discount  int64 `json:"discount"`
	Total     int64 `json:"total"`
	ItemCount int   `json:"item_count"`
}

// Rules holds the storefront pricing parameters.
type Rules struct {
	taxRate               decimal.Decimal
	freeShippingThreshold int64
	now                   func() time.Time
}

// NewRules creates pricing rules with a tax rate in percent and a free
// shipping threshold in minor units.
func NewRules(taxRatePercent float64, freeShippingThreshold int64) *Rules {
	return &Rules{
		taxRate:               decimal.NewFromFloat(taxRatePercent).Div(hundred),
		freeShippingThreshold: freeShippingThreshold,
		now:                   time.Now,
	}
}

// DefaultRules returns 18% tax and free shipping from 100.00.
func DefaultRules() *Rules {
	return NewRules(DefaultTaxRatePercent, DefaultFreeShippingThreshold)
}

// WithClock overrides the clock used for promo expiry checks.
func (r *Rules) WithClock(now func() time.Time) *Rules {
	cp := *r
	cp.now = now
	return &cp
}

// FreeShippingThreshold returns the subtotal from which shipping is waived.
func (r *Rules) FreeShippingThreshold() int64 {
	return r.freeShippingThreshold
}

// Calculate derives the totals for items with the given shipping option and
// promo code, either of which may be nil.
func (r *Rules) Calculate(items []domain.CartItem, option *domain.ShippingOption, promo *domain.PromoCode) Totals {
	if len(items) == 0 {
		return Totals{}
	}

	var t Totals
	for _, item := range items {
		t.Subtotal += item.LineTotal()
		t.ItemCount += item.Quantity
	}

	t.Tax = applyRate(t.Subtotal, r.taxRate)
	t.Shipping = r.shippingCost(t.Subtotal, option)
	t.Discount = r.discount(t.Subtotal, t.Shipping, promo)
	t.Total = max(0, t.Subtotal+t.Shipping+t.Tax-t.Discount)
	return t
}

// Apply recomputes the derived fields of cart in place.
func (r *Rules) Apply(cart *domain.Cart, option *domain.ShippingOption, promo *domain.PromoCode) {
	t := r.Calculate(cart.Items, option, promo)
	cart.Subtotal = t.Subtotal
	cart.Shipping = t.Shipping
	cart.Tax = t.Tax
	cart.Discount = t.Discount
	cart.Total = t.Total
	cart.ItemCount = t.ItemCount
}

func (r *Rules) shippingCost(subtotal int64, option *domain.ShippingOption) int64 {
	if option == nil {
		return 0
	}
	if !option.Pickup && subtotal >= r.freeShippingThreshold {
		return 0
	}
	return option.Price
}

// discount returns the promo contribution. A free-shipping code reports the
// waived shipping cost as its discount; an expired code or one whose minimum
// is not met contributes nothing.
func (r *Rules) discount(subtotal, shipping int64, promo *domain.PromoCode) int64 {
	if promo == nil || !promo.IsApplicable(subtotal, r.now()) {
		return 0
	}
	switch promo.Type {
	case domain.PromoTypePercentage:
		return applyRate(subtotal, decimal.NewFromInt(promo.Value).Div(hundred))
	case domain.PromoTypeFixed:
		return promo.Value
	case domain.PromoTypeFreeShipping:
		return shipping
	default:
		return 0
	}
}

func applyRate(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}
