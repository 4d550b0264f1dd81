package domain

import "time"

// Promo code type constants.
const (
	PromoTypePercentage   = "percentage"
	PromoTypeFixed        = "fixed"
	PromoTypeFreeShipping = "free_shipping"
)

// PromoCode is a discount token from the built-in catalog. For percentage
// codes Value is whole percent; for fixed codes it is minor units.
type PromoCode struct {
	Code          string     `json:"code"`
	Description   string     `json:"description"`
	Type          string     `json:"type"`
	Value         int64      `json:"value"`
	MinimumAmount int64      `json:"minimum_amount,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the code has passed its expiry at now.
func (p PromoCode) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// MeetsMinimum reports whether subtotal satisfies the minimum order amount.
func (p PromoCode) MeetsMinimum(subtotal int64) bool {
	return subtotal >= p.MinimumAmount
}

// IsApplicable reports whether the code currently contributes a discount.
func (p PromoCode) IsApplicable(subtotal int64, now time.Time) bool {
	return !p.IsExpired(now) && p.MeetsMinimum(subtotal)
}
