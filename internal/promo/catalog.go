// Package promo holds the built-in promo code catalog.
package promo

import (
	"slices"
	"strings"
	"time"

	"github.com/angiebeauty/storefront/internal/domain"
)

var spring25Expiry = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// builtin is the static code set shipped with the binary.
var builtin = []domain.PromoCode{
	{Code: "WELCOME10", Description: "10% off your first order", Type: domain.PromoTypePercentage, Value: 10, MinimumAmount: 5000},
	{Code: "BEAUTY15", Description: "15% off beauty essentials", Type: domain.PromoTypePercentage, Value: 15, MinimumAmount: 7500},
	{Code: "SAVE20", Description: "20.00 off orders over 100.00", Type: domain.PromoTypeFixed, Value: 2000, MinimumAmount: 10000},
	{Code: "FREESHIP", Description: "Free shipping on any order", Type: domain.PromoTypeFreeShipping},
	{Code: "SPRING25", Description: "25% off the spring collection", Type: domain.PromoTypePercentage, Value: 25, MinimumAmount: 15000, ExpiresAt: &spring25Expiry},
}

// Catalog looks up promo codes by their case-insensitive code string.
type Catalog struct {
	codes map[string]domain.PromoCode
	now   func() time.Time
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	return NewCatalogWith(builtin, time.Now)
}

// NewCatalogWith builds a catalog from codes using now for expiry checks.
func NewCatalogWith(codes []domain.PromoCode, now func() time.Time) *Catalog {
	m := make(map[string]domain.PromoCode, len(codes))
	for _, c := range codes {
		m[normalize(c.Code)] = c
	}
	return &Catalog{codes: m, now: now}
}

// FindByCode returns the code matching code after trimming and upper-casing.
func (c *Catalog) FindByCode(code string) (domain.PromoCode, bool) {
	p, ok := c.codes[normalize(code)]
	return p, ok
}

// Validate looks up code and checks it can be applied to a cart with the given
// subtotal. The returned error is user-facing.
func (c *Catalog) Validate(code string, subtotal int64) (domain.PromoCode, error) {
	p, ok := c.FindByCode(code)
	if !ok {
		return domain.PromoCode{}, domain.ErrInvalidPromoCode(strings.TrimSpace(code), "is not valid")
	}
	if p.IsExpired(c.now()) {
		return domain.PromoCode{}, domain.ErrInvalidPromoCode(p.Code, "has expired")
	}
	if !p.MeetsMinimum(subtotal) {
		return domain.PromoCode{}, domain.ErrPromoMinimumNotMet(p.Code, p.MinimumAmount)
	}
	return p, nil
}

// Active returns the codes that have not expired, sorted by code string.
func (c *Catalog) Active() []domain.PromoCode {
	now := c.now()
	out := make([]domain.PromoCode, 0, len(c.codes))
	for _, p := range c.codes {
		if p.IsExpired(now) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.PromoCode) int { return strings.Compare(a.Code, b.Code) })
	return out
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
