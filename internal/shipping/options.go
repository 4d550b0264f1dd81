// Package shipping lists the delivery methods offered at checkout.
package shipping

import "github.com/angiebeauty/storefront/internal/domain"

// Shipping option identifiers.
const (
	OptionStandard = "standard"
	OptionExpress  = "express"
	OptionPickup   = "pickup"
)

var builtin = []domain.ShippingOption{
	{ID: OptionStandard, Name: "Standard delivery", Price: 1500, EstimatedDays: domain.DeliveryWindow{Min: 3, Max: 5}},
	{ID: OptionExpress, Name: "Express delivery", Price: 2500, EstimatedDays: domain.DeliveryWindow{Min: 1, Max: 2}},
	{ID: OptionPickup, Name: "Pick up in store", Price: 0, Pickup: true},
}

// Catalog holds the available shipping options in display order.
type Catalog struct {
	options []domain.ShippingOption
}

// NewCatalog returns the built-in options.
func NewCatalog() *Catalog {
	return &Catalog{options: builtin}
}

// List returns a copy of the options.
func (c *Catalog) List() []domain.ShippingOption {
	out := make([]domain.ShippingOption, len(c.options))
	copy(out, c.options)
	return out
}

// Find returns the option with id.
func (c *Catalog) Find(id string) (*domain.ShippingOption, bool) {
	for i := range c.options {
		if c.options[i].ID == id {
			opt := c.options[i]
			return &opt, true
		}
	}
	return nil, false
}
