package domain

import (
	"maps"
	"time"
)

// Bounds on client supplied line values. Together with the line limit they
// keep every cart amount far below the int64 range.
const (
	MaxItemPrice    = 1_000_000_000
	MaxItemQuantity = 1000
)

// Cart item type constants.
const (
	ItemTypeProduct = "product"
	ItemTypeService = "service"
)

// Cart is a customer's shopping cart. Items keep insertion order; the
// remaining amount fields are derived and recomputed on every mutation.
type Cart struct {
	ID               string     `json:"id"`
	Owner            string     `json:"owner"`
	Items            []CartItem `json:"items"`
	ShippingOptionID string     `json:"shipping_option_id,omitempty"`
	PromoCode        string     `json:"promo_code,omitempty"`
	Currency         string     `json:"currency"`

	Subtotal  int64 `json:"subtotal"`
	Shipping  int64 `json:"shipping"`
	Tax       int64 `json:"tax"`
	Discount  int64 `json:"discount"`
	Total     int64 `json:"total"`
	ItemCount int   `json:"item_count"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartItem is a single line of the cart. Prices are in minor units.
type CartItem struct {
	ID            string            `json:"id" validate:"required,max=100"`
	Type          string            `json:"type" validate:"required,oneof=product service"`
	Name          string            `json:"name" validate:"required,max=255"`
	ImageURL      string            `json:"image_url,omitempty" validate:"omitempty,url"`
	Price         int64             `json:"price" validate:"gte=0,lte=1000000000"`
	OriginalPrice int64             `json:"original_price" validate:"gte=0,lte=1000000000"`
	Quantity      int               `json:"quantity" validate:"required,min=1,lte=1000"`
	MaxQuantity   int               `json:"max_quantity" validate:"required,min=1,lte=1000"`
	Variations    map[string]string `json:"variations,omitempty"`
}

// NewCart returns an empty cart for owner.
func NewCart(id, owner, currency string) *Cart {
	return &Cart{
		ID:        id,
		Owner:     owner,
		Items:     []CartItem{},
		Currency:  currency,
		UpdatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy so a mutation can be prepared without touching the
// published state.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	for i, item := range c.Items {
		item.Variations = maps.Clone(item.Variations)
		cp.Items[i] = item
	}
	return &cp
}

// SubtotalAmount sums price times quantity over all items (in cents).
func (c *Cart) SubtotalAmount() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	return total
}

// FindItemIndex returns the index of the item with the given id, or -1.
func (c *Cart) FindItemIndex(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ProductItems returns the product-type items; services follow a separate
// reservation flow and never become order lines.
func (c *Cart) ProductItems() []CartItem {
	out := make([]CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if item.Type == ItemTypeProduct {
			out = append(out, item)
		}
	}
	return out
}

// LineTotal returns price times quantity.
func (i CartItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}
