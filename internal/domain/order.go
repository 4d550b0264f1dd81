package domain

import (
	"encoding/json"
	"slices"
)

// OrderLine is one product line of an order request.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OrderRequest is the payload sent to the order service. It is built once per
// submission and cannot be modified afterwards.
type OrderRequest struct {
	lines            []OrderLine
	shippingAddress  Address
	shippingMethodID string
	userID           string
	paymentIntentID  string
	currency         string
	total            int64
}

// NewOrderRequest builds a request from the cart's product items. Service
// items are skipped.
func NewOrderRequest(cart *Cart, address Address, shippingMethodID, userID, paymentIntentID string) *OrderRequest {
	products := cart.ProductItems()
	lines := make([]OrderLine, 0, len(products))
	for _, item := range products {
		lines = append(lines, OrderLine{ProductID: item.ID, Quantity: item.Quantity})
	}
	return &OrderRequest{
		lines:            lines,
		shippingAddress:  address,
		shippingMethodID: shippingMethodID,
		userID:           userID,
		paymentIntentID:  paymentIntentID,
		currency:         cart.Currency,
		total:            cart.Total,
	}
}

// Lines returns a copy of the product lines.
func (o *OrderRequest) Lines() []OrderLine { return slices.Clone(o.lines) }

// ShippingAddress returns the delivery address.
func (o *OrderRequest) ShippingAddress() Address { return o.shippingAddress }

// ShippingMethodID returns the selected shipping option id.
func (o *OrderRequest) ShippingMethodID() string { return o.shippingMethodID }

// UserID returns the ordering user.
func (o *OrderRequest) UserID() string { return o.userID }

// PaymentIntentID returns the confirmed payment intent, if any.
func (o *OrderRequest) PaymentIntentID() string { return o.paymentIntentID }

// Currency returns the ISO currency code of the cart.
func (o *OrderRequest) Currency() string { return o.currency }

// Total returns the cart total at submission time.
func (o *OrderRequest) Total() int64 { return o.total }

// IsEmpty reports whether the request has no product lines.
func (o *OrderRequest) IsEmpty() bool { return len(o.lines) == 0 }

type orderRequestJSON struct {
	Items            []OrderLine `json:"items"`
	ShippingAddress  Address     `json:"shipping_address"`
	ShippingMethodID string      `json:"shipping_method_id"`
	UserID           string      `json:"user_id"`
	PaymentIntentID  string      `json:"payment_intent_id,omitempty"`
	Currency         string      `json:"currency"`
	TotalAmount      int64       `json:"total_amount"`
}

// MarshalJSON encodes the request in the order service's wire format.
func (o *OrderRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderRequestJSON{
		Items:            o.lines,
		ShippingAddress:  o.shippingAddress,
		ShippingMethodID: o.shippingMethodID,
		UserID:           o.userID,
		PaymentIntentID:  o.paymentIntentID,
		Currency:         o.currency,
		TotalAmount:      o.total,
	})
}

// OrderResult is the order service's answer to a placed order.
type OrderResult struct {
	OrderID string `json:"id"`
	Status  string `json:"status"`
}

// PaymentIntent is the payment service's answer to an intent request.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}
