package domain

// ShippingOption is a selectable delivery method.
type ShippingOption struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Price         int64          `json:"price"`
	EstimatedDays DeliveryWindow `json:"estimated_days"`
	Pickup        bool           `json:"pickup"`
}

// DeliveryWindow is an inclusive range of business days.
type DeliveryWindow struct {
	Min int `json:"min"`
	Max int `json:"max"`
}
