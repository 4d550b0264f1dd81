package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/angiebeauty/storefront/internal/domain"
	pkgkafka "github.com/angiebeauty/storefront/pkg/kafka"
)

// Kafka topics for storefront domain events.
var (
	TopicCartUpdated    = pkgkafka.Topic("cart", "updated")
	TopicCartCleared    = pkgkafka.Topic("cart", "cleared")
	TopicOrderSubmitted = pkgkafka.Topic("checkout", "order_submitted")
)

// Aggregate type constants.
const (
	AggregateTypeCart     = "cart"
	AggregateTypeCheckout = "checkout"
)

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	Owner     string         `json:"owner"`
	CartID    string         `json:"cart_id"`
	Items     []CartItemData `json:"items"`
	ItemCount int            `json:"item_count"`
	Subtotal  int64          `json:"subtotal"`
	Discount  int64          `json:"discount"`
	Total     int64          `json:"total"`
	PromoCode string         `json:"promo_code,omitempty"`
	Currency  string         `json:"currency"`
	Version   int            `json:"version"`
}

// CartItemData is the item payload within cart events.
type CartItemData struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	Owner  string `json:"owner"`
	CartID string `json:"cart_id"`
}

// OrderSubmittedData is the payload for a checkout.order_submitted event.
type OrderSubmittedData struct {
	CheckoutID       string             `json:"checkout_id"`
	OrderID          string             `json:"order_id"`
	UserID           string             `json:"user_id"`
	Lines            []domain.OrderLine `json:"lines"`
	ShippingMethodID string             `json:"shipping_method_id"`
	Total            int64              `json:"total"`
	Currency         string             `json:"currency"`
	PaymentIntentID  string             `json:"payment_intent_id,omitempty"`
}

// Producer publishes storefront domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	items := make([]CartItemData, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = CartItemData{
			ID:       item.ID,
			Type:     item.Type,
			Price:    item.Price,
			Quantity: item.Quantity,
		}
	}

	data := CartUpdatedData{
		Owner:     cart.Owner,
		CartID:    cart.ID,
		Items:     items,
		ItemCount: cart.ItemCount,
		Subtotal:  cart.Subtotal,
		Discount:  cart.Discount,
		Total:     cart.Total,
		PromoCode: cart.PromoCode,
		Currency:  cart.Currency,
		Version:   cart.Version,
	}

	if err := p.publish(ctx, TopicCartUpdated, cart.Owner, AggregateTypeCart, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("owner", cart.Owner),
		slog.Int("item_count", cart.ItemCount),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, owner, cartID string) error {
	return p.publish(ctx, TopicCartCleared, owner, AggregateTypeCart, CartClearedData{Owner: owner, CartID: cartID})
}

// PublishOrderSubmitted publishes a checkout.order_submitted event.
func (p *Producer) PublishOrderSubmitted(ctx context.Context, checkoutID, orderID string, req *domain.OrderRequest) error {
	data := OrderSubmittedData{
		CheckoutID:       checkoutID,
		OrderID:          orderID,
		UserID:           req.UserID(),
		Lines:            req.Lines(),
		ShippingMethodID: req.ShippingMethodID(),
		Total:            req.Total(),
		Currency:         req.Currency(),
		PaymentIntentID:  req.PaymentIntentID(),
	}
	if err := p.publish(ctx, TopicOrderSubmitted, checkoutID, AggregateTypeCheckout, data); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "published checkout.order_submitted event",
		slog.String("checkout_id", checkoutID),
		slog.String("order_id", orderID),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, evt.WithContext(ctx)); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
