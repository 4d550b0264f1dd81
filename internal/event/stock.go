package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/angiebeauty/storefront/pkg/kafka"
)

// TopicStockChanged carries inventory level changes from the inventory service.
var TopicStockChanged = pkgkafka.Topic("inventory", "stock_changed")

// StockChangedData is the payload of an inventory.stock_changed event.
type StockChangedData struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
}

// StockApplier caps open carts to the new stock level and reports how many
// carts changed.
type StockApplier interface {
	ApplyStock(ctx context.Context, productID string, available int) (int, error)
}

// NewStockHandler returns a consumer handler that applies stock changes to
// open carts. Malformed payloads are skipped.
func NewStockHandler(applier StockApplier, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, evt *pkgkafka.Event) error {
		var data StockChangedData
		if err := evt.UnmarshalData(&data); err != nil {
			logger.WarnContext(ctx, "skipping malformed stock event",
				slog.String("event_id", evt.EventID),
				slog.String("error", err.Error()),
			)
			return pkgkafka.ErrSkip
		}
		if data.ProductID == "" || data.Available < 0 {
			logger.WarnContext(ctx, "skipping invalid stock event",
				slog.String("event_id", evt.EventID),
				slog.String("product_id", data.ProductID),
				slog.Int("available", data.Available),
			)
			return pkgkafka.ErrSkip
		}

		changed, err := applier.ApplyStock(ctx, data.ProductID, data.Available)
		if err != nil {
			return fmt.Errorf("apply stock for %s: %w", data.ProductID, err)
		}

		logger.InfoContext(ctx, "stock change applied",
			slog.String("product_id", data.ProductID),
			slog.Int("available", data.Available),
			slog.Int("carts_changed", changed),
		)
		return nil
	}
}
