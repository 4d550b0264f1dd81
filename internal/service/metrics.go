package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cartMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Cart mutations by operation and outcome",
		},
		[]string{"op", "result"},
	)

	promoApplicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_promo_applications_total",
			Help: "Promo code applications by outcome",
		},
		[]string{"result"},
	)

	orderSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_submissions_total",
			Help: "Order submissions by outcome",
		},
		[]string{"result"},
	)

	openCarts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_open_carts",
			Help: "Number of cart stores currently held in memory",
		},
	)

	stockAdjustmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_stock_adjustments_total",
			Help: "Carts changed by inventory stock updates",
		},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
