package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricing_rate_fallbacks_total",
		Help: "Line items priced with the absolute fallback rate because no rate source resolved.",
	})

	reservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservation_conflicts_total",
		Help: "Reservations that lost a race against a concurrent order and were retried or failed.",
	})

	ordersConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_confirmed_total",
		Help: "Orders that reached the CONFIRMED state.",
	})

	ordersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Orders that reached the CANCELLED state, by cancellation reason.",
	}, []string{"reason"})
)
