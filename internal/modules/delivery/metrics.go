// README: Coordinator counters, exported on /metrics.
package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	acceptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flashfood",
		Subsystem: "delivery",
		Name:      "accepts_total",
		Help:      "Order acceptance attempts by outcome.",
	}, []string{"result"})

	advancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flashfood",
		Subsystem: "delivery",
		Name:      "advances_total",
		Help:      "Successful progress advances by resulting state.",
	}, []string{"state"})

	ordersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flashfood",
		Subsystem: "delivery",
		Name:      "orders_created_total",
		Help:      "Orders created through the coordinator.",
	})
)
