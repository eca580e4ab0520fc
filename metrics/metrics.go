// Package metrics exposes the service's prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ordersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "brokersim",
		Name:      "orders_placed_total",
		Help:      "Orders admitted to the pending set.",
	})
	ordersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "brokersim",
		Name:      "orders_rejected_total",
		Help:      "Orders rejected at admission.",
	})
	ordersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "brokersim",
		Name:      "orders_cancelled_total",
		Help:      "Orders cancelled before completion.",
	})
	executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brokersim",
		Name:      "executions_total",
		Help:      "Executions settled against the ledger.",
	}, []string{"symbol"})
	pendingOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "brokersim",
		Name:      "pending_orders",
		Help:      "Orders currently awaiting matching.",
	})
)

func OrderPlaced()    { ordersPlaced.Inc() }
func OrderRejected()  { ordersRejected.Inc() }
func OrderCancelled() { ordersCancelled.Inc() }

func ExecutionRecorded(symbol string) { executions.WithLabelValues(symbol).Inc() }

func PendingOrdersInc() { pendingOrders.Inc() }
func PendingOrdersDec() { pendingOrders.Dec() }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
