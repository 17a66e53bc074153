package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "pm_arb_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

func (p promCounter) Add(delta float64) {
	if delta > 0 {
		p.counter.Add(delta)
	}
}

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	oppsDetected  prometheus.Counter
	oppsRejected  prometheus.Counter
	ordersSubmit  prometheus.Counter
	ordersFailed  prometheus.Counter
	stopLoss      prometheus.Counter
	feedDropped   prometheus.Counter
	intentDropped prometheus.Counter
	resyncs       prometheus.Counter
	invalidBooks  prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	oppsDetected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "opportunities_detected_total",
		Help:      "Total number of arbitrage opportunities detected.",
	})
	oppsRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "opportunities_rejected_total",
		Help:      "Total number of opportunities rejected by risk checks.",
	})
	ordersSubmit := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_submitted_total",
		Help:      "Total number of order intents handed to the execution gateway.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of execution failures reported by the gateway.",
	})
	stopLoss := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "stop_loss_triggered_total",
		Help:      "Total number of forced exits from stop-loss breaches.",
	})
	feedDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "feed_updates_dropped_total",
		Help:      "Total number of book updates dropped on a full ingestion ring.",
	})
	intentDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "order_intents_dropped_total",
		Help:      "Total number of order intents dropped on a full execution ring.",
	})
	resyncs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "book_resyncs_total",
		Help:      "Total number of snapshot resyncs requested after sequence gaps.",
	})
	invalidBooks := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "invalid_books_total",
		Help:      "Total number of books quarantined for invariant violations.",
	})

	registry.MustRegister(oppsDetected, oppsRejected, ordersSubmit, ordersFailed,
		stopLoss, feedDropped, intentDropped, resyncs, invalidBooks)

	m := &Metrics{
		OpportunitiesDetected: promCounter{oppsDetected},
		OpportunitiesRejected: promCounter{oppsRejected},
		OrdersSubmitted:       promCounter{ordersSubmit},
		OrdersFailed:          promCounter{ordersFailed},
		StopLossTriggered:     promCounter{stopLoss},
		FeedDropped:           promCounter{feedDropped},
		IntentDropped:         promCounter{intentDropped},
		Resyncs:               promCounter{resyncs},
		InvalidBooks:          promCounter{invalidBooks},
	}

	return &Prometheus{
		Metrics:       m,
		registry:      registry,
		oppsDetected:  oppsDetected,
		oppsRejected:  oppsRejected,
		ordersSubmit:  ordersSubmit,
		ordersFailed:  ordersFailed,
		stopLoss:      stopLoss,
		feedDropped:   feedDropped,
		intentDropped: intentDropped,
		resyncs:       resyncs,
		invalidBooks:  invalidBooks,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
