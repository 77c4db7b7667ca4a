// Package metrics exposes the process-wide Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesAppended counts messages accepted into the chat log.
	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chatlog",
		Name:      "messages_appended_total",
		Help:      "Messages appended to the chat log.",
	})

	// FanoutDelivered counts messages enqueued to subscriber channels.
	FanoutDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "hub",
		Name:      "fanout_delivered_total",
		Help:      "Messages enqueued to subscriber channels.",
	})

	// FanoutDropped counts messages dropped because a subscriber queue was full.
	FanoutDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "hub",
		Name:      "fanout_dropped_total",
		Help:      "Messages dropped due to subscriber backpressure.",
	})

	// StaleMarks counts subscribers marked stale after a drop.
	StaleMarks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "hub",
		Name:      "stale_marks_total",
		Help:      "Subscribers marked stale after a dropped delivery.",
	})

	// Resyncs counts delivery sessions that re-read the log after going stale.
	Resyncs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "delivery",
		Name:      "resyncs_total",
		Help:      "Delivery session resyncs triggered by stale subscribers.",
	})

	// Subscribers tracks currently attached subscribers.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parley",
		Subsystem: "hub",
		Name:      "subscribers",
		Help:      "Currently attached subscribers.",
	})

	// HTTPRequests counts handled HTTP requests by route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "status"})
)
