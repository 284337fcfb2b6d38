package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatchedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_dispatched_events_total",
	Help: "The total number of invocation events by outcome",
}, []string{"kind", "outcome"})

var duplicateEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modbot_duplicate_events_total",
	Help: "The total number of redelivered events that were skipped",
})

var failuresClassified = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_failures_total",
	Help: "The total number of classified dispatch failures",
}, []string{"kind"})

var handlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "modbot_handler_duration_seconds",
	Help:    "A histogram of command handler latencies",
	Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
}, []string{"kind", "command"})

var activeLanes = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "modbot_active_lanes",
	Help: "The number of origins with a running dispatch lane",
})

var connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_connect_attempts_total",
	Help: "The total number of transport connection attempts by result",
}, []string{"result"})

var connectionStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "modbot_connection_state",
	Help: "The current transport connection state (0 disconnected, 1 connecting, 2 connected, 3 closing, 4 closed)",
})
