// Package metrics exposes Prometheus collectors for the channel multiplexer
// and the frame registry, plus a small HTTP router serving them.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for inbound messages.
const (
	DropMalformed      = "malformed"
	DropUnknownChannel = "unknown_channel"
	DropOversize       = "oversize"
)

var (
	MessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "koala",
			Subsystem: "channel",
			Name:      "messages_sent_total",
			Help:      "Messages handed to the transport",
		},
	)

	MessagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "koala",
			Subsystem: "channel",
			Name:      "messages_received_total",
			Help:      "Messages routed to an open channel",
		},
	)

	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "koala",
			Subsystem: "channel",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages discarded before delivery",
		},
		[]string{"reason"},
	)

	FramesSpawned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "koala",
			Subsystem: "frame",
			Name:      "spawned_total",
			Help:      "Frames registered from spawn notifications",
		},
	)

	FramesDestroyed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "koala",
			Subsystem: "frame",
			Name:      "destroyed_total",
			Help:      "Frames removed from the registry",
		},
	)

	FramesAlive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "koala",
			Subsystem: "frame",
			Name:      "alive",
			Help:      "Frames currently registered",
		},
	)

	Callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "koala",
			Subsystem: "frame",
			Name:      "callbacks_total",
			Help:      "Native callback requests by name and whether an intercept handled them",
		},
		[]string{"name", "handled"},
	)

	RequestsBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "koala",
			Subsystem: "navigation",
			Name:      "blocked_total",
			Help:      "Requests refused by the navigation policy",
		},
		[]string{"rule"},
	)
)

// Rules reported by RequestsBlocked.
const (
	BlockPattern  = "pattern"
	BlockCallback = "callback"
)

func init() {
	prometheus.MustRegister(
		MessagesSent,
		MessagesReceived,
		MessagesDropped,
		FramesSpawned,
		FramesDestroyed,
		FramesAlive,
		Callbacks,
		RequestsBlocked,
	)
}

// ObserveCallback records a callback request.
func ObserveCallback(name string, handled bool) {
	h := "false"
	if handled {
		h = "true"
	}
	Callbacks.WithLabelValues(name, h).Inc()
}

// NewRouter returns a router serving /metrics and /healthz.
func NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
