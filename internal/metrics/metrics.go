package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway intake
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildrelay_events_received_total",
			Help: "Total number of gateway events received",
		},
		[]string{"event_type"},
	)

	EventsFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildrelay_events_filtered_total",
			Help: "Total number of gateway events dropped before delivery",
		},
		[]string{"event_type", "reason"},
	)

	SpamSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildrelay_spam_signals_total",
			Help: "Total number of spam-pattern labels attached to forwarded messages",
		},
		[]string{"signal"},
	)

	HandlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guildrelay_handler_panics_total",
			Help: "Total number of recovered panics in event handlers and deliveries",
		},
	)

	// Webhook delivery
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildrelay_deliveries_total",
			Help: "Total number of webhook delivery attempts by outcome",
		},
		[]string{"event_type", "outcome"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guildrelay_delivery_duration_seconds",
			Help:    "Duration of webhook POSTs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	DeliveriesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guildrelay_deliveries_in_flight",
			Help: "Number of webhook POSTs currently awaiting a response",
		},
	)

	MirrorErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guildrelay_mirror_publish_errors_total",
			Help: "Total number of envelopes that failed to publish to the message bus",
		},
	)

	// Gateway session
	GatewayConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guildrelay_gateway_connected",
			Help: "1 while the gateway session is connected",
		},
	)
)
