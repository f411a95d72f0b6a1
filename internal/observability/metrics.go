package observability

import "github.com/prometheus/client_golang/prometheus"

// Pipeline collectors. Labels stay low-cardinality: provider, outcome and
// intent only, never tenant or counterparty.
var (
	// InboundMessages counts webhook events by provider and how they ended.
	// Outcomes: accepted, duplicate, unresolved, inactive, bad_signature,
	// ignored, queue_full.
	InboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderbot_inbound_messages_total",
			Help: "Inbound provider messages by outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// OutboundSends counts reply deliveries by provider and outcome
	// (success, failure, no_channel).
	OutboundSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderbot_outbound_sends_total",
			Help: "Outbound replies by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// Generations counts generated replies by intent; fallbacks use "error".
	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderbot_generations_total",
			Help: "Generated replies by intent.",
		},
		[]string{"intent"},
	)

	GenerationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orderbot_generation_duration_seconds",
			Help:    "Latency of reply generation, including fallbacks.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
	)

	// OrderTransitions counts order state machine outcomes
	// (quoted, confirmed, cancelled, reprompted).
	OrderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderbot_order_transitions_total",
			Help: "Order confirmation state machine transitions.",
		},
		[]string{"transition"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orderbot_queue_depth",
			Help: "Inbound messages waiting for a worker.",
		},
	)
)

func init() {
	prometheus.MustRegister(InboundMessages, OutboundSends, Generations, GenerationLatency, OrderTransitions, QueueDepth)
}
