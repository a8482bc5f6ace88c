package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(conversationEventsTotal, rateLimitBlocksTotal) }

var conversationEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bot_conversation_events_total",
		Help: "Conversation events by current step and outcome.",
	},
	[]string{"step", "outcome"}, // outcome: ok | invalid | rate_limited | error
)

var rateLimitBlocksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "bot_rate_limit_blocks_total",
		Help: "Search actions rejected by the per-user rate limiter.",
	},
)

func IncConversationEvent(step, outcome string) {
	conversationEventsTotal.WithLabelValues(norm(step), norm(outcome)).Inc()
}

func IncRateLimitBlock() { rateLimitBlocksTotal.Inc() }
