package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(broadcastMessagesTotal, broadcastDuration) }

var broadcastMessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bot_broadcast_messages_total",
		Help: "Broadcast sends by outcome.",
	},
	[]string{"result"}, // sent | failed
)

var broadcastDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "bot_broadcast_duration_seconds",
		Help:    "Wall-clock duration of complete broadcast runs.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	},
)

func IncBroadcastMessage(result string) {
	broadcastMessagesTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveBroadcastDuration(seconds float64) {
	broadcastDuration.Observe(seconds)
}
