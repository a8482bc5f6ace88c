package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dispatchTotal) }

var dispatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bot_dispatch_total",
		Help: "Outbound dispatch attempts by operation, result and whether the primary fallback was used.",
	},
	[]string{"op", "result", "fallback"},
)

func IncDispatch(op, result string, fallback bool) {
	dispatchTotal.WithLabelValues(norm(op), norm(result), strconv.FormatBool(fallback)).Inc()
}
