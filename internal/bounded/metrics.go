package bounded

import "github.com/prometheus/client_golang/prometheus"

var timeoutsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vexing_bounded_timeouts_total",
		Help: "Total number of bounded operations that ran out of time, by operation.",
	},
	[]string{"op"},
)

func init() {
	prometheus.MustRegister(timeoutsTotal)
}
