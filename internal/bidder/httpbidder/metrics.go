package httpbidder

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for bidder call outcomes.
const (
	statusBids      = "bids"
	statusNoBid     = "no_bid"
	statusFailed    = "failed"
	statusCancelled = "cancelled"
)

var (
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vexing_bidder_request_seconds",
			Help:    "Duration of HTTP calls to bidders, in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"bidder"},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexing_bidder_requests_total",
			Help: "Total number of HTTP calls made to bidders.",
		},
		[]string{"bidder", "status"},
	)
)

func init() {
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(requestsTotal)
}
