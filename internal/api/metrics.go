package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auction outcome label values.
const (
	outcomeOK       = "ok"
	outcomeBadInput = "bad_input"
	outcomeTimeout  = "timeout"
	outcomeError    = "error"
)

// latencyBuckets cover the range of auction timeouts, from a few
// milliseconds up to the multi-second tmax some callers send.
var latencyBuckets = []float64{.005, .01, .025, .05, .1, .2, .3, .5, .75, 1, 2, 5}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexing_http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vexing_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by route.",
			Buckets: latencyBuckets,
		},
		[]string{"method", "route"},
	)

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vexing_http_requests_in_flight",
		Help: "Number of HTTP requests currently being served.",
	})

	auctionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexing_auction_requests_total",
			Help: "Total number of auction requests by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInFlight, auctionRequestsTotal)

	for _, o := range []string{outcomeOK, outcomeBadInput, outcomeTimeout, outcomeError} {
		auctionRequestsTotal.WithLabelValues(o)
	}
}

// instrument records count, latency and concurrency for every request,
// labelled by chi route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routeLabel(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel is the matched route pattern, or "unmatched" for 404s so that
// arbitrary paths cannot grow the label set.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func metricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}
