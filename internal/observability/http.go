package observability

import "github.com/prometheus/client_golang/prometheus"

// UnmatchedRoute is the route label for requests no route matched.
const UnmatchedRoute = "unmatched"

// HTTP collectors, labelled by registered route so tenant ids and phone
// numbers in admin URLs never become label values.
var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderbot_http_requests_total",
			Help: "HTTP requests by method, route and status class.",
		},
		[]string{"method", "route", "class"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderbot_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{.005, .025, .1, .25, 1, 2.5, 10},
		},
		[]string{"route"},
	)

	HTTPInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orderbot_http_requests_inflight",
			Help: "HTTP requests currently being served.",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, HTTPInFlight)
}

// StatusClass folds a status code into "2xx", "4xx" and so on.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return string(rune('0'+status/100)) + "xx"
}
