package cupid

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// clientMetrics records one observation per completed HTTP round trip.
// Routes are the templated paths (e.g. "/user/{id}") to keep label cardinality bounded.
type clientMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cupid",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Requests made to the Cupid API by method, route and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cupid",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Latency of requests to the Cupid API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *clientMetrics) observe(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	// status 0 means the request never produced a response
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
