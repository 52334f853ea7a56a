package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverMetrics holds the collectors of one server, each on its own registry.
type serverMetrics struct {
	registry        *prometheus.Registry
	sessionsCreated prometheus.Counter
	feedback        *prometheus.CounterVec
	shares          *prometheus.CounterVec
	leaderboard     *prometheus.CounterVec
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

func newServerMetrics(activeSessions func() float64) *serverMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nameplay_sessions_active",
		Help: "Number of dialogue sessions currently held in memory.",
	}, activeSessions)

	return &serverMetrics{
		registry: reg,
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "nameplay_sessions_created_total",
			Help: "Total number of dialogue sessions created.",
		}),
		feedback: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nameplay_feedback_total",
			Help: "Ratings left on generated names, by rating.",
		}, []string{"rating"}),
		shares: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nameplay_shares_total",
			Help: "Share attempts, by delivery status.",
		}, []string{"status"}),
		leaderboard: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nameplay_leaderboard_loads_total",
			Help: "Leaderboard page loads, by outcome.",
		}, []string{"outcome"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nameplay_http_requests_total",
			Help: "HTTP requests, by route and status code.",
		}, []string{"route", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nameplay_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument counts requests by the mux pattern that will serve them.
func (m *serverMetrics) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, route := mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
