package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_http_requests_total",
			Help: "Total HTTP requests by method and status code",
		}, []string{"method", "code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "optimizer_http_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "optimizer_http_in_flight",
		Help: "In-flight HTTP requests",
	})
	SweepTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_sweep_triggers_total",
			Help: "Sweeps started, by trigger source",
		}, []string{"source"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal, Latency, InFlight, SweepTriggers)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rr.code)).Inc()
	})
}
