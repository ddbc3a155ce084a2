package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var modeLabel atomic.Value

func init() {
	modeLabel.Store("proxy")
}

func SetMode(s string) {
	if s == "" {
		s = "proxy"
	}
	modeLabel.Store(s)
}

func getMode() string {
	if v := modeLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "proxy"
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "mode"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "mode"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of geoprocessing service calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"op", "mode"},
	)

	clicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watershed_clicks_total",
			Help: "Point selections by dispatch result (submitted, busy, no_client).",
		},
		[]string{"dispatch", "mode"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watershed_jobs_total",
			Help: "Resolved job submissions by outcome.",
		},
		[]string{"outcome", "mode"},
	)

	jobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watershed_job_duration_seconds",
			Help:    "Time from submission to a terminal job status.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"outcome", "mode"},
	)

	resultFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watershed_result_fetches_total",
			Help: "Result data fetches by output parameter and result.",
		},
		[]string{"param", "result", "mode"},
	)

	processingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watershed_processing",
			Help: "1 while a job submission is in flight.",
		},
	)

	credentialOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_store_ops_total",
			Help: "Credential store operations by backend, op and result.",
		},
		[]string{"backend", "op", "result"},
	)

)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	m := getMode()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, m).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, m).Observe(durationSeconds)
}

func ObserveUpstreamLatency(op string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(op, getMode()).Observe(durationSeconds)
}

func IncClick(dispatch string) {
	clicksTotal.WithLabelValues(dispatch, getMode()).Inc()
}

func ObserveJob(outcome string, durationSeconds float64) {
	m := getMode()
	jobsTotal.WithLabelValues(outcome, m).Inc()
	jobDurationSeconds.WithLabelValues(outcome, m).Observe(durationSeconds)
}

func IncResultFetch(param string, err error) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	resultFetchesTotal.WithLabelValues(param, res, getMode()).Inc()
}

func SetProcessing(on bool) {
	if on {
		processingGauge.Set(1)
		return
	}
	processingGauge.Set(0)
}

func ObserveCredentialOp(backend, op string, err error) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	credentialOpsTotal.WithLabelValues(backend, op, res).Inc()
}
