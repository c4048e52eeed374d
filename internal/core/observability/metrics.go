package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"upstream", "outcome"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlap_uploads_total",
			Help: "Analysis uploads by outcome.",
		},
		[]string{"outcome"},
	)

	uploadFeatures = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "overlap_upload_features",
			Help:    "Number of result rows returned per successful upload.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	geometryParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geometry_parse_errors_total",
			Help: "Result rows whose geometry could not be parsed for a map view.",
		},
		[]string{"path"},
	)

	sessionStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_store_op_total",
			Help: "Session store operations by op and result.",
		},
		[]string{"store", "op", "result"},
	)

	eventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_events_consumed_total",
			Help: "Analysis events read from Kafka by result.",
		},
		[]string{"result"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

// Collectors lists the application collectors so they can be exposed from a
// dedicated registry as well as the default one.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		uploadsTotal,
		uploadFeatures,
		geometryParseErrors,
		sessionStoreOps,
		eventsConsumed,
	}
}

// Init registers the application collectors on reg. Registering twice is a no-op.
func Init(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream, outcome string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, outcome).Observe(durationSeconds)
}

// outcome is one of ok, transport_error, application_error, stale.
func IncUpload(outcome string) {
	uploadsTotal.WithLabelValues(outcome).Inc()
}

func ObserveUploadFeatures(n int) {
	uploadFeatures.Observe(float64(n))
}

// path is "row" or "collection".
func IncGeometryParseError(path string) {
	geometryParseErrors.WithLabelValues(path).Inc()
}

func ObserveSessionStoreOp(store, op string, err error) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	sessionStoreOps.WithLabelValues(store, op, res).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

// result is one of ok, skipped, decode_error, handler_error.
func IncEventConsumed(result string) {
	eventsConsumed.WithLabelValues(result).Inc()
}
