package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Collector interface {
	ApiErrorOccurred()
	ServerPanicked(err error)
	RequestRateLimited(method string)
	OracleCallFailed(call string)
	UserOperationSubmitted(entryPoint string)
	MeasureRequestDuration(start time.Time, labels prometheus.Labels)
}

type DefaultCollector struct {
	apiErrorsCounter          prometheus.Counter
	serverPanicsCounters      *prometheus.CounterVec
	rateLimitedCounters       *prometheus.CounterVec
	oracleFailureCounters     *prometheus.CounterVec
	submittedOperationCounter *prometheus.CounterVec
	requestDurations          *prometheus.HistogramVec
}

func NewCollector(logger zerolog.Logger) Collector {
	apiErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "api_errors_total",
		Help: "Total number of errors returned by the endpoint resolvers",
	})

	serverPanicsCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_server_panics_total",
		Help: "Total number of panics handled by server",
	}, []string{"error"})

	rateLimitedCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_rate_limited_requests_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"method"})

	oracleFailureCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_call_failures_total",
		Help: "Total number of failed node or bundler calls",
	}, []string{"call"})

	submittedOperationCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "user_operations_submitted_total",
		Help: "Total number of user operations accepted by the bundler",
	}, []string{"entrypoint"})

	requestDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "Duration of requests made to the endpoint resolvers",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	metrics := []prometheus.Collector{
		apiErrors,
		serverPanicsCounters,
		rateLimitedCounters,
		oracleFailureCounters,
		submittedOperationCounter,
		requestDurations,
	}
	if err := registerMetrics(logger, metrics...); err != nil {
		logger.Info().Msg("using noop collector as metric register failed")
		return NewNoopCollector()
	}

	return &DefaultCollector{
		apiErrorsCounter:          apiErrors,
		serverPanicsCounters:      serverPanicsCounters,
		rateLimitedCounters:       rateLimitedCounters,
		oracleFailureCounters:     oracleFailureCounters,
		submittedOperationCounter: submittedOperationCounter,
		requestDurations:          requestDurations,
	}
}

func registerMetrics(logger zerolog.Logger, metrics ...prometheus.Collector) error {
	for _, m := range metrics {
		if err := prometheus.Register(m); err != nil {
			logger.Err(err).Msg("failed to register metric")
			return err
		}
	}

	return nil
}

func (c *DefaultCollector) ApiErrorOccurred() {
	c.apiErrorsCounter.Inc()
}

func (c *DefaultCollector) ServerPanicked(err error) {
	c.serverPanicsCounters.With(prometheus.Labels{"error": err.Error()}).Inc()
}

func (c *DefaultCollector) RequestRateLimited(method string) {
	c.rateLimitedCounters.With(prometheus.Labels{"method": method}).Inc()
}

func (c *DefaultCollector) OracleCallFailed(call string) {
	c.oracleFailureCounters.With(prometheus.Labels{"call": call}).Inc()
}

func (c *DefaultCollector) UserOperationSubmitted(entryPoint string) {
	c.submittedOperationCounter.With(prometheus.Labels{"entrypoint": entryPoint}).Inc()
}

func (c *DefaultCollector) MeasureRequestDuration(start time.Time, labels prometheus.Labels) {
	c.requestDurations.With(labels).Observe(time.Since(start).Seconds())
}
