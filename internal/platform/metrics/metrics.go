package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	DIDsDerived        prometheus.Counter
	DerivationFailures *prometheus.CounterVec

	CredentialsIssued   *prometheus.CounterVec
	IssueLatency        prometheus.Histogram
	CredentialsVerified *prometheus.CounterVec
	CredentialsRevoked  prometheus.Counter

	Resolutions   *prometheus.CounterVec
	ResolverCache *prometheus.CounterVec

	Enrollments *prometheus.CounterVec

	RateLimited     *prometheus.CounterVec
	RateLimitSweeps prometheus.Counter

	HTTPRequests *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics with reg instead of the global
// registry.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DIDsDerived: f.NewCounter(prometheus.CounterOpts{
			Name: "praman_dids_derived_total",
			Help: "Total number of DIDs derived",
		}),
		DerivationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "praman_did_derivation_failures_total",
			Help: "Total number of rejected derivation inputs, labeled by error code",
		}, []string{"code"}),
		CredentialsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "praman_credentials_issued_total",
			Help: "Total number of credentials issued, labeled by signing algorithm",
		}, []string{"alg"}),
		IssueLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "praman_credential_issue_latency_seconds",
			Help:    "Latency of credential canonicalization and signing in seconds",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		}),
		CredentialsVerified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "praman_credentials_verified_total",
			Help: "Total number of credential verifications, labeled by result",
		}, []string{"result"}),
		CredentialsRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "praman_credentials_revoked_total",
			Help: "Total number of credentials revoked",
		}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "praman_did_resolutions_total",
			Help: "Total number of DID resolutions, labeled by outcome",
		}, []string{"outcome"}),
		ResolverCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "praman_resolver_cache_total",
			Help: "Resolver cache lookups, labeled by result (hit, miss, error, bypass)",
		}, []string{"result"}),
		Enrollments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "praman_enrollments_total",
			Help: "Total number of enrollment verifications, labeled by outcome",
		}, []string{"outcome"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "praman_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter, labeled by endpoint class",
		}, []string{"class"}),
		RateLimitSweeps: f.NewCounter(prometheus.CounterOpts{
			Name: "praman_rate_limit_buckets_swept_total",
			Help: "Total number of idle in-memory rate limit buckets removed",
		}),
		HTTPRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "praman_http_request_duration_seconds",
			Help:    "HTTP request latency, labeled by route pattern, method and status class",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

func (m *Metrics) IncrementDIDsDerived() {
	if m == nil {
		return
	}
	m.DIDsDerived.Inc()
}

func (m *Metrics) IncrementDerivationFailure(code string) {
	if m == nil {
		return
	}
	m.DerivationFailures.WithLabelValues(code).Inc()
}

// ObserveIssue records one issued credential and its signing latency.
func (m *Metrics) ObserveIssue(alg string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CredentialsIssued.WithLabelValues(alg).Inc()
	m.IssueLatency.Observe(durationSeconds)
}

// IncrementVerification labels by "valid" or the failure reason.
func (m *Metrics) IncrementVerification(result string) {
	if m == nil {
		return
	}
	m.CredentialsVerified.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementRevoked() {
	if m == nil {
		return
	}
	m.CredentialsRevoked.Inc()
}

func (m *Metrics) IncrementResolution(outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementCache(result string) {
	if m == nil {
		return
	}
	m.ResolverCache.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementEnrollment(outcome string) {
	if m == nil {
		return
	}
	m.Enrollments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementRateLimited(class string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(class).Inc()
}

func (m *Metrics) AddRateLimitSweeps(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RateLimitSweeps.Add(float64(n))
}

// ObserveRequest records one served request. status is bucketed to its class
// ("2xx", "4xx") to bound label cardinality.
func (m *Metrics) ObserveRequest(route, method string, status int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, statusClass(status)).Observe(durationSeconds)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
