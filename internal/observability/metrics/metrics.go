package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	TenantResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_tenant_resolutions_total",
			Help: "Total number of tenant resolutions by signal.",
		},
		[]string{"service", "via", "result"},
	)

	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_logins_total",
			Help: "Total number of login attempts by method.",
		},
		[]string{"service", "method", "result"},
	)

	StepUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_step_ups_total",
			Help: "Total number of multi-factor step-up attempts.",
		},
		[]string{"service", "method", "result"},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_tokens_issued_total",
			Help: "Total number of bearer tokens issued or promoted.",
		},
		[]string{"service", "token_type", "result"},
	)

	CeremoniesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_webauthn_ceremonies_total",
			Help: "Total number of WebAuthn ceremonies by phase.",
		},
		[]string{"service", "phase", "result"},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName}).(*prometheus.HistogramVec)
	TenantResolutionsTotal = TenantResolutionsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	LoginsTotal = LoginsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	StepUpsTotal = StepUpsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	TokensIssuedTotal = TokensIssuedTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	CeremoniesTotal = CeremoniesTotal.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		TenantResolutionsTotal,
		LoginsTotal,
		StepUpsTotal,
		TokensIssuedTotal,
		CeremoniesTotal,
	)
}
