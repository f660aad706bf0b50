package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer receives billing telemetry.
type Observer interface {
	RecordWebhook(provider Provider, kind EventKind, code string)
	RecordGrant(provider Provider, plan PlanTier)
	RecordProviderCall(provider Provider, operation string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) RecordWebhook(Provider, EventKind, string)                 {}
func (nopObserver) RecordGrant(Provider, PlanTier)                            {}
func (nopObserver) RecordProviderCall(Provider, string, time.Duration, error) {}

// PrometheusObserver exports billing metrics.
type PrometheusObserver struct {
	webhooks *prometheus.CounterVec
	grants   *prometheus.CounterVec
	calls    *prometheus.HistogramVec
}

// NewPrometheusObserver registers the billing collectors on reg, or the
// default registerer when reg is nil.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by provider, event kind and outcome code.",
		}, []string{"provider", "kind", "outcome"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "quota_grants_total",
			Help:      "Quota grants applied to entitlements.",
		}, []string{"provider", "plan"}),
		calls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billing",
			Name:      "provider_api_duration_seconds",
			Help:      "Latency of outbound payment provider API calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation", "result"}),
	}

	for _, c := range []prometheus.Collector{o.webhooks, o.grants, o.calls} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("billing: register metric: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) RecordWebhook(provider Provider, kind EventKind, code string) {
	if kind == "" {
		kind = "unknown"
	}
	o.webhooks.WithLabelValues(string(provider), string(kind), code).Inc()
}

func (o *PrometheusObserver) RecordGrant(provider Provider, plan PlanTier) {
	o.grants.WithLabelValues(string(provider), string(plan)).Inc()
}

func (o *PrometheusObserver) RecordProviderCall(provider Provider, operation string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.calls.WithLabelValues(string(provider), operation, result).Observe(d.Seconds())
}
