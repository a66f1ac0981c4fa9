package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider implements Provider using prometheus counters
type PrometheusProvider struct {
	operations *prometheus.CounterVec
	denials    *prometheus.CounterVec
	panics     *prometheus.CounterVec
}

// NewPrometheusProvider creates a provider and registers its collectors
// with the given registerer. Pass prometheus.DefaultRegisterer for the
// default registry.
func NewPrometheusProvider(reg prometheus.Registerer, namespace string) *PrometheusProvider {
	if namespace == "" {
		namespace = "vertz"
	}

	p := &PrometheusProvider{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_operations_total",
			Help:      "Completed entity operations by entity, operation and HTTP status.",
		}, []string{"entity", "operation", "status"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_access_denials_total",
			Help:      "Access denials by entity and operation.",
		}, []string{"entity", "operation"}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_recovered_total",
			Help:      "Panics recovered by location.",
		}, []string{"location"}),
	}

	reg.MustRegister(p.operations, p.denials, p.panics)
	return p
}

func (p *PrometheusProvider) RecordOperation(entity, operation string, status int) {
	p.operations.WithLabelValues(entity, operation, strconv.Itoa(status)).Inc()
}

func (p *PrometheusProvider) RecordDenial(entity, operation string) {
	p.denials.WithLabelValues(entity, operation).Inc()
}

func (p *PrometheusProvider) RecordPanic(location string) {
	p.panics.WithLabelValues(location).Inc()
}
