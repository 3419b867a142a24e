package metrics

import (
	"net/http"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "location"

// Metrics holds the collectors describing the acceptance engine and the
// position sources.
type Metrics struct {
	registry *prometheus.Registry

	samplesReceived     *prometheus.CounterVec
	samplesAccepted     *prometheus.CounterVec
	samplesRejected     *prometheus.CounterVec
	providerTransitions *prometheus.CounterVec
	providerAvailable   *prometheus.GaugeVec
	bestAccuracy        prometheus.Gauge
	bestTimestamp       prometheus.Gauge
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		samplesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_received_total",
			Help:      "Samples delivered by position sources.",
		}, []string{"provider"}),
		samplesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_accepted_total",
			Help:      "Samples that became the best location.",
		}, []string{"provider"}),
		samplesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_rejected_total",
			Help:      "Samples that did not replace the best location.",
		}, []string{"provider"}),
		providerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_transitions_total",
			Help:      "Availability changes of position sources.",
		}, []string{"provider", "state"}),
		providerAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_available",
			Help:      "1 when the position source is available.",
		}, []string{"provider"}),
		bestAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_accuracy_meters",
			Help:      "Accuracy of the best location, 0 when unknown.",
		}),
		bestTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_timestamp_millis",
			Help:      "Timestamp of the best location.",
		}),
	}

	m.registry.MustRegister(
		m.samplesReceived,
		m.samplesAccepted,
		m.samplesRejected,
		m.providerTransitions,
		m.providerAvailable,
		m.bestAccuracy,
		m.bestTimestamp,
	)
	return m
}

// ObserveSample counts a delivered sample and the engine's verdict.
func (m *Metrics) ObserveSample(provider location.ProviderID, accepted bool) {
	m.samplesReceived.WithLabelValues(string(provider)).Inc()
	if accepted {
		m.samplesAccepted.WithLabelValues(string(provider)).Inc()
	} else {
		m.samplesRejected.WithLabelValues(string(provider)).Inc()
	}
}

// ObserveBest records the current best location.
func (m *Metrics) ObserveBest(s *location.Sample) {
	if s.HasAccuracy {
		m.bestAccuracy.Set(s.Accuracy)
	} else {
		m.bestAccuracy.Set(0)
	}
	m.bestTimestamp.Set(float64(s.Timestamp))
}

// ObserveProvider records the availability of a source. changed counts a
// transition.
func (m *Metrics) ObserveProvider(provider location.ProviderID, available, changed bool) {
	state := "unavailable"
	value := 0.0
	if available {
		state = "available"
		value = 1
	}
	m.providerAvailable.WithLabelValues(string(provider)).Set(value)
	if changed {
		m.providerTransitions.WithLabelValues(string(provider), state).Inc()
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
