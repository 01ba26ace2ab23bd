// Package metrics holds the Prometheus collectors for the coordinate
// graph, its delegators and the tracking loops.
//
// Every helper method is safe to call on a nil *Metrics, so components can
// be built without instrumentation in tests.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "coordsys"

// Metrics contains every collector exported by the module.
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	UnhandledInputs    *prometheus.CounterVec
	SamplesAcquired    *prometheus.CounterVec
	SamplesApplied     *prometheus.CounterVec
	SamplesDropped     *prometheus.CounterVec
	AcquisitionErrors  *prometheus.CounterVec
	StaleResolutions   prometheus.Counter
	ResolveDuration    prometheus.Histogram
	RecorderWriteFails prometheus.Counter
	RecorderDropped    *prometheus.CounterVec
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "delegator",
				Name:      "events_total",
				Help:      "Events emitted by coordinate-system delegators",
			},
			[]string{"kind"},
		),

		UnhandledInputs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fsm",
				Name:      "unhandled_inputs_total",
				Help:      "Inputs that arrived in a state with no transition",
			},
			[]string{"state", "input"},
		),

		SamplesAcquired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tracking",
				Name:      "samples_acquired_total",
				Help:      "Samples written into the acquisition buffer",
			},
			[]string{"tool"},
		),

		SamplesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tracking",
				Name:      "samples_applied_total",
				Help:      "Samples turned into transform requests by the poller",
			},
			[]string{"tool"},
		),

		SamplesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tracking",
				Name:      "samples_dropped_total",
				Help:      "Samples for tools with no bound or live delegator",
			},
			[]string{"tool"},
		),

		AcquisitionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tracking",
				Name:      "acquisition_errors_total",
				Help:      "Errors returned by tracking sources",
			},
			[]string{"source"},
		),

		StaleResolutions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "stale_resolutions_total",
				Help:      "Resolved transforms whose window excluded the query time",
			},
		),

		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "resolve_duration_seconds",
				Help:      "Time spent resolving transforms between nodes",
				Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3},
			},
		),

		RecorderWriteFails: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "write_failures_total",
				Help:      "Session recorder writes that failed",
			},
		),

		RecorderDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "dropped_records_total",
				Help:      "Events and samples not recorded because the write queue was full",
			},
			[]string{"record"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventsTotal,
		m.UnhandledInputs,
		m.SamplesAcquired,
		m.SamplesApplied,
		m.SamplesDropped,
		m.AcquisitionErrors,
		m.StaleResolutions,
		m.ResolveDuration,
		m.RecorderWriteFails,
		m.RecorderDropped,
	}
}

// Register registers every collector. Collectors already registered with
// reg are tolerated.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// NewRegistry creates a registry holding the module's collectors plus the
// Go runtime and process collectors.
func NewRegistry() (*prometheus.Registry, *Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := New()
	if err := m.Register(reg); err != nil {
		return nil, nil, err
	}
	return reg, m, nil
}

// ObserveEvent counts an emitted delegator event.
func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// ObserveUnhandled counts an unhandled state machine input.
func (m *Metrics) ObserveUnhandled(state, input string) {
	if m == nil {
		return
	}
	m.UnhandledInputs.WithLabelValues(state, input).Inc()
}

// ObserveResolve records one path resolution.
func (m *Metrics) ObserveResolve(d time.Duration, stale bool) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(d.Seconds())
	if stale {
		m.StaleResolutions.Inc()
	}
}

// ObserveAcquired counts a sample written into the acquisition buffer.
func (m *Metrics) ObserveAcquired(tool string) {
	if m == nil {
		return
	}
	m.SamplesAcquired.WithLabelValues(tool).Inc()
}

// ObserveApplied counts a sample turned into a transform request.
func (m *Metrics) ObserveApplied(tool string) {
	if m == nil {
		return
	}
	m.SamplesApplied.WithLabelValues(tool).Inc()
}

// ObserveDropped counts a sample with no bound or live delegator.
func (m *Metrics) ObserveDropped(tool string) {
	if m == nil {
		return
	}
	m.SamplesDropped.WithLabelValues(tool).Inc()
}

// ObserveAcquisitionError counts a failed source read.
func (m *Metrics) ObserveAcquisitionError(source string) {
	if m == nil {
		return
	}
	m.AcquisitionErrors.WithLabelValues(source).Inc()
}

// ObserveWriteFailure counts a failed recorder write.
func (m *Metrics) ObserveWriteFailure() {
	if m == nil {
		return
	}
	m.RecorderWriteFails.Inc()
}

// ObserveRecordDropped counts an event or sample the recorder had no room
// to queue. record is "event" or "sample".
func (m *Metrics) ObserveRecordDropped(record string) {
	if m == nil {
		return
	}
	m.RecorderDropped.WithLabelValues(record).Inc()
}
