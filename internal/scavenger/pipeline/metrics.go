package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/scavenger/internal/scavenger/l3correlate"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
)

const metricsNamespace = "scavenger"

// Metrics are the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Batches         prometheus.Counter
	Records         prometheus.Counter
	Windows         *prometheus.CounterVec
	Groups          prometheus.Counter
	Decisions       *prometheus.CounterVec
	GroupErrors     *prometheus.CounterVec
	LocalizeSeconds prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg. Every
// window and decision label is initialised at zero so dashboards see the
// full series set from the first scrape.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_total",
			Help:      "Capture batches processed.",
		}),
		Records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_total",
			Help:      "Detection records received.",
		}),
		Windows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "windows_total",
			Help:      "Windows emitted by the windower, by correlation outcome.",
		}, []string{"outcome"}),
		Groups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "groups_total",
			Help:      "Aggregated (ie, claimed id) groups.",
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Identity resolver decisions, by outcome.",
		}, []string{"outcome"}),
		GroupErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "group_errors_total",
			Help:      "Groups that failed to localize or resolve, by stage.",
		}, []string{"stage"}),
		LocalizeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "localize_duration_seconds",
			Help:      "Time spent localizing one group.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Batches, m.Records, m.Windows, m.Groups, m.Decisions, m.GroupErrors, m.LocalizeSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	for _, o := range []l3correlate.Outcome{l3correlate.Kept, l3correlate.TooFewSniffers, l3correlate.NoCommonFingerprint} {
		m.Windows.WithLabelValues(o.String())
	}
	for _, o := range l6identity.Outcomes {
		m.Decisions.WithLabelValues(string(o))
	}
	m.GroupErrors.WithLabelValues(stageLocalize)
	m.GroupErrors.WithLabelValues(stageResolve)
	return m, nil
}

const (
	stageLocalize = "localize"
	stageResolve  = "resolve"
)

func (m *Metrics) batch(records int) {
	if m == nil {
		return
	}
	m.Batches.Inc()
	m.Records.Add(float64(records))
}

func (m *Metrics) window(o l3correlate.Outcome) {
	if m == nil {
		return
	}
	m.Windows.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) groups(n int) {
	if m == nil {
		return
	}
	m.Groups.Add(float64(n))
}

func (m *Metrics) localized(d time.Duration) {
	if m == nil {
		return
	}
	m.LocalizeSeconds.Observe(d.Seconds())
}

func (m *Metrics) decision(o l6identity.Outcome) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) groupErrors(stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.GroupErrors.WithLabelValues(stage).Add(float64(n))
}
