// Package metrics exports run metrics in the Prometheus text format so a
// node exporter textfile collector can pick them up after a batch run.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sceneselect/internal/core"
	"sceneselect/pkg/domain"
)

const namespace = "sceneselect"

// Recorder implements core.MetricsRecorder on a private registry.
type Recorder struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	duration  prometheus.Histogram
	worklist  prometheus.Gauge
	lastRun   prometheus.Gauge
	now       func() time.Time
}

var _ core.MetricsRecorder = (*Recorder)(nil)

// New registers the run metrics. constLabels, such as the command name, are
// attached to every series.
func New(constLabels prometheus.Labels) (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decisions_total",
			Help:        "Candidate decisions by product, outcome and reason.",
			ConstLabels: constLabels,
		}, []string{"product", "outcome", "reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help:        "Wall time of a selection run.",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
			ConstLabels: constLabels,
		}),
		worklist: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "worklist_size",
			Help:        "Scenes queued by the last run.",
			ConstLabels: constLabels,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds",
			Help:        "Unix time the last run finished.",
			ConstLabels: constLabels,
		}),
		now: time.Now,
	}
	for _, c := range []prometheus.Collector{r.decisions, r.duration, r.worklist, r.lastRun} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return r, nil
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveDecision counts one decision.
func (r *Recorder) ObserveDecision(d domain.Decision) {
	r.decisions.WithLabelValues(d.Product, string(d.Outcome), string(d.Reason)).Inc()
}

// ObserveRun records the run duration and work-list size.
func (r *Recorder) ObserveRun(duration time.Duration, admitted int) {
	r.duration.Observe(duration.Seconds())
	r.worklist.Set(float64(admitted))
	r.lastRun.Set(float64(r.now().Unix()))
}

// WriteTextfile atomically writes the registry to path.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("textfile path required")
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
