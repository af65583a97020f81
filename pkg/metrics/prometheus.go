package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	transitionsTotal        *prometheus.CounterVec
	validationFailuresTotal *prometheus.CounterVec
	commitsTotal            *prometheus.CounterVec
	commitDuration          *prometheus.HistogramVec
	sideEffectsTotal        *prometheus.CounterVec
	uploadsTotal            *prometheus.CounterVec
	uploadBytesTotal        prometheus.Counter
	notificationsTotal      *prometheus.CounterVec
}

// NewPrometheusRecorder registers the workflow collectors on reg under namespace.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_transitions_total",
				Help:      "Workflow state changes by source and destination state",
			},
			[]string{"from", "to"},
		),
		validationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Submits rejected before any network call",
			},
			[]string{"kind"},
		),
		commitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commits_total",
				Help:      "Commit phase outcomes",
			},
			[]string{"outcome"},
		),
		commitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "commit_duration_seconds",
				Help:      "Duration of the approval submission and transition commit",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		sideEffectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "side_effects_total",
				Help:      "Post-commit side effects by result",
			},
			[]string{"result"},
		),
		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "File uploads by result",
			},
			[]string{"result"},
		),
		uploadBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_bytes_total",
				Help:      "Bytes moved into durable storage",
			},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification step resolutions by outcome and audience",
			},
			[]string{"outcome", "audience"},
		),
	}
}

// ObserveTransition implements Recorder.
func (p *PrometheusRecorder) ObserveTransition(from, to string) {
	p.transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveValidationFailure implements Recorder.
func (p *PrometheusRecorder) ObserveValidationFailure(kind string) {
	p.validationFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveCommit implements Recorder.
func (p *PrometheusRecorder) ObserveCommit(outcome string, duration time.Duration) {
	p.commitsTotal.WithLabelValues(outcome).Inc()
	p.commitDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveSideEffects implements Recorder.
func (p *PrometheusRecorder) ObserveSideEffects(succeeded, failed int) {
	p.sideEffectsTotal.WithLabelValues("success").Add(float64(succeeded))
	p.sideEffectsTotal.WithLabelValues("failure").Add(float64(failed))
}

// ObserveUpload implements Recorder.
func (p *PrometheusRecorder) ObserveUpload(success bool, bytes int64) {
	if !success {
		p.uploadsTotal.WithLabelValues("failure").Inc()
		return
	}
	p.uploadsTotal.WithLabelValues("success").Inc()
	p.uploadBytesTotal.Add(float64(bytes))
}

// ObserveNotification implements Recorder.
func (p *PrometheusRecorder) ObserveNotification(outcome, audience string) {
	p.notificationsTotal.WithLabelValues(outcome, audience).Inc()
}

// WriteText writes every metric family gathered from g in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
