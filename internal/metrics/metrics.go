package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "feature_qa"

// Outcome labels recorded for steps and workflows.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Recorder collects step and workflow metrics for a single process.
type Recorder struct {
	registry  *prometheus.Registry
	steps     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	workflows *prometheus.CounterVec
}

// NewRecorder registers the feature-qa collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of lifecycle steps executed per repository",
			},
			[]string{"step", "outcome"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Lifecycle step latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"step"},
		),
		workflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_total",
				Help:      "Total number of workflow invocations",
			},
			[]string{"workflow", "outcome"},
		),
	}
	r.registry.MustRegister(r.steps, r.durations, r.workflows)
	return r
}

// ObserveStep records a finished step for one repository.
func (r *Recorder) ObserveStep(step, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.steps.WithLabelValues(step, outcome).Inc()
	r.durations.WithLabelValues(step).Observe(elapsed.Seconds())
}

// ObserveWorkflow records a finished deploy, reset or validate invocation.
func (r *Recorder) ObserveWorkflow(workflow, outcome string) {
	if r == nil {
		return
	}
	r.workflows.WithLabelValues(workflow, outcome).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Push sends the collected metrics to a Pushgateway. The job is grouped by run id so
// concurrent runs do not overwrite each other.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job, runID string) error {
	if r == nil {
		return nil
	}
	gatewayURL = strings.TrimSpace(gatewayURL)
	if gatewayURL == "" {
		return nil
	}
	if job == "" {
		job = "feature_qa"
	}

	pusher := push.New(gatewayURL, job).Gatherer(r.registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
