package system

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/circleci/mongomonitor/o11y"
	"github.com/circleci/mongomonitor/termination"
)

// HealthChecker is implemented by anything that can report its own readiness and liveness.
// Either func may be nil.
type HealthChecker interface {
	HealthChecks() (name string, ready, live func(ctx context.Context) error)
}

type System struct {
	services        []func(context.Context) error
	healthChecks    []HealthChecker
	metricProducers []MetricProducer
	gaugeProducers  []GaugeProducer
	cleanups        []func(ctx context.Context) error
}

func New() *System {
	return &System{}
}

var terminationTestHook = termination.Handle

// Run starts every service and blocks until one of them fails, or the process is told to stop,
// in which case termination.ErrTerminated is returned.
func (r *System) Run(ctx context.Context) (err error) {
	ctx, uptimeSpan := o11y.StartSpan(ctx, "system: run")
	defer o11y.End(uptimeSpan, &err)
	uptimeSpan.RecordMetric(o11y.Timing("system.run", "result"))
	uptimeSpan.AddField("services", len(r.services))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return terminationTestHook(ctx)
	})

	for _, f := range r.services {
		// Capture the func, so we don't overwrite it when the goroutines start in parallel.
		f := f
		g.Go(func() error {
			return f(ctx)
		})
	}

	if len(r.metricProducers) > 0 || len(r.gaugeProducers) > 0 {
		g.Go(metricsReporter(ctx, r.metricProducers, r.gaugeProducers))
	}

	return g.Wait()
}

func (r *System) AddService(s func(ctx context.Context) error) {
	r.services = append(r.services, s)
}

func (r *System) AddHealthCheck(h HealthChecker) {
	r.healthChecks = append(r.healthChecks, h)
}

func (r *System) AddMetrics(m MetricProducer) {
	r.metricProducers = append(r.metricProducers, m)
}

func (r *System) AddGauges(g GaugeProducer) {
	r.gaugeProducers = append(r.gaugeProducers, g)
}

func (r *System) AddCleanup(c func(ctx context.Context) error) {
	r.cleanups = append(r.cleanups, c)
}

func (r *System) HealthChecks() []HealthChecker {
	return r.healthChecks
}

func (r *System) Cleanup(ctx context.Context) {
	for _, c := range r.cleanups {
		err := c(ctx)
		if err != nil {
			o11y.LogError(ctx, "system: cleanup error", err)
		}
	}
}
