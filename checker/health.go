package checker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/circleci/mongomonitor/system"
)

var ErrNoPass = errors.New("no health check pass has completed yet")

// stalePasses is how many intervals may go by without a completed pass before the
// checker is considered stuck.
const stalePasses = 3

// HealthChecks reports ready once a pass has completed, and live while passes keep completing.
func (c *Checker) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	ready = func(_ context.Context) error {
		if _, ok := c.LastPass(); !ok {
			return ErrNoPass
		}
		return nil
	}
	live = func(_ context.Context) error {
		if c.interval <= 0 {
			return nil
		}
		since := c.created
		if p, ok := c.LastPass(); ok {
			since = p.Finished
		}
		if age := c.now().Sub(since); age > stalePasses*c.interval {
			return fmt.Errorf("no health check pass has completed for %s", age.Round(time.Second))
		}
		return nil
	}
	return "checker", ready, live
}

func (c *Checker) MetricName() string {
	return "checker"
}

func (c *Checker) Gauges(_ context.Context) map[string]float64 {
	p, ok := c.LastPass()
	if !ok {
		return map[string]float64{}
	}
	return map[string]float64{
		"members_checked":       float64(p.Members),
		"alerts":                float64(len(p.Alerts)),
		"last_pass_age_seconds": c.now().Sub(p.Finished).Seconds(),
	}
}

// AlertGauges reports the last pass's alerts tagged by kind.
func (c *Checker) AlertGauges() system.GaugeProducer {
	return alertGauges{c: c}
}

type alertGauges struct {
	c *Checker
}

func (g alertGauges) GaugeName() string {
	return "checker"
}

func (g alertGauges) Gauges(_ context.Context) map[string][]system.TaggedValue {
	p, ok := g.c.LastPass()
	if !ok {
		return nil
	}
	counts := map[string]int{}
	for _, a := range p.Alerts {
		counts[string(a.Kind)]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	values := make([]system.TaggedValue, 0, len(kinds))
	for _, k := range kinds {
		values = append(values, system.TaggedValue{Val: float64(counts[k]), Tags: []string{"kind:" + k}})
	}
	return map[string][]system.TaggedValue{"alerts_by_kind": values}
}
