package worker

import (
	"context"
	"time"

	"github.com/circleci/mongomonitor/o11y"
)

type EveryConfig struct {
	Name     string
	Interval time.Duration
	// MaxWorkTime bounds each run, zero leaves runs bounded only by the context.
	MaxWorkTime time.Duration
	WorkFunc    func(ctx context.Context) error

	newTicker func(d time.Duration) (<-chan time.Time, func())
}

// RunEvery calls WorkFunc straight away and then every Interval until ctx is done.
// A tick that fires while a run is still in progress is dropped, never queued, and the
// number dropped is recorded on the next run's span as skipped_ticks.
// The run in progress is cancelled with ctx and RunEvery waits for it before returning.
func RunEvery(ctx context.Context, cfg EveryConfig) {
	if cfg.newTicker == nil {
		cfg.newTicker = newTicker
	}
	ticks, stop := cfg.newTicker(cfg.Interval)
	defer stop()

	done := make(chan struct{})
	running := false
	skipped := 0

	start := func() {
		running = true
		fields := []o11y.Pair{o11y.Field("skipped_ticks", skipped)}
		skipped = 0
		go func() {
			defer func() { done <- struct{}{} }()
			_ = doWork(ctx, cfg.Name, cfg.MaxWorkTime, cfg.WorkFunc, fields)
		}()
	}

	start()
	for {
		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			return
		case <-done:
			running = false
		case <-ticks:
			if running {
				skipped++
				o11y.Log(ctx, "worker: tick skipped",
					o11y.Field("loop_name", cfg.Name),
					o11y.Field("skipped_ticks", skipped),
				)
				continue
			}
			start()
		}
	}
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
