package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/mongomonitor/internal/syncbuffer"
	"github.com/circleci/mongomonitor/o11y"
	"github.com/circleci/mongomonitor/o11y/honeycomb"
	"github.com/circleci/mongomonitor/testing/testcontext"
)

func fakeTicker(ticks chan time.Time) func(time.Duration) (<-chan time.Time, func()) {
	return func(time.Duration) (<-chan time.Time, func()) {
		return ticks, func() {}
	}
}

func TestRunEvery_RunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(testcontext.Background())
	defer cancel()

	ran := make(chan struct{}, 1)
	finished := make(chan struct{})
	go func() {
		RunEvery(ctx, EveryConfig{
			Name:     "immediate",
			Interval: time.Hour,
			WorkFunc: func(ctx context.Context) error {
				ran <- struct{}{}
				return nil
			},
		})
		close(finished)
	}()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("work did not run before the first tick")
	}
	cancel()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("RunEvery did not exit on cancel")
	}
}

func TestRunEvery_RunsOnEachTick(t *testing.T) {
	ctx, cancel := context.WithCancel(testcontext.Background())
	defer cancel()

	ticks := make(chan time.Time)
	ran := make(chan int)
	calls := 0
	finished := make(chan struct{})
	go func() {
		RunEvery(ctx, EveryConfig{
			Name:     "ticks",
			Interval: time.Minute,
			WorkFunc: func(ctx context.Context) error {
				calls++
				ran <- calls
				return nil
			},
			newTicker: fakeTicker(ticks),
		})
		close(finished)
	}()

	assert.Check(t, cmp.Equal(<-ran, 1))
	for want := 2; want <= 3; want++ {
		// the previous run may still be finishing, keep ticking until it is picked up
		assert.Check(t, cmp.Equal(tickUntilRun(t, ticks, ran), want))
	}
	cancel()
	<-finished
}

func TestRunEvery_SkipsTicksWhileRunning(t *testing.T) {
	buf := &syncbuffer.SyncBuffer{}
	h := honeycomb.New(honeycomb.Config{Format: "json", Writer: buf})
	ctx, cancel := context.WithCancel(o11y.WithProvider(context.Background(), h))
	defer cancel()

	ticks := make(chan time.Time)
	ran := make(chan int, 1)
	release := make(chan struct{})
	var calls int32
	finished := make(chan struct{})
	go func() {
		RunEvery(ctx, EveryConfig{
			Name:     "slow",
			Interval: time.Minute,
			WorkFunc: func(ctx context.Context) error {
				n := atomic.AddInt32(&calls, 1)
				ran <- int(n)
				if n == 1 {
					<-release
				}
				return nil
			},
			newTicker: fakeTicker(ticks),
		})
		close(finished)
	}()

	assert.Assert(t, cmp.Equal(<-ran, 1))
	for i := 0; i < 3; i++ {
		ticks <- time.Now()
	}
	assert.Check(t, cmp.Equal(atomic.LoadInt32(&calls), int32(1)), "ticks during a run must not start another")

	close(release)
	assert.Check(t, cmp.Equal(tickUntilRun(t, ticks, ran), 2))
	cancel()
	<-finished

	assert.Check(t, cmp.Contains(buf.String(), `"name":"worker: tick skipped"`))
	assert.Check(t, cmp.Contains(buf.String(), `"app.skipped_ticks":3`))
}

func TestRunEvery_CancelsRunInProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(testcontext.Background())

	started := make(chan struct{})
	var runErr atomic.Value
	finished := make(chan struct{})
	go func() {
		RunEvery(ctx, EveryConfig{
			Name:     "cancelled",
			Interval: time.Hour,
			WorkFunc: func(ctx context.Context) error {
				close(started)
				<-ctx.Done()
				runErr.Store(ctx.Err())
				return ctx.Err()
			},
		})
		close(finished)
	}()

	<-started
	cancel()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("RunEvery did not wait for the run to stop")
	}
	assert.Check(t, cmp.Equal(runErr.Load(), context.Canceled))
}

func tickUntilRun(t *testing.T, ticks chan<- time.Time, ran <-chan int) int {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case n := <-ran:
			return n
		case ticks <- time.Now():
		case <-timeout:
			t.Fatal("no run started")
			return 0
		}
	}
}
