package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/circleci/mongomonitor/o11y"
)

var ErrShouldBackoff = errors.New("should back off")

type Config struct {
	Name          string
	NoWorkBackOff backoff.BackOff
	MaxWorkTime   time.Duration
	// WorkFunc should return ErrShouldBackoff if it wants the loop to begin backing off
	WorkFunc func(ctx context.Context) error
	waiter   func(ctx context.Context, delay time.Duration)
}

// Run a worker, which calls WorkFunc in a loop.
// Run exits when the context is cancelled. A call in progress is not cancelled with it,
// it runs until it returns or MaxWorkTime expires.
func Run(ctx context.Context, cfg Config) {
	cfg = setDefaults(cfg)
	cfg.NoWorkBackOff.Reset()

	for ctx.Err() == nil {
		err := doWork(o11y.Detach(ctx), cfg.Name, cfg.MaxWorkTime, cfg.WorkFunc, nil)
		if errors.Is(err, ErrShouldBackoff) {
			cfg.waiter(ctx, cfg.NoWorkBackOff.NextBackOff())
			continue
		}
		cfg.NoWorkBackOff.Reset()
	}
}

func setDefaults(cfg Config) Config {
	if cfg.waiter == nil {
		cfg.waiter = wait
	}
	if cfg.NoWorkBackOff == nil {
		cfg.NoWorkBackOff = defaultBackOff()
	}
	if cfg.MaxWorkTime == 0 {
		cfg.MaxWorkTime = time.Minute
	}
	return cfg
}

func wait(ctx context.Context, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func defaultBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval: time.Millisecond * 50,
		Multiplier:      2,
		MaxInterval:     time.Second * 5,
		MaxElapsedTime:  0,
		Clock:           backoff.SystemClock,
	}
	b.Reset()
	return b
}

// doWork runs a single call of the work func in its own span. A zero maxWorkTime means
// the call is only bounded by ctx.
func doWork(ctx context.Context, name string, maxWorkTime time.Duration, f func(context.Context) error,
	fields []o11y.Pair) (err error) {

	if maxWorkTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxWorkTime)
		defer cancel()
	}

	ctx, span := o11y.StartSpan(ctx, "worker loop: "+name)
	span.RecordMetric(o11y.Timing("worker_loop", "loop_name", "result"))
	span.AddField("loop_name", name)
	for _, f := range fields {
		span.AddField(f.Key, f.Value)
	}
	defer func() {
		spanErr := err
		if errors.Is(spanErr, ErrShouldBackoff) {
			spanErr = nil
		}
		o11y.End(span, &spanErr)
	}()

	// Handle panics so that loop worker behaves like net/http.ServerHTTP
	// https://github.com/golang/go/blob/2566e21/src/net/http/server.go#L79-L85
	defer func() {
		if r := recover(); r != nil {
			err = o11y.HandlePanic(ctx, span, r)
		}
	}()

	return f(ctx)
}
