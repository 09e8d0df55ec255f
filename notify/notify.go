// Package notify reports alerts: always to the log, and to a channel when one is configured.
//
// Delivery to the channel happens in the background. A failed delivery is logged and
// otherwise dropped, it never reaches the caller.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/circleci/mongomonitor/alert"
	"github.com/circleci/mongomonitor/o11y"
)

// Channel delivers a notification somewhere a human will see it.
type Channel interface {
	Send(ctx context.Context, subject string, err error) error
}

type Notifier struct {
	channel         Channel
	deliveryTimeout time.Duration

	mu       sync.Mutex
	closed   bool
	inFlight sync.WaitGroup
}

// New creates a Notifier. A nil channel gives a Notifier that only logs.
func New(channel Channel) *Notifier {
	return &Notifier{
		channel:         channel,
		deliveryTimeout: 30 * time.Second,
	}
}

// Notify logs err and queues its delivery. An empty subject uses alert.DefaultSubject.
func (n *Notifier) Notify(ctx context.Context, subject string, err error) {
	if subject == "" {
		subject = alert.DefaultSubject
	}
	fields := alertFields(subject, err)
	kind := alert.KindOf(err)
	if kind == "" {
		kind = "other"
	}
	o11y.LogError(ctx, "alert", err, fields...)
	_ = o11y.FromContext(ctx).MetricsProvider().Count("alert", 1, []string{"kind:" + string(kind)}, 1)

	if n.channel == nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		o11y.Log(ctx, "notify: closed, not delivering", fields...)
		return
	}
	n.inFlight.Add(1)
	go n.deliver(o11y.Detach(ctx), subject, err, fields)
}

func (n *Notifier) deliver(ctx context.Context, subject string, alertErr error, fields []o11y.Pair) {
	defer n.inFlight.Done()
	ctx, cancel := context.WithTimeout(ctx, n.deliveryTimeout)
	defer cancel()

	ctx, span := o11y.StartSpan(ctx, "notify: deliver")
	var err error
	defer o11y.End(span, &err)
	for _, f := range fields {
		span.AddField(f.Key, f.Value)
	}
	defer func() {
		if r := recover(); r != nil {
			err = o11y.HandlePanic(ctx, span, r)
		}
	}()

	err = n.channel.Send(ctx, subject, alertErr)
	if err != nil {
		o11y.LogError(ctx, "notify: delivery failed", err, fields...)
	}
}

// Close stops new deliveries and waits for those in flight, up to ctx's deadline.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func alertFields(subject string, err error) []o11y.Pair {
	fields := []o11y.Pair{o11y.Field("subject", subject)}
	var a *alert.Alert
	if !errors.As(err, &a) {
		return fields
	}
	fields = append(fields, o11y.Field("kind", string(a.Kind)), o11y.Field("host", a.Host))
	if a.Member != "" {
		fields = append(fields, o11y.Field("member", a.Member))
	}
	if a.Err != nil {
		fields = append(fields, o11y.Field("cause", a.Err.Error()))
	}
	return fields
}
