// Package checker runs the health check pass over every configured replica set member.
//
// Members are checked one at a time over their own direct connection. A member that cannot
// be reached, or a check that cannot be run, raises an alert and the pass carries on with
// the remaining checks and members.
package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/circleci/mongomonitor/alert"
	"github.com/circleci/mongomonitor/o11y"
	"github.com/circleci/mongomonitor/replset"
)

// Node is a connection to a single member.
type Node interface {
	ReplSetStatus(ctx context.Context) (replset.Status, error)
	ReplSetConfig(ctx context.Context) (replset.Config, error)
	Hello(ctx context.Context) (replset.Hello, error)
	DBStats(ctx context.Context) (replset.DBStats, error)
	OldestOplogEntry(ctx context.Context) (replset.OplogEntry, error)
	Close(ctx context.Context) error
}

type Dialer interface {
	Dial(ctx context.Context, host string) (Node, error)
}

// DialFunc adapts a func to a Dialer.
type DialFunc func(ctx context.Context, host string) (Node, error)

func (f DialFunc) Dial(ctx context.Context, host string) (Node, error) {
	return f(ctx, host)
}

type Notifier interface {
	Notify(ctx context.Context, subject string, err error)
}

type Thresholds struct {
	MinReplicaSetMembers  int
	MaxHeartbeatAge       time.Duration
	MaxReplicationDelay   time.Duration
	MinOplogLength        time.Duration
	MinFreeStoragePercent float64
}

type Options struct {
	Members    []string
	Thresholds Thresholds
	// Interval is the expected time between passes, used to judge liveness.
	Interval time.Duration
	// CheckTimeout bounds dialing and checking a single member. It defaults to one minute.
	CheckTimeout time.Duration
	Dialer       Dialer
	Notifier Notifier
	// Now is a test hook, it defaults to time.Now.
	Now func() time.Time
}

// Pass is the outcome of one run over all the members.
type Pass struct {
	Started  time.Time
	Finished time.Time
	Members  int
	Alerts   []*alert.Alert
}

const (
	DefaultCheckTimeout = time.Minute
	closeTimeout        = 10 * time.Second
)

type Checker struct {
	members      []string
	thresholds   Thresholds
	interval     time.Duration
	checkTimeout time.Duration
	dialer       Dialer
	notifier     Notifier
	now          func() time.Time
	created      time.Time

	mu       sync.RWMutex
	lastPass Pass
	passes   int
}

func New(opts Options) *Checker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CheckTimeout == 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}
	return &Checker{
		members:      opts.Members,
		thresholds:   opts.Thresholds,
		interval:     opts.Interval,
		checkTimeout: opts.CheckTimeout,
		dialer:       opts.Dialer,
		notifier:     opts.Notifier,
		now:          opts.Now,
		created:      opts.Now(),
	}
}

// MaxPassTime is the longest a full pass can take with every member hitting its check timeout.
func (c *Checker) MaxPassTime() time.Duration {
	// allow for closing each member after its timeout
	return time.Duration(len(c.members)) * (c.checkTimeout + closeTimeout)
}

// Run makes one pass over every member. Violations are sent to the notifier, not returned;
// the only error is the context's, when the pass was cut short.
func (c *Checker) Run(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "checker: pass")
	defer o11y.End(span, &err)
	span.RecordMetric(o11y.Timing("checker.pass", "result"))

	pass := Pass{Started: c.now()}
	defer func() {
		span.AddField("members_checked", pass.Members)
		span.AddField("alerts", len(pass.Alerts))
	}()

	for _, host := range c.members {
		if err := ctx.Err(); err != nil {
			return err
		}
		alerts := c.checkMember(ctx, host)
		if err := ctx.Err(); err != nil {
			return err
		}
		pass.Members++
		pass.Alerts = append(pass.Alerts, alerts...)
		for _, a := range alerts {
			c.notifier.Notify(ctx, alert.DefaultSubject, a)
		}
	}

	pass.Finished = c.now()
	c.record(pass)
	return nil
}

func (c *Checker) checkMember(ctx context.Context, host string) (alerts []*alert.Alert) {
	ctx, span := o11y.StartSpan(ctx, "checker: member")
	defer span.End()
	span.AddField("host", host)
	defer func() {
		span.AddField("alerts", len(alerts))
	}()

	memberCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	node, err := c.dialer.Dial(memberCtx, host)
	if err != nil {
		span.AddRawField("result", "connection_failed")
		return []*alert.Alert{{Kind: alert.ConnectionFailed, Host: host, Err: err}}
	}
	defer func() {
		// closing must happen even when the pass is being cancelled
		closeCtx, cancel := context.WithTimeout(o11y.Detach(ctx), closeTimeout)
		defer cancel()
		if err := node.Close(closeCtx); err != nil {
			o11y.LogError(ctx, "checker: close failed", err, o11y.Field("host", host))
		}
	}()

	checks := []func(context.Context, Node, string) []*alert.Alert{
		c.checkReplicaSet,
		c.checkDiskSpace,
		c.checkOplogLength,
	}
	for _, check := range checks {
		alerts = append(alerts, check(memberCtx, node, host)...)
		if ctx.Err() != nil {
			return alerts
		}
		if memberCtx.Err() != nil {
			// the remaining checks would fail the same way
			span.AddRawField("result", "timeout")
			return dropTimeouts(alerts, host, c.checkTimeout)
		}
	}
	span.AddRawField("result", "success")
	return alerts
}

// dropTimeouts replaces the failures caused by the member running out of time with a single
// alert for the timeout.
func dropTimeouts(alerts []*alert.Alert, host string, timeout time.Duration) []*alert.Alert {
	kept := alerts[:0]
	for _, a := range alerts {
		if a.Kind == alert.CheckFailed && errors.Is(a.Err, context.DeadlineExceeded) {
			continue
		}
		kept = append(kept, a)
	}
	return append(kept, &alert.Alert{
		Kind: alert.CheckFailed,
		Host: host,
		Err:  fmt.Errorf("checks did not finish within %s: %w", timeout, context.DeadlineExceeded),
	})
}

func (c *Checker) record(p Pass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPass = p
	c.passes++
}

// LastPass returns the most recent completed pass, ok is false before the first completes.
func (c *Checker) LastPass() (p Pass, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPass, c.passes > 0
}

func checkFailed(ctx context.Context, host string, err error) []*alert.Alert {
	// a cancelled pass is not the member's fault, running out of time is
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return []*alert.Alert{{Kind: alert.CheckFailed, Host: host, Err: err}}
}
