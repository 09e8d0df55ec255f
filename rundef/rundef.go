// Package rundef sizes the Go runtime to the container the monitor is running in.
package rundef

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/circleci/mongomonitor/o11y"
)

// Defaults sets GOMEMLIMIT and GOMAXPROCS from the cgroup limits, when there are any.
func Defaults(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "rundef: defaults")
	defer o11y.End(span, &err)

	eg := errgroup.Group{}
	eg.Go(func() error {
		return MemLimit(ctx)
	})
	eg.Go(func() error {
		return MaxProcs(ctx)
	})

	return eg.Wait()
}
