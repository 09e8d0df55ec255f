// Package termination turns SIGINT and SIGTERM into an error that stops the system.
package termination

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/circleci/mongomonitor/o11y"
)

var ErrTerminated = errors.New("terminated")

// Handle blocks until the process is signalled to stop, returning ErrTerminated,
// or until ctx is done, returning nil.
func Handle(ctx context.Context) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		o11y.Log(ctx, "termination: signal received", o11y.Field("signal", sig.String()))
		return ErrTerminated
	case <-ctx.Done():
		return nil
	}
}
