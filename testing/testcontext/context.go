// Package testcontext provides a context carrying a working o11y provider, so tests get logs.
package testcontext

import (
	"context"
	"os"

	"github.com/circleci/mongomonitor/config/o11y"
)

// ctx is a global singleton, initialised at package time so the beeline is only set up once.
var ctx = newContext()

// Background returns a context for use in tests which contains a working o11y, so you get logs.
func Background() context.Context {
	return ctx
}

func newContext() context.Context {
	format := os.Getenv("MONGOMONITOR_TEST_LOG_FORMAT")
	if format == "" {
		format = "text"
	}
	cx, _, err := o11y.Setup(context.Background(), o11y.Config{
		Service: "test-service",
		Version: "test",
		Format:  format,
	})
	if err != nil {
		panic(err)
	}
	return cx
}
