package rundef

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/circleci/mongomonitor/o11y"
)

func MaxProcs(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "rundef: max procs")
	defer o11y.End(span, &err)

	_, err = maxprocs.Set(maxprocs.Min(1), maxprocs.Logger(func(format string, a ...interface{}) {
		o11y.Log(ctx, "rundef: "+fmt.Sprintf(format, a...))
	}))
	if err != nil {
		return err
	}
	span.AddField("limit", runtime.GOMAXPROCS(0))
	return nil
}
