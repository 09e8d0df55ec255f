package rundef

import (
	"context"

	"github.com/KimMachineGun/automemlimit/memlimit"

	"github.com/circleci/mongomonitor/o11y"
)

const memLimitRatio = 0.9

// MemLimit sets GOMEMLIMIT to 90% of the cgroup memory limit. When no limit can be found,
// outside a container for example, the runtime is left alone.
func MemLimit(ctx context.Context) (err error) {
	_, span := o11y.StartSpan(ctx, "rundef: mem limit")
	defer o11y.End(span, &err)

	limit, err := memlimit.SetGoMemLimit(memLimitRatio)
	if err != nil {
		span.AddField("skipped", err.Error())
		return nil
	}
	span.AddField("limit", limit)
	return nil
}
