package testcontext

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/circleci/mongomonitor/o11y"
)

func TestBackground_MetricsProvider(t *testing.T) {
	ctx := Background()
	metrics := o11y.FromContext(ctx).MetricsProvider()

	err := metrics.Gauge("gauge", 1, nil, 1)
	assert.Assert(t, err)
}

func TestBackground_Span(t *testing.T) {
	_, span := o11y.StartSpan(Background(), "test span")
	span.AddField("host", "mongo-1:27017")
	span.End()
}
