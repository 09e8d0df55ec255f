package honeycomb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/mongomonitor/internal/syncbuffer"
	"github.com/circleci/mongomonitor/o11y"
)

func TestHoneycomb(t *testing.T) {
	events := honeycombServer(t)
	ctx := context.Background()

	h := New(Config{
		Dataset:    "test-dataset",
		Host:       events.url,
		SendTraces: true,
		Format:     "none",
	})
	h.AddGlobalField("version", 42)

	ctx = o11y.WithProvider(ctx, h)
	ctx, span := o11y.StartSpan(ctx, "test-span")
	o11y.AddFieldToTrace(ctx, "trace_key", "trace-value")
	o11y.AddField(ctx, "another_key", "span-value")
	span.AddField("span_key", "span-value")
	span.AddRawField("raw_key", "span-value")
	span.End()
	h.Close(ctx)

	event := events.all()
	assert.Check(t, cmp.Contains(event, `"version":42`))
	assert.Check(t, cmp.Contains(event, `"name":"test-span"`))
	assert.Check(t, cmp.Contains(event, `"app.span_key":"span-value"`), "span.AddField is prefixed")
	assert.Check(t, cmp.Contains(event, `"raw_key":"span-value"`), "span.AddRawField is unprefixed")
	assert.Check(t, cmp.Contains(event, `"app.another_key":"span-value"`), "o11y.AddField is prefixed")
	assert.Check(t, cmp.Contains(event, `"app.trace_key":"trace-value"`), "o11y.AddFieldToTrace is prefixed")
}

func TestHoneycomb_WithError(t *testing.T) {
	events := honeycombServer(t)
	ctx := context.Background()

	h := New(Config{
		Dataset:    "error-dataset",
		Host:       events.url,
		SendTraces: true,
		Format:     "none",
	})

	_ = func() (err error) {
		_, span := h.StartSpan(ctx, "test-span-with-error")
		defer o11y.End(span, &err)
		return errors.New("example error")
	}()
	h.Close(ctx)

	event := events.all()
	assert.Check(t, cmp.Contains(event, `"name":"test-span-with-error"`))
	assert.Check(t, cmp.Contains(event, `"result":"error"`))
	assert.Check(t, cmp.Contains(event, `"error":"example error"`))
}

func TestHoneycomb_ValidatesKeys(t *testing.T) {
	h := New(Config{
		Dataset: "test-dataset",
		Format:  "none",
	})

	recovery := func(key string) {
		p := recover()
		err, success := p.(error)
		assert.Assert(t, success)
		assert.ErrorContains(t, err, key)
	}

	ctx := o11y.WithProvider(context.Background(), h)
	defer h.Close(ctx)

	ctx, span := o11y.StartSpan(ctx, "test-span")
	func() {
		defer recovery("invalid-another-key")
		o11y.AddField(ctx, "invalid-another-key", "value")
	}()
	func() {
		defer recovery("invalid-span-key")
		span.AddField("invalid-span-key", "value")
	}()
	span.End()
}

func TestHoneycomb_WriterFormats(t *testing.T) {
	buf := &syncbuffer.SyncBuffer{}
	h := New(Config{
		Format: "text",
		Writer: buf,
	})
	ctx := o11y.WithProvider(context.Background(), h)

	o11y.LogError(ctx, "alert", errors.New("member down"),
		o11y.Field("host", "mongo-1:27017"),
		o11y.Field("at", time.Date(2022, 10, 3, 9, 30, 0, 0, time.UTC)),
	)
	h.Close(ctx)

	out := buf.String()
	assert.Check(t, cmp.Contains(out, " alert "))
	assert.Check(t, cmp.Contains(out, "app.host=mongo-1:27017"))
	assert.Check(t, cmp.Contains(out, "app.at=2022-10-03T09:30:00Z"))
	assert.Check(t, cmp.Contains(out, "error=member down"))
	assert.Check(t, cmp.Contains(out, "result=error"))
}

func TestHoneycomb_Metrics(t *testing.T) {
	events := honeycombServer(t)
	ctx := context.Background()

	fakeMetrics := &fakeMetrics{}
	h := New(Config{
		Dataset:    "test-dataset",
		Host:       events.url,
		SendTraces: true,
		Format:     "none",
		Metrics:    fakeMetrics,
	})

	_, span := h.StartSpan(ctx, "test-span")
	span.RecordMetric(o11y.Timing("test-metric-timing", "kind"))
	span.RecordMetric(o11y.Incr("test-metric-incr", "kind"))
	span.AddField("kind", "disk_space_low")
	span.AddField("to_gauge", 4.0)
	span.RecordMetric(o11y.Gauge("test_metric_gauge", "to_gauge"))
	span.AddField("to_count", 3)
	span.RecordMetric(o11y.Count("test_metric_count", "to_count", o11y.NewTag("type", "first")))
	span.End()
	h.Close(ctx)

	assert.Check(t, !strings.Contains(events.all(), metricKey))
	calls := fakeMetrics.recorded()
	assert.Assert(t, cmp.Len(calls, 4))
	assert.Check(t, cmp.DeepEqual(calls[0], metricCall{
		Metric: "timer",
		Name:   "test-metric-timing",
		Tags:   []string{"kind:disk_space_low"},
		Rate:   1,
		Value:  1,
	}, cmpNonZeroValue))
	assert.Check(t, cmp.DeepEqual(calls[1], metricCall{
		Metric:   "count",
		Name:     "test-metric-incr",
		Tags:     []string{"kind:disk_space_low"},
		Rate:     1,
		ValueInt: 1,
	}))
	assert.Check(t, cmp.DeepEqual(calls[2], metricCall{
		Metric: "gauge",
		Name:   "test_metric_gauge",
		Tags:   []string{},
		Rate:   1,
		Value:  4,
	}))
	assert.Check(t, cmp.DeepEqual(calls[3], metricCall{
		Metric:   "count",
		Name:     "test_metric_count",
		Tags:     []string{"type:first"},
		Rate:     1,
		ValueInt: 3,
	}))
}

type received struct {
	url string

	mu     sync.Mutex
	events []string
}

func (r *received) all() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.events, "\n")
}

func honeycombServer(t *testing.T) *received {
	r := &received{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		reader, err := zstd.NewReader(req.Body)
		if err != nil {
			t.Error("could not create zstd reader", err)
			return
		}
		defer reader.Close()
		defer req.Body.Close()

		b, err := io.ReadAll(reader)
		if err != nil {
			t.Error("could not read request", err)
		}
		r.mu.Lock()
		r.events = append(r.events, string(b))
		r.mu.Unlock()
	}))
	t.Cleanup(ts.Close)
	r.url = ts.URL
	return r
}

var cmpNonZeroValue = gocmp.Options{gocmp.Comparer(func(a, b float64) bool {
	return a >= 0 && b >= 0
})}

type metricCall struct {
	Metric   string
	Name     string
	Value    float64
	ValueInt int64
	Tags     []string
	Rate     float64
}

type fakeMetrics struct {
	o11y.MetricsProvider

	mu    sync.Mutex
	calls []metricCall
}

func (f *fakeMetrics) recorded() []metricCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	// the standard error/warning counters are not under test here
	var calls []metricCall
	for _, c := range f.calls {
		if c.Name == "error" || c.Name == "warning" {
			continue
		}
		calls = append(calls, c)
	}
	return calls
}

func (f *fakeMetrics) add(c metricCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeMetrics) TimeInMilliseconds(name string, value float64, tags []string, rate float64) error {
	f.add(metricCall{Metric: "timer", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (f *fakeMetrics) Gauge(name string, value float64, tags []string, rate float64) error {
	f.add(metricCall{Metric: "gauge", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (f *fakeMetrics) Count(name string, value int64, tags []string, rate float64) error {
	f.add(metricCall{Metric: "count", Name: name, ValueInt: value, Tags: tags, Rate: rate})
	return nil
}

func (f *fakeMetrics) Close() error {
	return nil
}
