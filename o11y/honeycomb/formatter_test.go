package honeycomb

import (
	"bytes"
	"testing"
	"time"

	"github.com/honeycombio/libhoney-go/transmission"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestTextSender(t *testing.T) {
	ts := time.Date(2022, 10, 3, 9, 30, 5, 0, time.UTC)
	//nolint: lll
	testcases := []struct {
		name     string
		source   *transmission.Event
		expected string
	}{
		{
			name: "alert",
			source: &transmission.Event{
				Timestamp: ts,
				Data: map[string]interface{}{
					"app.host": "mongo-1:27017", "app.kind": "disk_space_low", "app.subject": "Health Check Failed",
					"duration_ms": 0.012, "error": "Database has only remaining 4.00% storage size on host mongo-1:27017",
					"meta.beeline_version": "1.11.1", "name": "alert", "result": "error", "service": "mongomonitor",
					"trace.span_id": "29d98eb0", "trace.trace_id": "9e020857-1248-431f-b2dd-f1541bd1e113", "version": "dev",
				},
			},
			expected: "09:30:05 1e113 0.012ms alert app.host=mongo-1:27017 app.kind=disk_space_low app.subject=Health Check Failed error=Database has only remaining 4.00% storage size on host mongo-1:27017 result=error\n",
		},
		{
			name: "root span without fields",
			source: &transmission.Event{
				Timestamp: ts,
				Data: map[string]interface{}{
					"duration_ms": 1.455143, "name": "main: run", "service": "mongomonitor",
					"trace.trace_id": "9e020857-1248-431f-b2dd-f1541bd1e113",
				},
			},
			expected: "09:30:05 1e113 1.455ms main: run\n",
		},
		{
			name: "missing trace id",
			source: &transmission.Event{
				Timestamp: ts,
				Data:      map[string]interface{}{"duration_ms": 0.5, "name": "startup"},
			},
			expected: "09:30:05 unkwn 0.500ms startup\n",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			h := &TextSender{w: buf}
			assert.Assert(t, h.Start())

			h.Add(tc.source)
			assert.Check(t, cmp.Equal(buf.String(), tc.expected))
		})
	}
}
