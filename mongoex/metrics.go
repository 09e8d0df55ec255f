package mongoex

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/event"
)

var poolEventGauges = map[string]string{
	event.PoolCreated:        "pool_created",
	event.PoolClosedEvent:    "pool_closed",
	event.PoolCleared:        "pool_cleared",
	event.ConnectionCreated:  "connection_created",
	event.ConnectionClosed:   "connection_closed",
	event.GetSucceeded:       "get_succeeded",
	event.GetFailed:          "get_failed",
	event.ConnectionReturned: "connection_returned",
}

// poolMetrics counts pool events across every short-lived connection the Dialer makes.
// pools_open should return to zero between passes, anything else is a leaked connection.
type poolMetrics struct {
	name string

	mu     sync.RWMutex
	counts map[string]int64
}

func newPoolMetrics(name string) *poolMetrics {
	return &poolMetrics{
		name:   name,
		counts: map[string]int64{},
	}
}

func (c *poolMetrics) MetricName() string {
	return c.name
}

func (c *poolMetrics) Gauges(_ context.Context) map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	gauges := make(map[string]float64, len(poolEventGauges)+1)
	for _, name := range poolEventGauges {
		gauges[name] = float64(c.counts[name])
	}
	gauges["pools_open"] = float64(c.counts["pool_created"] - c.counts["pool_closed"])
	return gauges
}

func (c *poolMetrics) PoolMonitor(parent *event.PoolMonitor) *event.PoolMonitor {
	return &event.PoolMonitor{
		Event: func(e *event.PoolEvent) {
			if parent != nil {
				parent.Event(e)
			}
			c.updateStats(e)
		},
	}
}

func (c *poolMetrics) updateStats(e *event.PoolEvent) {
	name, ok := poolEventGauges[e.Type]
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
}
