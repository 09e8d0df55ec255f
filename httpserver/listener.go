package httpserver

import (
	"context"
	"net"
	"net/url"
	"sync"
)

// trackedListener counts accepted connections, and the remotes holding them open, until each is closed.
type trackedListener struct {
	net.Listener

	mu         sync.RWMutex
	name       string
	accepted   int
	activeConn int
	remotes    map[string]int
}

func (l *trackedListener) Accept() (net.Conn, error) {
	con, err := l.Listener.Accept()
	if err != nil {
		return con, err
	}
	tracked := &trackedConnection{
		l:    l,
		Conn: con,
	}
	l.track(tracked, true)
	return tracked, nil
}

func (l *trackedListener) MetricName() string {
	return l.name + "-listener"
}

func (l *trackedListener) Gauges(_ context.Context) map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return map[string]float64{
		"number_of_remotes":  float64(len(l.remotes)),
		"total_connections":  float64(l.accepted),
		"active_connections": float64(l.activeConn),
	}
}

func (l *trackedListener) track(c *trackedConnection, add bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remotes == nil {
		l.remotes = make(map[string]int)
	}
	host := (&url.URL{Host: c.RemoteAddr().String()}).Hostname()
	if add {
		l.accepted++
		l.activeConn++
		l.remotes[host]++
		return
	}
	l.activeConn--
	l.remotes[host]--
	if l.remotes[host] <= 0 {
		delete(l.remotes, host)
	}
}

type trackedConnection struct {
	net.Conn

	l    *trackedListener
	once sync.Once
}

// Close may be called more than once by net/http; only the first call is counted.
func (c *trackedConnection) Close() error {
	c.once.Do(func() {
		c.l.track(c, false)
	})
	return c.Conn.Close()
}
