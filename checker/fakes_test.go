package checker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/circleci/mongomonitor/alert"
	"github.com/circleci/mongomonitor/replset"
)

var now = time.Date(2022, 10, 3, 12, 0, 0, 0, time.UTC)

const gb = 1 << 30

type fakeNode struct {
	status    replset.Status
	statusErr error
	config    replset.Config
	configErr error
	hello     replset.Hello
	helloErr  error
	stats     replset.DBStats
	statsErr  error
	oplog     replset.OplogEntry
	oplogErr  error
	// hang makes ReplSetStatus wait for its context to be done, like an unresponsive member.
	hang bool

	mu          sync.Mutex
	oplogCalled bool
	closed      bool
}

func (n *fakeNode) ReplSetStatus(ctx context.Context) (replset.Status, error) {
	if n.hang {
		<-ctx.Done()
		return replset.Status{}, ctx.Err()
	}
	return n.status, n.statusErr
}

func (n *fakeNode) ReplSetConfig(context.Context) (replset.Config, error) {
	return n.config, n.configErr
}

func (n *fakeNode) Hello(context.Context) (replset.Hello, error) {
	return n.hello, n.helloErr
}

func (n *fakeNode) DBStats(context.Context) (replset.DBStats, error) {
	return n.stats, n.statsErr
}

func (n *fakeNode) OldestOplogEntry(context.Context) (replset.OplogEntry, error) {
	n.mu.Lock()
	n.oplogCalled = true
	n.mu.Unlock()
	return n.oplog, n.oplogErr
}

func (n *fakeNode) Close(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

func (n *fakeNode) wasClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func votes(v int) *int {
	return &v
}

// healthyNode is a primary of a healthy three member set with nothing to alert on.
func healthyNode() *fakeNode {
	return &fakeNode{
		status: replset.Status{
			Set: "rs0",
			OK:  1,
			Members: []replset.MemberStatus{
				{Name: "mongo-1:27017", Health: 1, State: replset.StatePrimary, Self: true, OptimeDate: now},
				{Name: "mongo-2:27017", Health: 1, State: replset.StateSecondary,
					LastHeartbeat: now.Add(-2 * time.Second), OptimeDate: now.Add(-time.Second)},
				{Name: "mongo-3:27017", Health: 1, State: replset.StateSecondary,
					LastHeartbeat: now.Add(-2 * time.Second), OptimeDate: now.Add(-time.Second)},
			},
		},
		config: replset.Config{
			ID: "rs0",
			Members: []replset.MemberConfig{
				{Host: "mongo-1:27017", Votes: votes(1)},
				{Host: "mongo-2:27017", Votes: votes(1)},
				{Host: "mongo-3:27017", Votes: votes(1)},
			},
		},
		hello: replset.Hello{SetName: "rs0", IsWritablePrimary: true},
		stats: replset.DBStats{FSTotalSize: 100 * gb, FSUsedSize: 50 * gb},
		oplog: replset.OplogEntry{TS: primitive.Timestamp{T: uint32(now.Add(-48 * time.Hour).Unix())}},
	}
}

type fakeDialer struct {
	mu     sync.Mutex
	nodes  map[string]*fakeNode
	dialed []string
}

func (d *fakeDialer) Dial(_ context.Context, host string) (Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, host)
	n, ok := d.nodes[host]
	if !ok {
		return nil, errors.New("server selection error: connection refused")
	}
	return n, nil
}

type notification struct {
	subject string
	err     error
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) Notify(_ context.Context, subject string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{subject: subject, err: err})
}

func (f *fakeNotifier) kinds() []alert.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := []alert.Kind{}
	for _, n := range f.sent {
		kinds = append(kinds, alert.KindOf(n.err))
	}
	return kinds
}
