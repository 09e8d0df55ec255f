// Package replset holds the documents a replica set member reports about itself and its peers,
// and the derivations the health checks make from them.
package replset

import (
	"errors"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrOplogEmpty is returned when the oplog holds no entries to measure.
var ErrOplogEmpty = errors.New("oplog is empty")

type MemberState int

const (
	StateStartup    MemberState = 0
	StatePrimary    MemberState = 1
	StateSecondary  MemberState = 2
	StateRecovering MemberState = 3
	StateStartup2   MemberState = 5
	StateUnknown    MemberState = 6
	StateArbiter    MemberState = 7
	StateDown       MemberState = 8
	StateRollback   MemberState = 9
	StateRemoved    MemberState = 10
)

var stateNames = map[MemberState]string{
	StateStartup:    "STARTUP",
	StatePrimary:    "PRIMARY",
	StateSecondary:  "SECONDARY",
	StateRecovering: "RECOVERING",
	StateStartup2:   "STARTUP2",
	StateUnknown:    "UNKNOWN",
	StateArbiter:    "ARBITER",
	StateDown:       "DOWN",
	StateRollback:   "ROLLBACK",
	StateRemoved:    "REMOVED",
}

func (s MemberState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

func (s MemberState) IsArbiter() bool {
	return s == StateArbiter
}

func (s MemberState) IsSecondary() bool {
	return s == StateSecondary
}

// Status is the replSetGetStatus response.
type Status struct {
	Set     string         `bson:"set"`
	OK      float64        `bson:"ok"`
	Members []MemberStatus `bson:"members"`
}

func (s Status) IsOK() bool {
	return s.OK == 1
}

type MemberStatus struct {
	ID             int         `bson:"_id"`
	Name           string      `bson:"name"`
	Health         float64     `bson:"health"`
	State          MemberState `bson:"state"`
	StateStr       string      `bson:"stateStr"`
	LastHeartbeat  time.Time   `bson:"lastHeartbeat"`
	OptimeDate     time.Time   `bson:"optimeDate"`
	SyncSourceHost string      `bson:"syncSourceHost"`
	Self           bool        `bson:"self"`
}

func (m MemberStatus) Healthy() bool {
	return m.Health == 1
}

// StateName prefers the server's own label, falling back to the numeric state.
func (m MemberStatus) StateName() string {
	if m.StateStr != "" {
		return m.StateStr
	}
	return m.State.String()
}

// HeartbeatAge is how long ago the member was last heard from. The member answering the
// command reports no heartbeat for itself, so ok is false for it.
func (m MemberStatus) HeartbeatAge(now time.Time) (age time.Duration, ok bool) {
	if m.Self || m.LastHeartbeat.IsZero() {
		return 0, false
	}
	return now.Sub(m.LastHeartbeat), true
}

// ReplicationLag is the time since the member last applied an operation.
func (m MemberStatus) ReplicationLag(now time.Time) time.Duration {
	return now.Sub(m.OptimeDate)
}

// ConfigResponse wraps the replSetGetConfig response.
type ConfigResponse struct {
	Config Config  `bson:"config"`
	OK     float64 `bson:"ok"`
}

type Config struct {
	ID      string         `bson:"_id"`
	Version int            `bson:"version"`
	Members []MemberConfig `bson:"members"`
}

type MemberConfig struct {
	ID          int     `bson:"_id"`
	Host        string  `bson:"host"`
	Votes       *int    `bson:"votes"`
	ArbiterOnly bool    `bson:"arbiterOnly"`
	Priority    float64 `bson:"priority"`
	Hidden      bool    `bson:"hidden"`
}

// VoteCount defaults to one vote when the member config omits it, as the server does.
func (m MemberConfig) VoteCount() int {
	if m.Votes == nil {
		return 1
	}
	return *m.Votes
}

func (c Config) TotalVotes() int {
	total := 0
	for _, m := range c.Members {
		total += m.VoteCount()
	}
	return total
}

// Hello is the subset of the hello command response the checks need.
type Hello struct {
	SetName           string `bson:"setName"`
	IsWritablePrimary bool   `bson:"isWritablePrimary"`
	Secondary         bool   `bson:"secondary"`
	ArbiterOnly       bool   `bson:"arbiterOnly"`
	Me                string `bson:"me"`
}

// DBStats is the subset of the dbStats command response covering the filesystem.
type DBStats struct {
	DB          string  `bson:"db"`
	FSTotalSize float64 `bson:"fsTotalSize"`
	FSUsedSize  float64 `bson:"fsUsedSize"`
}

// FreePercent is the share of the filesystem still free, rounded to two decimal places.
// ok is false when the server did not report a filesystem size.
func (s DBStats) FreePercent() (free float64, ok bool) {
	if s.FSTotalSize <= 0 {
		return 0, false
	}
	return Round2((s.FSTotalSize - s.FSUsedSize) / s.FSTotalSize * 100), true
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// OplogEntry is the oldest entry in local.oplog.rs, only its timestamp is read.
type OplogEntry struct {
	TS primitive.Timestamp `bson:"ts"`
}

func (e OplogEntry) Time() time.Time {
	return time.Unix(int64(e.TS.T), 0)
}

// Span is the window the oplog covers, in whole minutes up to now.
func (e OplogEntry) Span(now time.Time) int {
	return int(math.Round(now.Sub(e.Time()).Minutes()))
}
