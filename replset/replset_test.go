package replset

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func votes(v int) *int {
	return &v
}

func TestConfig_TotalVotes(t *testing.T) {
	tests := []struct {
		name    string
		members []MemberConfig
		want    int
	}{
		{name: "none", want: 0},
		{
			name:    "three voting",
			members: []MemberConfig{{Votes: votes(1)}, {Votes: votes(1)}, {Votes: votes(1)}},
			want:    3,
		},
		{
			name: "one non voting",
			members: []MemberConfig{
				{Votes: votes(1)}, {Votes: votes(1)}, {Votes: votes(0)}, {Votes: votes(1)}, {Votes: votes(1)},
			},
			want: 4,
		},
		{
			name:    "votes default to one",
			members: []MemberConfig{{}, {}},
			want:    2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Check(t, cmp.Equal(Config{Members: tt.members}.TotalVotes(), tt.want))
		})
	}
}

func TestDBStats_FreePercent(t *testing.T) {
	const gb = 1 << 30
	tests := []struct {
		name     string
		stats    DBStats
		wantFree float64
		wantOK   bool
	}{
		{name: "four percent", stats: DBStats{FSTotalSize: 100 * gb, FSUsedSize: 96 * gb}, wantFree: 4, wantOK: true},
		{name: "rounded", stats: DBStats{FSTotalSize: 3, FSUsedSize: 1}, wantFree: 66.67, wantOK: true},
		{name: "empty", stats: DBStats{FSTotalSize: 10}, wantFree: 100, wantOK: true},
		{name: "no filesystem", stats: DBStats{}, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			free, ok := tt.stats.FreePercent()
			assert.Check(t, cmp.Equal(ok, tt.wantOK))
			assert.Check(t, cmp.Equal(free, tt.wantFree))
		})
	}
}

func TestOplogEntry_Span(t *testing.T) {
	now := time.Date(2022, 10, 3, 12, 0, 0, 0, time.UTC)
	entry := OplogEntry{TS: primitive.Timestamp{T: uint32(now.Add(-90*time.Minute - 20*time.Second).Unix()), I: 4}}
	assert.Check(t, cmp.Equal(entry.Span(now), 90))

	entry = OplogEntry{TS: primitive.Timestamp{T: uint32(now.Add(-29*time.Minute - 40*time.Second).Unix())}}
	assert.Check(t, cmp.Equal(entry.Span(now), 30))
}

func TestMemberStatus_HeartbeatAge(t *testing.T) {
	now := time.Date(2022, 10, 3, 12, 0, 0, 0, time.UTC)

	_, ok := MemberStatus{Self: true, LastHeartbeat: now}.HeartbeatAge(now)
	assert.Check(t, !ok, "self has no heartbeat")

	_, ok = MemberStatus{}.HeartbeatAge(now)
	assert.Check(t, !ok, "missing heartbeat")

	age, ok := MemberStatus{LastHeartbeat: now.Add(-2 * time.Minute)}.HeartbeatAge(now)
	assert.Check(t, ok)
	assert.Check(t, cmp.Equal(age, 2*time.Minute))
}

func TestMemberState_String(t *testing.T) {
	assert.Check(t, cmp.Equal(StateArbiter.String(), "ARBITER"))
	assert.Check(t, cmp.Equal(MemberState(42).String(), "UNKNOWN"))
	assert.Check(t, StateArbiter.IsArbiter())
	assert.Check(t, StateSecondary.IsSecondary())
	assert.Check(t, !StatePrimary.IsSecondary())

	assert.Check(t, cmp.Equal(MemberStatus{State: StateDown}.StateName(), "DOWN"))
	assert.Check(t, cmp.Equal(MemberStatus{State: StateDown, StateStr: "(not reachable/healthy)"}.StateName(),
		"(not reachable/healthy)"))
}

func TestStatus_Decode(t *testing.T) {
	hb := time.Date(2022, 10, 3, 11, 59, 58, 0, time.UTC)
	raw, err := bson.Marshal(bson.M{
		"set": "rs0",
		"ok":  1.0,
		"members": bson.A{
			bson.M{"_id": 0, "name": "mongo-1:27017", "health": 1.0, "state": 1, "stateStr": "PRIMARY", "self": true},
			bson.M{"_id": 1, "name": "mongo-2:27017", "health": 0.0, "state": 8, "lastHeartbeat": hb},
		},
	})
	assert.Assert(t, err)

	var status Status
	assert.Assert(t, bson.Unmarshal(raw, &status))
	assert.Check(t, status.IsOK())
	assert.Assert(t, cmp.Len(status.Members, 2))
	assert.Check(t, status.Members[0].Healthy())
	assert.Check(t, !status.Members[1].Healthy())
	assert.Check(t, cmp.Equal(status.Members[1].State, StateDown))
	assert.Check(t, status.Members[1].LastHeartbeat.Equal(hb))
}
