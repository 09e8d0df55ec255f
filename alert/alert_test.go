package alert

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestAlert_Error(t *testing.T) {
	at := time.Date(2022, 10, 3, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		alert *Alert
		want  string
	}{
		{
			alert: &Alert{Kind: ConnectionFailed, Host: "mongo-1:27017", Err: errors.New("dial tcp: refused")},
			want:  "Failed to connect to replica set member: mongo-1:27017.",
		},
		{
			alert: &Alert{Kind: StatusNotOk, Host: "mongo-1:27017"},
			want:  "Replica set status on host mongo-1:27017 is not OK.",
		},
		{
			alert: &Alert{Kind: MemberCountLow, Host: "mongo-1:27017", Observed: 2, Threshold: 3},
			want:  "Replica set configuration on host mongo-1:27017 contains only 2 members (minimum: 3).",
		},
		{
			alert: &Alert{Kind: EvenVoteCount, Host: "mongo-1:27017", Observed: 4, Members: 5},
			want: "Replica set configuration on host mongo-1:27017 contains an even number of votes (4) " +
				"across 5 members which will cause primary elections to fail.",
		},
		{
			alert: &Alert{Kind: MemberUnhealthy, Host: "mongo-1:27017", Member: "mongo-3:27017", State: "DOWN"},
			want:  "mongo-3:27017 reported an unhealthy status as seen from host mongo-1:27017 (state: DOWN).",
		},
		{
			alert: &Alert{Kind: HeartbeatStale, Host: "mongo-1:27017", Member: "mongo-3:27017", At: at},
			want:  "mongo-3:27017 appears to be disconnected from host mongo-1:27017 (last heartbeat: 2022-10-03T09:30:00Z).",
		},
		{
			alert: &Alert{Kind: ReplicationLagHigh, Host: "mongo-1:27017", Member: "mongo-2:27017", At: at},
			want:  "mongo-2:27017 (secondary) appears to be falling behind on replication (optime date: 2022-10-03T09:30:00Z).",
		},
		{
			alert: &Alert{Kind: DiskSpaceLow, Host: "mongo-1:27017", Observed: 4, Threshold: 5},
			want:  "Database has only remaining 4.00% storage size on host mongo-1:27017",
		},
		{
			alert: &Alert{Kind: OplogTooShort, Host: "mongo-1:27017", Observed: 42, Threshold: 60},
			want:  "Database oplog length for mongo-1:27017 is only 42 minutes long.",
		},
		{
			alert: &Alert{Kind: OplogUnavailable, Host: "mongo-1:27017"},
			want:  "Failed to retrieve oldest oplog timestamp for host mongo-1:27017.",
		},
		{
			alert: &Alert{Kind: CheckFailed, Host: "mongo-1:27017", Err: errors.New("unauthorized")},
			want:  "Health check query failed on host mongo-1:27017: unauthorized",
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.alert.Kind), func(t *testing.T) {
			assert.Check(t, cmp.Equal(tt.alert.Error(), tt.want))
		})
	}
}

func TestAlert_Unwrap(t *testing.T) {
	cause := errors.New("server selection timeout")
	err := fmt.Errorf("pass: %w", &Alert{Kind: ConnectionFailed, Host: "mongo-1:27017", Err: cause})

	assert.Check(t, errors.Is(err, cause))
	assert.Check(t, cmp.Equal(KindOf(err), ConnectionFailed))
	assert.Check(t, cmp.Equal(KindOf(cause), Kind("")))
	assert.Check(t, cmp.Equal(KindOf(nil), Kind("")))
}

func TestAlert_HeartbeatNeverSeen(t *testing.T) {
	a := &Alert{Kind: HeartbeatStale, Host: "mongo-1:27017", Member: "mongo-3:27017"}
	assert.Check(t, cmp.Contains(a.Error(), "(last heartbeat: never)"))
}
