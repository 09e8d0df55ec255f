// Package alert defines the conditions the health checks raise and how they read to a human.
package alert

import (
	"errors"
	"fmt"
	"time"
)

// DefaultSubject titles notifications that do not carry their own subject.
const DefaultSubject = "Health Check Failed"

// Kind tags which check an alert came from. It is also the metric tag and log field.
type Kind string

const (
	ConnectionFailed   Kind = "connection_failed"
	StatusNotOk        Kind = "status_not_ok"
	MemberCountLow     Kind = "member_count_low"
	EvenVoteCount      Kind = "even_vote_count"
	MemberUnhealthy    Kind = "member_unhealthy"
	HeartbeatStale     Kind = "heartbeat_stale"
	ReplicationLagHigh Kind = "replication_lag_high"
	DiskSpaceLow       Kind = "disk_space_low"
	OplogTooShort      Kind = "oplog_too_short"
	OplogUnavailable   Kind = "oplog_unavailable"
	CheckFailed        Kind = "check_failed"
)

// Alert is a single violated condition on a host.
// Which of the optional fields are set depends on Kind.
type Alert struct {
	Kind Kind
	// Host is the member the monitor was connected to.
	Host string
	// Member is the peer the condition is about, as seen from Host.
	Member string
	State  string
	// Observed and Threshold are in the unit of the check: members, votes, percent or minutes.
	Observed  float64
	Threshold float64
	Members   int
	At        time.Time
	Err       error
}

func (a *Alert) Error() string {
	switch a.Kind {
	case ConnectionFailed:
		return fmt.Sprintf("Failed to connect to replica set member: %s.", a.Host)
	case StatusNotOk:
		return fmt.Sprintf("Replica set status on host %s is not OK.", a.Host)
	case MemberCountLow:
		return fmt.Sprintf("Replica set configuration on host %s contains only %d members (minimum: %d).",
			a.Host, int(a.Observed), int(a.Threshold))
	case EvenVoteCount:
		return fmt.Sprintf("Replica set configuration on host %s contains an even number of votes (%d) "+
			"across %d members which will cause primary elections to fail.", a.Host, int(a.Observed), a.Members)
	case MemberUnhealthy:
		return fmt.Sprintf("%s reported an unhealthy status as seen from host %s (state: %s).",
			a.Member, a.Host, a.State)
	case HeartbeatStale:
		return fmt.Sprintf("%s appears to be disconnected from host %s (last heartbeat: %s).",
			a.Member, a.Host, formatTime(a.At))
	case ReplicationLagHigh:
		return fmt.Sprintf("%s (secondary) appears to be falling behind on replication (optime date: %s).",
			a.Member, formatTime(a.At))
	case DiskSpaceLow:
		return fmt.Sprintf("Database has only remaining %.2f%% storage size on host %s", a.Observed, a.Host)
	case OplogTooShort:
		return fmt.Sprintf("Database oplog length for %s is only %d minutes long.", a.Host, int(a.Observed))
	case OplogUnavailable:
		return fmt.Sprintf("Failed to retrieve oldest oplog timestamp for host %s.", a.Host)
	case CheckFailed:
		return fmt.Sprintf("Health check query failed on host %s: %v", a.Host, a.Err)
	}
	if a.Err != nil {
		return fmt.Sprintf("%s on host %s: %v", a.Kind, a.Host, a.Err)
	}
	return fmt.Sprintf("%s on host %s", a.Kind, a.Host)
}

func (a *Alert) Unwrap() error {
	return a.Err
}

// KindOf returns the kind of the first Alert in err's chain, or the empty Kind.
func KindOf(err error) Kind {
	var a *Alert
	if errors.As(err, &a) {
		return a.Kind
	}
	return ""
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
