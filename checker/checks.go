package checker

import (
	"context"
	"errors"

	"github.com/circleci/mongomonitor/alert"
	"github.com/circleci/mongomonitor/o11y"
	"github.com/circleci/mongomonitor/replset"
)

// checkReplicaSet looks at the replica set as the member at host sees it.
func (c *Checker) checkReplicaSet(ctx context.Context, node Node, host string) (alerts []*alert.Alert) {
	status, err := node.ReplSetStatus(ctx)
	if err != nil {
		return checkFailed(ctx, host, err)
	}
	now := c.now()

	if !status.IsOK() {
		alerts = append(alerts, &alert.Alert{Kind: alert.StatusNotOk, Host: host})
	}

	members := len(status.Members)
	if members < c.thresholds.MinReplicaSetMembers {
		alerts = append(alerts, &alert.Alert{
			Kind:      alert.MemberCountLow,
			Host:      host,
			Observed:  float64(members),
			Threshold: float64(c.thresholds.MinReplicaSetMembers),
			Members:   members,
		})
	}

	cfg, err := node.ReplSetConfig(ctx)
	if err != nil {
		alerts = append(alerts, checkFailed(ctx, host, err)...)
	} else if votes := cfg.TotalVotes(); votes%2 == 0 {
		alerts = append(alerts, &alert.Alert{
			Kind:     alert.EvenVoteCount,
			Host:     host,
			Observed: float64(votes),
			Members:  members,
		})
	}

	for _, m := range status.Members {
		if !m.Healthy() {
			alerts = append(alerts, &alert.Alert{
				Kind:   alert.MemberUnhealthy,
				Host:   host,
				Member: m.Name,
				State:  m.StateName(),
			})
		}

		if age, ok := m.HeartbeatAge(now); ok && age > c.thresholds.MaxHeartbeatAge {
			alerts = append(alerts, &alert.Alert{
				Kind:      alert.HeartbeatStale,
				Host:      host,
				Member:    m.Name,
				State:     m.StateName(),
				Observed:  age.Minutes(),
				Threshold: c.thresholds.MaxHeartbeatAge.Minutes(),
				At:        m.LastHeartbeat,
			})
		}

		// arbiters hold no data so never report an optime
		if m.State.IsSecondary() {
			if lag := m.ReplicationLag(now); lag > c.thresholds.MaxReplicationDelay {
				alerts = append(alerts, &alert.Alert{
					Kind:      alert.ReplicationLagHigh,
					Host:      host,
					Member:    m.Name,
					State:     m.StateName(),
					Observed:  lag.Minutes(),
					Threshold: c.thresholds.MaxReplicationDelay.Minutes(),
					At:        m.OptimeDate,
				})
			}
		}
	}
	return alerts
}

// checkDiskSpace alerts when the filesystem holding the data is nearly full.
func (c *Checker) checkDiskSpace(ctx context.Context, node Node, host string) []*alert.Alert {
	stats, err := node.DBStats(ctx)
	if err != nil {
		return checkFailed(ctx, host, err)
	}

	free, ok := stats.FreePercent()
	if !ok {
		o11y.Log(ctx, "checker: disk space not reported", o11y.Field("host", host))
		return nil
	}
	if free < c.thresholds.MinFreeStoragePercent {
		return []*alert.Alert{{
			Kind:      alert.DiskSpaceLow,
			Host:      host,
			Observed:  free,
			Threshold: c.thresholds.MinFreeStoragePercent,
		}}
	}
	return nil
}

// checkOplogLength alerts when the oplog window is too short for a member that drops out
// to catch up again. Arbiters have no oplog.
func (c *Checker) checkOplogLength(ctx context.Context, node Node, host string) []*alert.Alert {
	hello, err := node.Hello(ctx)
	if err != nil {
		return checkFailed(ctx, host, err)
	}
	if hello.ArbiterOnly {
		return nil
	}

	entry, err := node.OldestOplogEntry(ctx)
	switch {
	case errors.Is(err, replset.ErrOplogEmpty):
		return []*alert.Alert{{Kind: alert.OplogUnavailable, Host: host, Err: err}}
	case err != nil:
		return checkFailed(ctx, host, err)
	}

	span := entry.Span(c.now())
	threshold := c.thresholds.MinOplogLength.Minutes()
	if float64(span) < threshold {
		return []*alert.Alert{{
			Kind:      alert.OplogTooShort,
			Host:      host,
			Observed:  float64(span),
			Threshold: threshold,
			At:        entry.Time(),
		}}
	}
	return nil
}
