// Package live detects live-status transitions of watched subjects. The backup
// poller and the primary live-room hooks both reconcile through the same
// livestatus.Reconciler, so a transition observed by one path is never
// reported again by the other.
package live

import (
	"context"
	"sort"
	"time"

	"github.com/onnwee/starwatch/events"
	"github.com/onnwee/starwatch/livestatus"
	"github.com/onnwee/starwatch/subject"
	"github.com/onnwee/starwatch/telemetry"
)

// StatusClient fetches fresh live status.
type StatusClient interface {
	LiveStatuses(ctx context.Context, uids []int64) (map[int64]livestatus.Snapshot, error)
	LiveStatus(ctx context.Context, uid int64) (livestatus.Snapshot, bool, error)
}

// Publisher receives live events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) int
}

// Detection sources, used as metric labels.
const (
	SourceBackup    = "backup"
	SourcePrimary   = "primary"
	SourceBootstrap = "bootstrap"
)

// DefaultReconnectWindow is how soon after going offline a new session counts
// as a reconnect.
const DefaultReconnectWindow = 5 * time.Minute

// emitter turns reconciliation results into events.
type emitter struct {
	pub    Publisher
	window time.Duration
	now    func() time.Time
}

// emit publishes the event matching res.Transition and reports whether one
// was published.
func (e emitter) emit(ctx context.Context, source string, sub subject.Subject, snap livestatus.Snapshot, res livestatus.Result) bool {
	if res.Transition == livestatus.TransitionNone {
		return false
	}
	telemetry.IncVec(telemetry.LiveTransitions, source, res.Transition.String())
	if snap.Name == "" {
		snap.Name = sub.Name
	}
	switch res.Transition {
	case livestatus.TransitionWentLive, livestatus.TransitionRestartedLive:
		e.pub.Publish(ctx, events.LiveOnEvent{
			Subject:   sub,
			Room:      snap,
			Timestamp: e.now(),
			Reconnect: reconnect(res.Previous, snap.StartTime, e.window),
		})
	case livestatus.TransitionWentOffline:
		e.pub.Publish(ctx, events.LiveOffEvent{Subject: sub, Room: snap, Timestamp: e.now()})
	}
	return true
}

// reconnect reports whether a session starting at start follows the
// previous session's end within window.
func reconnect(prev livestatus.Record, start int64, window time.Duration) bool {
	if prev.EndTime == nil || start <= 0 || window <= 0 {
		return false
	}
	gap := start - *prev.EndTime
	return gap >= 0 && time.Duration(gap)*time.Second <= window
}

func sortedUIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for uid := range set {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
