package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/starwatch/livestatus"
	"github.com/onnwee/starwatch/subject"
)

// Primary is the entry point for the live-room connector. The connector
// calls LiveStarted and LiveEnded when the room announces a state change;
// both reconcile under the shared lock like the backup poller does.
//
// Start times always come from the platform API, never from the connector,
// so the backup poller later sees the same session start and stays quiet.
type Primary struct {
	client   StatusClient
	registry *subject.Registry
	rec      *livestatus.Reconciler
	emitter
	log *slog.Logger
}

// NewPrimary builds the primary channel hooks.
func NewPrimary(client StatusClient, registry *subject.Registry, rec *livestatus.Reconciler, pub Publisher, reconnectWindow time.Duration) *Primary {
	return &Primary{
		client:   client,
		registry: registry,
		rec:      rec,
		emitter:  emitter{pub: pub, window: reconnectWindow, now: time.Now},
		log:      slog.Default().With(slog.String("component", "live_primary")),
	}
}

func (p *Primary) watchedSubject(uid int64) (subject.Subject, error) {
	sub, ok := p.registry.Get(uid)
	if !ok {
		return sub, fmt.Errorf("uid %d is not watched", uid)
	}
	return sub, nil
}

// LiveStarted reports that uid's room announced a live start. hint is the
// connector's own start time (epoch seconds, 0 if unknown); it is only
// logged. The session is reconciled with the platform's live status. If the
// platform does not report the room live yet, nothing is written and the
// backup poller picks the session up later.
func (p *Primary) LiveStarted(ctx context.Context, uid, hint int64) (livestatus.Transition, error) {
	sub, err := p.watchedSubject(uid)
	if err != nil {
		return livestatus.TransitionNone, err
	}
	snap, ok, err := p.client.LiveStatus(ctx, uid)
	if err != nil {
		return livestatus.TransitionNone, fmt.Errorf("fetch live status uid=%d: %w", uid, err)
	}
	if !ok || !snap.Live {
		p.log.Info("live start not visible on the platform yet; left to backup poller",
			slog.Int64("uid", uid), slog.Int64("hint", hint))
		return livestatus.TransitionNone, nil
	}
	if snap.UID == 0 {
		snap.UID = uid
	}
	if snap.RoomID == 0 && sub.HasRoom() {
		snap.RoomID = *sub.RoomID
	}
	if hint != 0 && hint != snap.StartTime {
		p.log.Debug("connector start time differs from platform",
			slog.Int64("uid", uid), slog.Int64("hint", hint), slog.Int64("start_time", snap.StartTime))
	}
	res, err := p.rec.Reconcile(ctx, snap)
	if err != nil {
		return livestatus.TransitionNone, err
	}
	if p.emit(ctx, SourcePrimary, sub, snap, res) {
		p.log.Info("live started", slog.Int64("uid", uid), slog.String("transition", res.Transition.String()))
	}
	return res.Transition, nil
}

// LiveEnded reports that uid's room went offline at endTime (epoch seconds).
// The end time is written in the same critical section as the transition.
func (p *Primary) LiveEnded(ctx context.Context, uid, endTime int64) (livestatus.Transition, error) {
	sub, err := p.watchedSubject(uid)
	if err != nil {
		return livestatus.TransitionNone, err
	}
	if endTime <= 0 {
		return livestatus.TransitionNone, fmt.Errorf("uid %d: end time required", uid)
	}
	snap := livestatus.Snapshot{UID: uid, Name: sub.Name}
	if sub.HasRoom() {
		snap.RoomID = *sub.RoomID
	}
	var res livestatus.Result
	err = p.rec.Locked(ctx, func(ctx context.Context, tx livestatus.Tx) error {
		var err error
		if res, err = tx.Reconcile(ctx, snap); err != nil {
			return err
		}
		if res.Transition == livestatus.TransitionWentOffline {
			return tx.SetEndTime(ctx, uid, endTime)
		}
		return nil
	})
	if err != nil {
		return livestatus.TransitionNone, err
	}
	if p.emit(ctx, SourcePrimary, sub, snap, res) {
		p.log.Info("live ended", slog.Int64("uid", uid), slog.Int64("end_time", endTime))
	}
	return res.Transition, nil
}
