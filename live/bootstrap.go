package live

import (
	"context"
	"log/slog"

	"github.com/onnwee/starwatch/livestatus"
	"github.com/onnwee/starwatch/subject"
	"github.com/onnwee/starwatch/telemetry"
)

// BootstrapPriority runs the bootstrap ahead of other registry listeners so
// persisted status is current before anything else reacts to a change.
const BootstrapPriority = -20000

// Bootstrap brings persisted live status up to date when subjects enter the
// watch set. Transitions it finds are logged, not published: they happened
// while nobody was watching.
type Bootstrap struct {
	client StatusClient
	rec    *livestatus.Reconciler
	ready  func() bool
	log    *slog.Logger
}

// NewBootstrap builds a Bootstrap. ready reports whether the initial watch set
// has been loaded; additions before that are covered by the load catch-up.
func NewBootstrap(client StatusClient, rec *livestatus.Reconciler, ready func() bool) *Bootstrap {
	return &Bootstrap{
		client: client,
		rec:    rec,
		ready:  ready,
		log:    slog.Default().With(slog.String("component", "live_bootstrap")),
	}
}

// OnChange is a subject.Listener.
func (b *Bootstrap) OnChange(ctx context.Context, c subject.Change) {
	switch c.Type {
	case subject.ChangeLoaded:
		b.CatchUp(ctx, c.Subjects)
	case subject.ChangeAdded:
		if b.ready() && c.New.HasLiveEvent() && c.New.HasRoom() {
			b.Refresh(ctx, c.New)
		}
	case subject.ChangeUpdated:
		if !c.New.HasLiveEvent() || !c.New.HasRoom() {
			return
		}
		if !c.Old.HasLiveEvent() || !c.Old.HasRoom() || *c.Old.RoomID != *c.New.RoomID {
			b.Refresh(ctx, c.New)
		}
	}
}

// CatchUp batch-fetches and reconciles every live-enabled subject in subs.
func (b *Bootstrap) CatchUp(ctx context.Context, subs []subject.Subject) {
	var uids []int64
	for _, s := range subs {
		if s.HasLiveEvent() {
			uids = append(uids, s.UID)
		}
	}
	if len(uids) == 0 {
		return
	}
	snaps, err := b.client.LiveStatuses(ctx, uids)
	if err != nil {
		b.log.Warn("startup live status catch-up failed", slog.Int("subjects", len(uids)), slog.Any("err", err))
		return
	}
	changed := 0
	for _, uid := range uids {
		snap, ok := snaps[uid]
		if !ok {
			continue
		}
		if b.reconcile(ctx, snap) {
			changed++
		}
	}
	b.log.Info("startup live status catch-up done", slog.Int("subjects", len(uids)), slog.Int("changed", changed))
}

// Refresh fetches and reconciles a single subject.
func (b *Bootstrap) Refresh(ctx context.Context, s subject.Subject) {
	snap, ok, err := b.client.LiveStatus(ctx, s.UID)
	if err != nil {
		b.log.Warn("live status refresh failed", slog.Int64("uid", s.UID), slog.Any("err", err))
		return
	}
	if !ok {
		b.log.Debug("no live room for subject", slog.Int64("uid", s.UID))
		return
	}
	b.reconcile(ctx, snap)
}

func (b *Bootstrap) reconcile(ctx context.Context, snap livestatus.Snapshot) bool {
	res, err := b.rec.Reconcile(ctx, snap)
	if err != nil {
		b.log.Error("live status reconcile failed", slog.Int64("uid", snap.UID), slog.Any("err", err))
		return false
	}
	if res.Transition == livestatus.TransitionNone {
		return false
	}
	telemetry.IncVec(telemetry.LiveTransitions, SourceBootstrap, res.Transition.String())
	b.log.Info("live status changed while unwatched",
		slog.Int64("uid", snap.UID),
		slog.String("transition", res.Transition.String()))
	return true
}
