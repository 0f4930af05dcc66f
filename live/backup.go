package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/starwatch/bilibili"
	"github.com/onnwee/starwatch/livestatus"
	"github.com/onnwee/starwatch/subject"
	"github.com/onnwee/starwatch/telemetry"
)

// Backup periodically batch-polls the live status of every live-enabled
// subject. It covers for the primary live-room channel when that misses
// transitions.
type Backup struct {
	client   StatusClient
	registry *subject.Registry
	rec      *livestatus.Reconciler
	emitter
	interval time.Duration
	log      *slog.Logger
}

// NewBackup builds a backup poller running every interval.
func NewBackup(client StatusClient, registry *subject.Registry, rec *livestatus.Reconciler, pub Publisher, interval, reconnectWindow time.Duration) *Backup {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Backup{
		client:   client,
		registry: registry,
		rec:      rec,
		emitter:  emitter{pub: pub, window: reconnectWindow, now: time.Now},
		interval: interval,
		log:      slog.Default().With(slog.String("component", "backup_poller")),
	}
}

// Cycle runs one poll over the current watch set and returns the number of
// events published. A failure reconciling one subject is logged and does not
// stop the others.
func (b *Backup) Cycle(ctx context.Context) (int, error) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	uids := sortedUIDs(b.registry.UIDs(subject.LiveEnabled))
	if len(uids) == 0 {
		return 0, nil
	}
	ctx, span := telemetry.StartSpan(ctx, "live.backup_cycle", attribute.Int("subjects", len(uids)))
	telemetry.Inc(telemetry.BackupPollCycles)

	var (
		snaps map[int64]livestatus.Snapshot
		err   error
	)
	telemetry.TimeFunc(telemetry.BackupPollDuration, func() {
		snaps, err = b.client.LiveStatuses(ctx, uids)
	})
	if err != nil {
		telemetry.EndSpan(span, err)
		return 0, err
	}

	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "backup_poller"))
	published := 0
	for _, uid := range uids {
		snap, ok := snaps[uid]
		if !ok {
			log.Debug("no live status returned", slog.Int64("uid", uid))
			continue
		}
		sub, ok := b.registry.Get(uid)
		if !ok {
			continue // removed while fetching
		}
		res, err := b.rec.Reconcile(ctx, snap)
		if err != nil {
			if ctx.Err() != nil {
				telemetry.EndSpan(span, ctx.Err())
				return published, ctx.Err()
			}
			log.Error("live status reconcile failed", slog.Int64("uid", uid), slog.Any("err", err))
			continue
		}
		if !res.Found {
			telemetry.Inc(telemetry.LiveStatusAnomalies)
			log.Error("no persisted live status for watched subject; initialized from poll",
				slog.Int64("uid", uid), slog.Bool("live", snap.Live))
		}
		if b.emit(ctx, SourceBackup, sub, snap, res) {
			published++
			log.Info("live transition detected by backup poller",
				slog.Int64("uid", uid),
				slog.String("name", sub.Name),
				slog.String("transition", res.Transition.String()))
		}
	}
	span.SetAttributes(attribute.Int("published", published))
	telemetry.EndSpan(span, nil)
	return published, nil
}

// Run polls until ctx ends. The next cycle starts interval after the previous
// one finished.
func (b *Backup) Run(ctx context.Context) error {
	b.log.Info("backup poller started", slog.Duration("interval", b.interval))
	for {
		if _, err := b.Cycle(ctx); err != nil && ctx.Err() == nil {
			class := bilibili.ClassifyError(err)
			telemetry.IncVec(telemetry.PollFailures, "backup", class.String())
			b.log.Warn("backup live status poll failed", slog.String("class", class.String()), slog.Any("err", err))
		}
		t := time.NewTimer(b.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			b.log.Info("backup poller stopped")
			return nil
		case <-t.C:
		}
	}
}
