// Package dynamic polls the account's dynamic feed and publishes an event for
// every new item authored by a watched subject.
package dynamic

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/starwatch/bilibili"
	"github.com/onnwee/starwatch/dedup"
	"github.com/onnwee/starwatch/events"
	"github.com/onnwee/starwatch/subject"
	"github.com/onnwee/starwatch/telemetry"
)

// Feed fetches the newest page of the dynamic feed.
type Feed interface {
	RecentDynamics(ctx context.Context) ([]bilibili.FeedItem, error)
}

// Publisher receives the derived events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) int
}

// Options tune a Poller.
type Options struct {
	Interval      time.Duration // delay between the end of one tick and the next
	Freshness     time.Duration // items older than this are suppressed; 0 disables
	DedupCapacity int
	RawLog        bool // log every new item's raw payload at debug level
}

// Poller is the dynamic feed watcher. Run owns the dedup set; Tick and Seed must
// not be called concurrently with Run.
type Poller struct {
	feed     Feed
	registry *subject.Registry
	pub      Publisher
	opts     Options
	seen     *dedup.Set
	now      func() time.Time
	log      *slog.Logger
}

// New builds a Poller.
func New(feed Feed, registry *subject.Registry, pub Publisher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.DedupCapacity <= 0 {
		opts.DedupCapacity = 1000
	}
	return &Poller{
		feed:     feed,
		registry: registry,
		pub:      pub,
		opts:     opts,
		seen:     dedup.New(opts.DedupCapacity),
		now:      time.Now,
		log:      slog.Default().With(slog.String("component", "dynamic_poller")),
	}
}

// Seed marks every item of one fetch as seen without publishing anything, so a
// restart does not re-announce the current feed page.
func (p *Poller) Seed(ctx context.Context) error {
	items, err := p.feed.RecentDynamics(ctx)
	if err != nil {
		return err
	}
	for _, it := range items {
		p.seen.Add(it.ID)
	}
	telemetry.SetGauge(telemetry.DedupEntries, p.seen.Len())
	return nil
}

// Tick fetches the feed once and publishes events for new items. It returns the
// number of events published.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "dynamic.tick")

	var (
		items []bilibili.FeedItem
		err   error
	)
	telemetry.TimeFunc(telemetry.DynamicPollDuration, func() {
		items, err = p.feed.RecentDynamics(ctx)
	})
	if err != nil {
		telemetry.EndSpan(span, err)
		return 0, err
	}
	telemetry.IncAdd(telemetry.DynamicsFetched, len(items))

	sent := 0
	for _, it := range items {
		if p.dispatch(ctx, it) {
			sent++
		}
	}
	telemetry.SetGauge(telemetry.DedupEntries, p.seen.Len())
	span.SetAttributes(attribute.Int("items", len(items)), attribute.Int("dispatched", sent))
	telemetry.EndSpan(span, nil)
	return sent, nil
}

// dispatch handles one feed item and reports whether an event was published.
func (p *Poller) dispatch(ctx context.Context, it bilibili.FeedItem) bool {
	if p.seen.Contains(it.ID) {
		return false
	}
	p.seen.Add(it.ID)
	log := p.log.With(slog.String("dynamic_id", it.ID), slog.Int64("uid", it.AuthorUID))
	if p.opts.RawLog {
		log.Debug("new dynamic", slog.String("kind", it.Kind), slog.String("raw", string(it.Raw)))
	}
	if it.Kind == bilibili.KindLiveRcmd {
		return false
	}
	sub, ok := p.registry.Get(it.AuthorUID)
	if !ok || !sub.HasDynamicEvent() {
		return false
	}
	if p.opts.Freshness > 0 && it.PublishedAt > 0 {
		age := p.now().Sub(time.Unix(it.PublishedAt, 0))
		if age > p.opts.Freshness {
			telemetry.Inc(telemetry.DynamicsStale)
			log.Info("dynamic outside freshness window; suppressed",
				slog.Duration("age", age.Truncate(time.Second)),
				slog.Duration("window", p.opts.Freshness))
			return false
		}
	}
	p.pub.Publish(ctx, events.DynamicUpdateEvent{
		Subject:   sub,
		Item:      it,
		Action:    Action(it),
		URL:       URL(it),
		Timestamp: p.now(),
	})
	telemetry.Inc(telemetry.DynamicsDispatched)
	return true
}

// Run seeds the dedup set and polls until ctx ends. The next tick is
// scheduled only after the previous one has finished.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("dynamic poller started",
		slog.Duration("interval", p.opts.Interval),
		slog.Duration("freshness", p.opts.Freshness),
		slog.Int("dedup_capacity", p.seen.Cap()))
	if err := p.Seed(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.log.Warn("dedup pre-seed failed; items already in the feed may be announced if within the freshness window",
			slog.Duration("window", p.opts.Freshness),
			slog.String("class", bilibili.ClassifyError(err).String()),
			slog.Any("err", err))
	}
	for {
		if !sleep(ctx, p.opts.Interval) {
			p.log.Info("dynamic poller stopped")
			return nil
		}
		if _, err := p.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			class := bilibili.ClassifyError(err)
			telemetry.IncVec(telemetry.PollFailures, "dynamic", class.String())
			p.log.Warn("dynamic feed fetch failed", slog.String("class", class.String()), slog.Any("err", err))
		}
	}
}

// sleep waits d or until ctx ends; false means ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
