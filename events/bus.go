package events

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/onnwee/starwatch/telemetry"
)

// Handler consumes one event. A returned error is logged by the Bus and does
// not stop delivery to the remaining handlers.
type Handler func(ctx context.Context, e Event) error

type subscription struct {
	priority int
	seq      uint64
	name     string
	fn       Handler
}

// Bus dispatches events synchronously to the handlers subscribed to their
// kind. It is safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	seq  uint64
	subs map[Kind][]subscription
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscription)}
}

// Subscribe registers fn for kind. Lower priorities run first; equal
// priorities run in registration order. name only appears in logs.
func (b *Bus) Subscribe(kind Kind, priority int, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	// Copy so an in-flight Publish keeps iterating its own snapshot.
	list := make([]subscription, 0, len(b.subs[kind])+1)
	list = append(list, b.subs[kind]...)
	list = append(list, subscription{priority: priority, seq: b.seq, name: name, fn: fn})
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority < list[j].priority })
	b.subs[kind] = list
}

// SubscribeAll registers fn for every kind.
func (b *Bus) SubscribeAll(priority int, name string, fn Handler) {
	for _, k := range Kinds {
		b.Subscribe(k, priority, name, fn)
	}
}

// Publish delivers e to every handler subscribed to its kind and returns the
// number of handlers that failed.
func (b *Bus) Publish(ctx context.Context, e Event) int {
	b.mu.RLock()
	list := b.subs[e.Kind()]
	b.mu.RUnlock()

	telemetry.IncVec(telemetry.EventsPublished, e.Kind().String())
	failed := 0
	for _, s := range list {
		if err := s.fn(ctx, e); err != nil {
			failed++
			telemetry.IncVec(telemetry.EventHandlerFailures, e.Kind().String())
			telemetry.LoggerWithCorr(ctx).Warn("event handler failed",
				slog.String("component", "events"),
				slog.String("kind", e.Kind().String()),
				slog.String("handler", s.name),
				slog.Any("err", err))
		}
	}
	return failed
}

// LogHandler logs every event at info level.
func LogHandler(ctx context.Context, e Event) error {
	attrs := []any{slog.String("component", "events"), slog.String("kind", e.Kind().String())}
	switch ev := e.(type) {
	case DynamicUpdateEvent:
		attrs = append(attrs,
			slog.Int64("uid", ev.Subject.UID),
			slog.String("name", ev.Subject.Name),
			slog.String("dynamic_id", ev.Item.ID),
			slog.String("action", ev.Action),
			slog.String("url", ev.URL))
	case LiveOnEvent:
		attrs = append(attrs,
			slog.Int64("uid", ev.Subject.UID),
			slog.String("name", ev.Subject.Name),
			slog.Int64("room_id", ev.Room.RoomID),
			slog.String("title", ev.Room.Title),
			slog.Bool("reconnect", ev.Reconnect))
	case LiveOffEvent:
		attrs = append(attrs,
			slog.Int64("uid", ev.Subject.UID),
			slog.String("name", ev.Subject.Name),
			slog.Int64("room_id", ev.Room.RoomID))
	}
	telemetry.LoggerWithCorr(ctx).Info("event", attrs...)
	return nil
}
