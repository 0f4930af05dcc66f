// Package follow makes the logged-in account follow every subject whose
// dynamics are watched, one account at a time at a fixed pace, so the feed
// actually contains their posts.
package follow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/starwatch/bilibili"
	"github.com/onnwee/starwatch/subject"
	"github.com/onnwee/starwatch/telemetry"
)

// Client is the subset of the platform API the queue needs.
type Client interface {
	Self(ctx context.Context) (bilibili.Self, error)
	Followings(ctx context.Context, selfUID int64) (map[int64]struct{}, error)
	Follow(ctx context.Context, uid int64) error
}

// Queue is a FIFO of subjects waiting to be followed, drained by a single
// consumer. Enqueue may be called from any goroutine.
type Queue struct {
	client   Client
	interval time.Duration

	mu       sync.Mutex
	pending  []subject.Subject
	queued   map[int64]struct{}
	followed map[int64]struct{}
	wake     chan struct{}

	log *slog.Logger
}

// NewQueue returns an empty queue that waits interval after every follow.
func NewQueue(client Client, interval time.Duration) *Queue {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Queue{
		client:   client,
		interval: interval,
		queued:   make(map[int64]struct{}),
		followed: make(map[int64]struct{}),
		wake:     make(chan struct{}, 1),
		log:      slog.Default().With(slog.String("component", "auto_follow")),
	}
}

// Enqueue appends s unless it is already queued or followed. It reports
// whether s was added.
func (q *Queue) Enqueue(s subject.Subject) bool {
	q.mu.Lock()
	if _, ok := q.queued[s.UID]; ok {
		q.mu.Unlock()
		return false
	}
	if _, ok := q.followed[s.UID]; ok {
		q.mu.Unlock()
		return false
	}
	q.queued[s.UID] = struct{}{}
	q.pending = append(q.pending, s)
	depth := len(q.pending)
	q.mu.Unlock()

	telemetry.SetGauge(telemetry.FollowQueueDepth, depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of queued subjects.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Followed reports whether uid is known to be followed.
func (q *Queue) Followed(uid int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.followed[uid]
	return ok
}

// Seed loads the account's current following list (plus the account itself)
// into the followed set and enqueues every candidate not in it. A failed
// following-list fetch is logged and seeding continues with only the account
// itself marked as followed. If the account itself cannot be resolved, every
// candidate is enqueued (following an already followed account is a no-op on
// the platform) and the error is returned for the caller to report.
func (q *Queue) Seed(ctx context.Context, candidates []subject.Subject) error {
	self, selfErr := q.client.Self(ctx)
	var following map[int64]struct{}
	if selfErr == nil {
		var err error
		following, err = q.client.Followings(ctx, self.UID)
		if err != nil {
			q.log.Warn("following list fetch failed; seeding with self only",
				slog.String("class", bilibili.ClassifyError(err).String()),
				slog.Any("err", err))
			following = nil
		}
		q.mu.Lock()
		for uid := range following {
			q.followed[uid] = struct{}{}
		}
		q.followed[self.UID] = struct{}{}
		q.mu.Unlock()
	}

	added := 0
	for _, s := range candidates {
		if q.Enqueue(s) {
			added++
		}
	}
	if selfErr != nil {
		return fmt.Errorf("resolve logged-in account, queued all %d candidates: %w", added, selfErr)
	}
	q.log.Info("auto follow seeded",
		slog.Int64("self_uid", self.UID),
		slog.Int("following", len(following)),
		slog.Int("queued", added))
	return nil
}

// OnChange is a subject.Listener that enqueues subjects which become dynamic
// enabled.
func (q *Queue) OnChange(_ context.Context, c subject.Change) {
	switch c.Type {
	case subject.ChangeAdded:
		if c.New.HasDynamicEvent() {
			q.Enqueue(c.New)
		}
	case subject.ChangeUpdated:
		if c.New.HasDynamicEvent() && !c.Old.HasDynamicEvent() {
			q.Enqueue(c.New)
		}
	}
}

// take blocks until a subject is available or ctx ends.
func (q *Queue) take(ctx context.Context) (subject.Subject, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			s := q.pending[0]
			q.pending[0] = subject.Subject{}
			q.pending = q.pending[1:]
			delete(q.queued, s.UID)
			depth := len(q.pending)
			q.mu.Unlock()
			telemetry.SetGauge(telemetry.FollowQueueDepth, depth)
			return s, true
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return subject.Subject{}, false
		case <-q.wake:
		}
	}
}

// Run drains the queue until ctx ends.
func (q *Queue) Run(ctx context.Context) error {
	q.log.Info("auto follow consumer started", slog.Duration("interval", q.interval))
	for {
		s, ok := q.take(ctx)
		if !ok {
			q.log.Info("auto follow consumer stopped")
			return nil
		}
		if q.Followed(s.UID) {
			continue
		}
		log := q.log.With(slog.Int64("uid", s.UID), slog.String("name", s.Name))
		if err := q.client.Follow(ctx, s.UID); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			class := bilibili.ClassifyError(err)
			telemetry.IncVec(telemetry.FollowsFailed, class.String())
			log.Warn("follow failed; skipped", slog.String("class", class.String()), slog.Any("err", err))
		} else {
			q.mu.Lock()
			q.followed[s.UID] = struct{}{}
			q.mu.Unlock()
			telemetry.Inc(telemetry.FollowsSucceeded)
			log.Info("followed subject")
		}
		t := time.NewTimer(q.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			q.log.Info("auto follow consumer stopped")
			return nil
		case <-t.C:
		}
	}
}
