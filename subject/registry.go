package subject

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// ChangeType identifies a watch set notification.
type ChangeType int

const (
	// ChangeLoaded fires once after the initial snapshot is in place.
	ChangeLoaded ChangeType = iota
	// ChangeAdded fires when a new subject joins the watch set.
	ChangeAdded
	// ChangeUpdated fires when an existing subject is replaced.
	ChangeUpdated
	// ChangeRemoved fires when a subject leaves the watch set.
	ChangeRemoved
)

func (c ChangeType) String() string {
	switch c {
	case ChangeLoaded:
		return "loaded"
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is delivered to listeners. Old is set for updates and removals,
// New for additions and updates. Subjects is the full snapshot for ChangeLoaded.
type Change struct {
	Type     ChangeType
	Old      Subject
	New      Subject
	Subjects []Subject
}

// Listener reacts to watch set changes. It runs on the goroutine that mutated
// the registry, after the registry lock is released.
type Listener func(ctx context.Context, c Change)

type registration struct {
	priority int
	seq      int
	fn       Listener
}

// Registry owns the watch set.
type Registry struct {
	mu        sync.RWMutex
	subjects  map[int64]Subject
	loaded    bool
	listeners []registration
	seq       int
}

// NewRegistry returns an empty registry that is not ready until Load is called.
func NewRegistry() *Registry {
	return &Registry{subjects: make(map[int64]Subject)}
}

// Listen registers fn. Listeners with a lower priority run first; equal
// priorities run in registration order.
func (r *Registry) Listen(priority int, fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.listeners = append(r.listeners, registration{priority: priority, seq: r.seq, fn: fn})
	sort.SliceStable(r.listeners, func(i, j int) bool {
		if r.listeners[i].priority != r.listeners[j].priority {
			return r.listeners[i].priority < r.listeners[j].priority
		}
		return r.listeners[i].seq < r.listeners[j].seq
	})
}

// Load replaces the watch set with subjects and marks the registry ready.
func (r *Registry) Load(ctx context.Context, subjects []Subject) {
	r.mu.Lock()
	r.subjects = make(map[int64]Subject, len(subjects))
	for _, s := range subjects {
		r.subjects[s.UID] = s
	}
	r.loaded = true
	snapshot := r.listLocked(nil)
	r.mu.Unlock()
	slog.Info("watch set loaded", slog.Int("subjects", len(snapshot)), slog.String("component", "subject"))
	r.notify(ctx, Change{Type: ChangeLoaded, Subjects: snapshot})
}

// Ready reports whether the initial snapshot has been loaded.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Put adds s or replaces the subject with the same UID and notifies listeners.
func (r *Registry) Put(ctx context.Context, s Subject) {
	r.mu.Lock()
	old, existed := r.subjects[s.UID]
	r.subjects[s.UID] = s
	r.mu.Unlock()
	if existed {
		r.notify(ctx, Change{Type: ChangeUpdated, Old: old, New: s})
		return
	}
	r.notify(ctx, Change{Type: ChangeAdded, New: s})
}

// Remove drops uid from the watch set. It reports whether the subject existed.
func (r *Registry) Remove(ctx context.Context, uid int64) bool {
	r.mu.Lock()
	old, existed := r.subjects[uid]
	delete(r.subjects, uid)
	r.mu.Unlock()
	if !existed {
		return false
	}
	r.notify(ctx, Change{Type: ChangeRemoved, Old: old})
	return true
}

// Get returns the current subject for uid.
func (r *Registry) Get(uid int64) (Subject, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subjects[uid]
	return s, ok
}

// List returns the subjects matching filter (all when nil), ordered by UID.
func (r *Registry) List(filter func(Subject) bool) []Subject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(filter)
}

// UIDs returns the set of uids matching filter.
func (r *Registry) UIDs(filter func(Subject) bool) map[int64]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]struct{})
	for uid, s := range r.subjects {
		if filter == nil || filter(s) {
			out[uid] = struct{}{}
		}
	}
	return out
}

// Len returns the number of watched subjects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subjects)
}

func (r *Registry) listLocked(filter func(Subject) bool) []Subject {
	out := make([]Subject, 0, len(r.subjects))
	for _, s := range r.subjects {
		if filter == nil || filter(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (r *Registry) notify(ctx context.Context, c Change) {
	r.mu.RLock()
	listeners := make([]registration, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()
	for _, l := range listeners {
		l.fn(ctx, c)
	}
}

// LiveEnabled is a filter for subjects with live events.
func LiveEnabled(s Subject) bool { return s.HasLiveEvent() }

// DynamicEnabled is a filter for subjects with dynamic events.
func DynamicEnabled(s Subject) bool { return s.HasDynamicEvent() }
