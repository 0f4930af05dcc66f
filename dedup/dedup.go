// Package dedup provides a fixed-capacity, insertion-ordered set of ids used to
// suppress re-processing of feed items that were already seen.
//
// Eviction is strict FIFO by first insertion. Lookups and repeated Adds of a
// present id do not refresh its position. A Set is not safe for concurrent
// mutation; it is meant to be owned by a single polling goroutine. Capacity must
// be sized for the number of distinct items a feed returns within the window the
// caller wants to remember.
package dedup

// Set is a bounded FIFO set of string ids.
type Set struct {
	ring    []string
	head    int // index of the oldest id
	size    int
	members map[string]struct{}
}

// New returns an empty set holding at most capacity ids. Capacity below 1 is
// treated as 1.
func New(capacity int) *Set {
	if capacity < 1 {
		capacity = 1
	}
	return &Set{
		ring:    make([]string, capacity),
		members: make(map[string]struct{}, capacity),
	}
}

// Contains reports whether id is currently held.
func (s *Set) Contains(id string) bool {
	_, ok := s.members[id]
	return ok
}

// Add inserts id. If id is already present nothing changes. Otherwise, when the
// set is full, the oldest id is evicted first.
func (s *Set) Add(id string) {
	if s.Contains(id) {
		return
	}
	if s.size == len(s.ring) {
		delete(s.members, s.ring[s.head])
		s.ring[s.head] = id
		s.head = (s.head + 1) % len(s.ring)
	} else {
		s.ring[(s.head+s.size)%len(s.ring)] = id
		s.size++
	}
	s.members[id] = struct{}{}
}

// AddAll adds ids in order.
func (s *Set) AddAll(ids []string) {
	for _, id := range ids {
		s.Add(id)
	}
}

// Len returns the number of ids held.
func (s *Set) Len() int { return s.size }

// Cap returns the configured capacity.
func (s *Set) Cap() int { return len(s.ring) }
