package livestatus

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory. State is lost on restart, so it
// suits tests and single-shot runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]memRecord
}

type memRecord struct {
	hasStatus bool
	Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]memRecord)}
}

func (m *MemoryStore) Get(_ context.Context, uid int64) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[uid]
	if !ok || !r.hasStatus {
		return Record{}, false, nil
	}
	return copyRecord(r.Record), true, nil
}

func (m *MemoryStore) update(uid int64, fn func(r *memRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[uid]
	r.UID = uid
	fn(&r)
	m.records[uid] = r
}

func (m *MemoryStore) SetStatus(_ context.Context, uid int64, live bool) error {
	m.update(uid, func(r *memRecord) { r.hasStatus = true; r.Live = live })
	return nil
}

func (m *MemoryStore) SetStartTime(_ context.Context, uid int64, t int64) error {
	m.update(uid, func(r *memRecord) { r.StartTime = int64p(t) })
	return nil
}

func (m *MemoryStore) SetEndTime(_ context.Context, uid int64, t int64) error {
	m.update(uid, func(r *memRecord) { r.EndTime = int64p(t) })
	return nil
}

func (m *MemoryStore) DeleteEndTime(_ context.Context, uid int64) error {
	m.update(uid, func(r *memRecord) { r.EndTime = nil })
	return nil
}

func (m *MemoryStore) Reset(_ context.Context, uid int64) error {
	m.update(uid, func(r *memRecord) { r.StartTime = nil; r.EndTime = nil })
	return nil
}

// Apply works on a copy of the record and stores it only when every op succeeded.
func (m *MemoryStore) Apply(_ context.Context, uid int64, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[uid]
	r.Record = copyRecord(r.Record)
	r.UID = uid
	for _, op := range ops {
		switch op.Kind {
		case OpSetStatus:
			r.hasStatus = true
			r.Live = op.Live
		case OpSetStartTime:
			r.StartTime = int64p(op.Time)
		case OpDeleteEndTime:
			r.EndTime = nil
		case OpReset:
			r.StartTime, r.EndTime = nil, nil
		default:
			return unknownOp(uid, op.Kind)
		}
	}
	m.records[uid] = r
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if r.hasStatus {
			out = append(out, copyRecord(r.Record))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func copyRecord(r Record) Record {
	out := Record{UID: r.UID, Live: r.Live}
	if r.StartTime != nil {
		out.StartTime = int64p(*r.StartTime)
	}
	if r.EndTime != nil {
		out.EndTime = int64p(*r.EndTime)
	}
	return out
}
