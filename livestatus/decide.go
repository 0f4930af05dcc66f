package livestatus

// Decide computes the new record, the ordered store mutations and the
// transition for fresh given the persisted record. found is false when nothing
// was ever persisted for the subject.
//
// The first observation of a subject is never a transition. End time is never
// written here; it is only cleared when a new live session starts.
func Decide(persisted Record, found bool, fresh Snapshot) Decision {
	uid := fresh.UID
	if !found {
		rec := Record{UID: uid, Live: fresh.Live}
		ops := []Op{{Kind: OpSetStatus, Live: fresh.Live}}
		if fresh.Live {
			rec.StartTime = int64p(fresh.StartTime)
			ops = append(ops, Op{Kind: OpSetStartTime, Time: fresh.StartTime})
		}
		return Decision{Record: rec, Transition: TransitionNone, Ops: ops}
	}

	switch {
	case persisted.Live && fresh.Live:
		if persisted.StartTime != nil && *persisted.StartTime == fresh.StartTime {
			return Decision{Record: persisted, Transition: TransitionNone}
		}
		return Decision{
			Record:     Record{UID: uid, Live: true, StartTime: int64p(fresh.StartTime)},
			Transition: TransitionRestartedLive,
			Ops: []Op{
				{Kind: OpReset},
				{Kind: OpSetStatus, Live: true},
				{Kind: OpSetStartTime, Time: fresh.StartTime},
				{Kind: OpDeleteEndTime},
			},
		}
	case persisted.Live && !fresh.Live:
		rec := persisted
		rec.Live = false
		return Decision{
			Record:     rec,
			Transition: TransitionWentOffline,
			Ops:        []Op{{Kind: OpSetStatus, Live: false}},
		}
	case !persisted.Live && fresh.Live:
		return Decision{
			Record:     Record{UID: uid, Live: true, StartTime: int64p(fresh.StartTime)},
			Transition: TransitionWentLive,
			Ops: []Op{
				{Kind: OpReset},
				{Kind: OpSetStatus, Live: true},
				{Kind: OpSetStartTime, Time: fresh.StartTime},
				{Kind: OpDeleteEndTime},
			},
		}
	default:
		return Decision{Record: persisted, Transition: TransitionNone}
	}
}
