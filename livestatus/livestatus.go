// Package livestatus reconciles freshly polled live status against the last
// persisted record for a subject and reports the resulting transition.
//
// Decide is a pure function over (persisted, fresh). Reconciler applies its
// decision to a Store while holding one process-wide lock, which every
// reconciliation path (backup poller, bootstrap, primary live-room channel)
// shares. Whichever caller observes a real transition first mutates the record;
// the second caller then sees the updated record and gets TransitionNone.
package livestatus

import "fmt"

// Transition is a derived live status change.
type Transition int

const (
	// TransitionNone means nothing worth announcing changed.
	TransitionNone Transition = iota
	// TransitionWentLive is offline to live.
	TransitionWentLive
	// TransitionWentOffline is live to offline.
	TransitionWentOffline
	// TransitionRestartedLive is live to live with a new start time: an offline
	// and online pair was missed in between.
	TransitionRestartedLive
)

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionWentLive:
		return "went_live"
	case TransitionWentOffline:
		return "went_offline"
	case TransitionRestartedLive:
		return "restarted_live"
	default:
		return fmt.Sprintf("transition(%d)", int(t))
	}
}

// Record is the persisted live status of one subject. StartTime and EndTime are
// epoch seconds; nil means the field is absent.
type Record struct {
	UID       int64
	Live      bool
	StartTime *int64
	EndTime   *int64
}

// Snapshot is freshly observed live status.
type Snapshot struct {
	UID       int64
	RoomID    int64
	Live      bool
	StartTime int64
	Title     string
	Name      string
	Cover     string
}

// OpKind is a single store mutation.
type OpKind int

const (
	OpSetStatus OpKind = iota
	OpSetStartTime
	OpDeleteEndTime
	OpReset
)

func (k OpKind) String() string {
	switch k {
	case OpSetStatus:
		return "set_status"
	case OpSetStartTime:
		return "set_start_time"
	case OpDeleteEndTime:
		return "delete_end_time"
	case OpReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Op is one mutation with its argument (Live for OpSetStatus, Time for
// OpSetStartTime).
type Op struct {
	Kind OpKind
	Live bool
	Time int64
}

// Decision is the outcome of Decide.
type Decision struct {
	Record     Record
	Transition Transition
	Ops        []Op
}

func int64p(v int64) *int64 { return &v }
