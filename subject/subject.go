// Package subject holds the watched streaming accounts ("subjects") and the
// registry that owns the current watch set.
//
// The registry is the single owner of subject state. Other components keep a
// reference to it and read current flags on demand instead of copying subjects
// into their own structures. Changes are announced to listeners registered with
// an explicit priority; lower priorities run first.
package subject

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EventKind is a bitmask of the event kinds a subject has push targets for.
type EventKind uint8

const (
	// EventLiveOn means some target wants "went live" notifications.
	EventLiveOn EventKind = 1 << iota
	// EventLiveOff means some target wants "went offline" notifications.
	EventLiveOff
	// EventDynamic means some target wants "new dynamic" notifications.
	EventDynamic
)

// Has reports whether all bits of other are set.
func (k EventKind) Has(other EventKind) bool { return k&other == other && other != 0 }

// String renders the set flags as a comma separated list, e.g. "live_on,dynamic".
func (k EventKind) String() string {
	var parts []string
	if k&EventLiveOn != 0 {
		parts = append(parts, "live_on")
	}
	if k&EventLiveOff != 0 {
		parts = append(parts, "live_off")
	}
	if k&EventDynamic != 0 {
		parts = append(parts, "dynamic")
	}
	return strings.Join(parts, ",")
}

// ErrUnknownEventKind is returned by ParseEventKinds for a name it does not know.
var ErrUnknownEventKind = errors.New("unknown event kind")

// ParseEventKinds parses the format produced by String. Empty entries are
// skipped; any other unrecognized name is an error.
func ParseEventKinds(s string) (EventKind, error) {
	var k EventKind
	for _, p := range strings.Split(s, ",") {
		switch name := strings.TrimSpace(strings.ToLower(p)); name {
		case "":
		case "live_on":
			k |= EventLiveOn
		case "live_off":
			k |= EventLiveOff
		case "dynamic":
			k |= EventDynamic
		default:
			return 0, fmt.Errorf("%w: %q", ErrUnknownEventKind, name)
		}
	}
	return k, nil
}

// Subject is a watched account. UID is platform assigned and never changes.
type Subject struct {
	UID    int64     `json:"uid"`
	Name   string    `json:"name"`
	RoomID *int64    `json:"room_id,omitempty"`
	Events EventKind `json:"events"`
}

// HasLiveEvent reports whether the subject wants live on or live off events.
func (s Subject) HasLiveEvent() bool { return s.Events&(EventLiveOn|EventLiveOff) != 0 }

// HasDynamicEvent reports whether the subject wants dynamic events.
func (s Subject) HasDynamicEvent() bool { return s.Events.Has(EventDynamic) }

// HasRoom reports whether the subject has opened a live room.
func (s Subject) HasRoom() bool { return s.RoomID != nil && *s.RoomID > 0 }

// RoomString returns the room id or "-" when the subject has no room.
func (s Subject) RoomString() string {
	if !s.HasRoom() {
		return "-"
	}
	return strconv.FormatInt(*s.RoomID, 10)
}
