// Package events defines the domain events produced by the watchers and a
// small synchronous bus that dispatches them to subscribers.
//
// The set of event kinds is closed. Subscribers register per kind with an
// explicit priority; lower priorities run first. The backup poller and the
// primary live-room channel publish the same event shapes, and consumers must
// treat them as equivalent.
package events

import (
	"time"

	"github.com/onnwee/starwatch/bilibili"
	"github.com/onnwee/starwatch/livestatus"
	"github.com/onnwee/starwatch/subject"
)

// Kind identifies an event type.
type Kind int

const (
	KindDynamicUpdate Kind = iota
	KindLiveOn
	KindLiveOff
)

// Kinds lists every kind, in declaration order.
var Kinds = []Kind{KindDynamicUpdate, KindLiveOn, KindLiveOff}

func (k Kind) String() string {
	switch k {
	case KindDynamicUpdate:
		return "dynamic_update"
	case KindLiveOn:
		return "live_on"
	case KindLiveOff:
		return "live_off"
	default:
		return "unknown"
	}
}

// Event is implemented by every event type.
type Event interface {
	Kind() Kind
	Time() time.Time
}

// DynamicUpdateEvent announces a new dynamic by a watched subject.
type DynamicUpdateEvent struct {
	Subject   subject.Subject   `json:"subject"`
	Item      bilibili.FeedItem `json:"item"`
	Action    string            `json:"action"`
	URL       string            `json:"url"`
	Timestamp time.Time         `json:"timestamp"`
}

func (DynamicUpdateEvent) Kind() Kind        { return KindDynamicUpdate }
func (e DynamicUpdateEvent) Time() time.Time { return e.Timestamp }

// LiveOnEvent announces that a subject went live. Reconnect hints that the
// subject went offline only moments ago, so push handlers may send a short
// notice instead of the full announcement.
type LiveOnEvent struct {
	Subject   subject.Subject     `json:"subject"`
	Room      livestatus.Snapshot `json:"room"`
	Timestamp time.Time           `json:"timestamp"`
	Reconnect bool                `json:"reconnect"`
}

func (LiveOnEvent) Kind() Kind        { return KindLiveOn }
func (e LiveOnEvent) Time() time.Time { return e.Timestamp }

// LiveOffEvent announces that a subject went offline.
type LiveOffEvent struct {
	Subject   subject.Subject     `json:"subject"`
	Room      livestatus.Snapshot `json:"room"`
	Timestamp time.Time           `json:"timestamp"`
}

func (LiveOffEvent) Kind() Kind        { return KindLiveOff }
func (e LiveOffEvent) Time() time.Time { return e.Timestamp }
