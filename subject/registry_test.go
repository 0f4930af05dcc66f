package subject

import (
	"context"
	"errors"
	"testing"
)

func TestEventKindRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want EventKind
	}{
		{"live_on", EventLiveOn},
		{"live_on,live_off", EventLiveOn | EventLiveOff},
		{" Dynamic , live_off", EventDynamic | EventLiveOff},
		{"live_on,,", EventLiveOn},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := ParseEventKinds(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseEventKinds(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	k := EventLiveOn | EventDynamic
	if got, err := ParseEventKinds(k.String()); err != nil || got != k {
		t.Errorf("round trip of %q = %v, %v", k.String(), got, err)
	}
}

func TestParseEventKindsRejectsUnknownNames(t *testing.T) {
	for _, in := range []string{"bogus", "live_on,dynamc"} {
		if k, err := ParseEventKinds(in); !errors.Is(err, ErrUnknownEventKind) || k != 0 {
			t.Errorf("ParseEventKinds(%q) = %v, %v, want ErrUnknownEventKind", in, k, err)
		}
	}
}

func TestSubjectFlags(t *testing.T) {
	room := int64(7)
	s := Subject{UID: 1, RoomID: &room, Events: EventLiveOff}
	if !s.HasLiveEvent() {
		t.Error("expected live event for live_off subject")
	}
	if s.HasDynamicEvent() {
		t.Error("unexpected dynamic event")
	}
	if !s.HasRoom() || s.RoomString() != "7" {
		t.Errorf("room = %v %q", s.HasRoom(), s.RoomString())
	}
	if (Subject{}).RoomString() != "-" {
		t.Error("expected - for missing room")
	}
}

func TestRegistryReadyAfterLoad(t *testing.T) {
	r := NewRegistry()
	if r.Ready() {
		t.Fatal("registry ready before Load")
	}
	var got Change
	r.Listen(0, func(_ context.Context, c Change) { got = c })
	r.Load(context.Background(), []Subject{{UID: 2}, {UID: 1}})
	if !r.Ready() {
		t.Fatal("registry not ready after Load")
	}
	if got.Type != ChangeLoaded || len(got.Subjects) != 2 || got.Subjects[0].UID != 1 {
		t.Errorf("unexpected load change: %+v", got)
	}
}

func TestRegistryListenerPriority(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.Listen(10, func(context.Context, Change) { order = append(order, "late") })
	r.Listen(-20000, func(context.Context, Change) { order = append(order, "first") })
	r.Listen(10, func(context.Context, Change) { order = append(order, "late2") })
	r.Put(context.Background(), Subject{UID: 1})

	want := []string{"first", "late", "late2"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRegistryPutUpdateRemove(t *testing.T) {
	r := NewRegistry()
	var changes []Change
	r.Listen(0, func(_ context.Context, c Change) { changes = append(changes, c) })
	ctx := context.Background()

	r.Put(ctx, Subject{UID: 5, Name: "a"})
	r.Put(ctx, Subject{UID: 5, Name: "b", Events: EventDynamic})
	if !r.Remove(ctx, 5) {
		t.Fatal("Remove returned false for existing subject")
	}
	if r.Remove(ctx, 5) {
		t.Fatal("Remove returned true for missing subject")
	}

	if len(changes) != 3 {
		t.Fatalf("got %d changes, want 3", len(changes))
	}
	if changes[0].Type != ChangeAdded || changes[0].New.Name != "a" {
		t.Errorf("change 0 = %+v", changes[0])
	}
	if changes[1].Type != ChangeUpdated || changes[1].Old.Name != "a" || changes[1].New.Name != "b" {
		t.Errorf("change 1 = %+v", changes[1])
	}
	if changes[2].Type != ChangeRemoved || changes[2].Old.Name != "b" {
		t.Errorf("change 2 = %+v", changes[2])
	}
}

func TestRegistryFilters(t *testing.T) {
	r := NewRegistry()
	r.Load(context.Background(), []Subject{
		{UID: 1, Events: EventLiveOn},
		{UID: 2, Events: EventDynamic},
		{UID: 3, Events: EventLiveOff | EventDynamic},
	})
	live := r.UIDs(LiveEnabled)
	if len(live) != 2 {
		t.Errorf("live uids = %v", live)
	}
	if _, ok := live[2]; ok {
		t.Error("uid 2 should not be live enabled")
	}
	dyn := r.List(DynamicEnabled)
	if len(dyn) != 2 || dyn[0].UID != 2 || dyn[1].UID != 3 {
		t.Errorf("dynamic subjects = %+v", dyn)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d", r.Len())
	}
}
