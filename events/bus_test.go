package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/starwatch/bilibili"
	"github.com/onnwee/starwatch/livestatus"
	"github.com/onnwee/starwatch/subject"
)

func TestBusPriorityOrder(t *testing.T) {
	b := NewBus()
	var got []string
	rec := func(name string) Handler {
		return func(context.Context, Event) error {
			got = append(got, name)
			return nil
		}
	}
	b.Subscribe(KindLiveOn, 10, "c", rec("c"))
	b.Subscribe(KindLiveOn, -5, "a", rec("a"))
	b.Subscribe(KindLiveOn, 10, "d", rec("d"))
	b.Subscribe(KindLiveOn, 0, "b", rec("b"))
	b.Subscribe(KindLiveOff, 0, "off", rec("off"))

	b.Publish(context.Background(), LiveOnEvent{Timestamp: time.Now()})
	if want := []string{"a", "b", "c", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestBusHandlerErrorDoesNotStopDelivery(t *testing.T) {
	b := NewBus()
	var second bool
	b.Subscribe(KindDynamicUpdate, 0, "fails", func(context.Context, Event) error { return errors.New("boom") })
	b.Subscribe(KindDynamicUpdate, 1, "ok", func(context.Context, Event) error {
		second = true
		return nil
	})
	if failed := b.Publish(context.Background(), DynamicUpdateEvent{}); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if !second {
		t.Error("second handler not called")
	}
}

func TestBusSubscribeAllAndNoSubscribers(t *testing.T) {
	b := NewBus()
	n := 0
	b.SubscribeAll(0, "count", func(context.Context, Event) error {
		n++
		return nil
	})
	b.SubscribeAll(0, "log", LogHandler)
	ctx := context.Background()
	b.Publish(ctx, DynamicUpdateEvent{})
	b.Publish(ctx, LiveOnEvent{})
	b.Publish(ctx, LiveOffEvent{})
	if n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
	if failed := NewBus().Publish(ctx, LiveOffEvent{}); failed != 0 {
		t.Errorf("empty bus failed = %d", failed)
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{KindDynamicUpdate: "dynamic_update", KindLiveOn: "live_on", KindLiveOff: "live_off", Kind(99): "unknown"} {
		if k.String() != want {
			t.Errorf("%d.String() = %q, want %q", k, k.String(), want)
		}
	}
	if Channel(KindLiveOn) != "starwatch:events:live_on" {
		t.Errorf("channel = %s", Channel(KindLiveOn))
	}
}

func TestEncodeEnvelope(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := DynamicUpdateEvent{
		Subject:   subject.Subject{UID: 42, Name: "up", Events: subject.EventDynamic},
		Item:      bilibili.FeedItem{ID: "900", AuthorUID: 42, Kind: bilibili.KindVideo, VideoID: "BV1"},
		Action:    "uploaded a new video",
		URL:       "https://www.bilibili.com/video/BV1",
		Timestamp: ts,
	}
	data, err := Encode(e)
	if err != nil {
		t.Fatal(err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Kind != "dynamic_update" || !env.Timestamp.Equal(ts) {
		t.Errorf("envelope = %+v", env)
	}
	var back DynamicUpdateEvent
	if err := json.Unmarshal(env.Payload, &back); err != nil {
		t.Fatal(err)
	}
	if back.Item.ID != "900" || back.Subject.UID != 42 || back.URL != e.URL {
		t.Errorf("payload = %+v", back)
	}
}

func TestRedisBridge(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bridge := NewRedisBridge(client)
	ch, err := bridge.Subscribe(ctx, KindLiveOn)
	if err != nil {
		t.Fatal(err)
	}
	ev := LiveOnEvent{Subject: subject.Subject{UID: 7}, Room: livestatus.Snapshot{UID: 7, Live: true, StartTime: 100}, Timestamp: time.Now()}
	if err := bridge.Handle(ctx, ev); err != nil {
		t.Fatal(err)
	}
	select {
	case env := <-ch:
		if env.Kind != "live_on" {
			t.Errorf("kind = %s", env.Kind)
		}
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
