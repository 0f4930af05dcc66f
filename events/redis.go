package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix prefixes every Redis channel the bridge publishes to.
const ChannelPrefix = "starwatch:events:"

// Channel returns the Redis channel name for kind.
func Channel(k Kind) string { return ChannelPrefix + k.String() }

// Envelope is the JSON document published for every event.
type Envelope struct {
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode wraps e in an Envelope and marshals it.
func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Kind(), err)
	}
	return json.Marshal(Envelope{Kind: e.Kind().String(), Timestamp: e.Time().UTC(), Payload: payload})
}

// RedisBridge forwards events to Redis pub/sub for downstream formatters.
type RedisBridge struct {
	client redis.UniversalClient
}

// NewRedisBridge returns a bridge publishing through client.
func NewRedisBridge(client redis.UniversalClient) *RedisBridge {
	return &RedisBridge{client: client}
}

// Handle is a Handler that publishes e on Channel(e.Kind()).
func (r *RedisBridge) Handle(ctx context.Context, e Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, Channel(e.Kind()), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Channel(e.Kind()), err)
	}
	return nil
}

// Subscribe listens on the channels of kinds and decodes envelopes until ctx
// ends. The returned channel is closed when the subscription stops.
func (r *RedisBridge) Subscribe(ctx context.Context, kinds ...Kind) (<-chan Envelope, error) {
	if len(kinds) == 0 {
		kinds = Kinds
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = Channel(k)
	}
	ps := r.client.Subscribe(ctx, names...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	out := make(chan Envelope, 100)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
