package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// SignalBus implements domain.SignalBus on Redis Pub/Sub, fanning refresh
// and alert events out to every monitor instance and WebSocket hub.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus returns a bus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription and returns a channel of raw payloads.
// Channels containing glob wildcards use pattern subscribe. Cancelling ctx
// tears down the subscription and closes the returned channel.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation so callers never miss early
	// messages.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go sb.pump(ctx, pubsub, out)
	return out, nil
}

func (sb *SignalBus) pump(ctx context.Context, pubsub *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer pubsub.Close()

	in := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)
