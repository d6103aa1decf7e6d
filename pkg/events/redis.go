package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/tenantdesk/pkg/observability"
)

// RedisPublisher publishes events on Redis channels named prefix+topic so
// every instance can deliver them to its own websocket clients.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
	origin string
}

// NewRedisPublisher creates a publisher. origin identifies this process so
// its own Bridge can skip the echo.
func NewRedisPublisher(client redis.UniversalClient, prefix, origin string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, origin: origin}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, ev Event) error {
	ev.Origin = p.origin
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.prefix+topic, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Bridge relays events published by other instances to a local publisher,
// usually the Hub.
type Bridge struct {
	client redis.UniversalClient
	prefix string
	origin string
	local  Publisher
	logger *observability.Logger
}

// NewBridge creates a Bridge
func NewBridge(client redis.UniversalClient, prefix, origin string, local Publisher, logger *observability.Logger) *Bridge {
	return &Bridge{client: client, prefix: prefix, origin: origin, local: local, logger: logger}
}

// Run subscribes and relays until ctx is done
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(ctx, msg)
		}
	}
}

func (b *Bridge) relay(ctx context.Context, msg *redis.Message) {
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		b.logger.WithError(err).WithField("channel", msg.Channel).Warn("dropping undecodable event")
		return
	}
	if ev.Origin == b.origin {
		return
	}
	topic := strings.TrimPrefix(msg.Channel, b.prefix)
	if err := b.local.Publish(ctx, topic, ev); err != nil {
		b.logger.WithError(err).WithField("topic", topic).Warn("relay failed")
	}
}
