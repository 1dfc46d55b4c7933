package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	ChannelLoggedIn  = "identity.logged_in"
	ChannelLoggedOut = "identity.logged_out"
)

// RedisPublisher fans successful auth transitions out over Redis
// pub/sub. Delivery is best effort; a publish failure is logged and
// never surfaces to the request that triggered it.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) LoggedIn(ctx context.Context, ev LoggedIn) {
	p.publish(ctx, ChannelLoggedIn, ev)
}

func (p *RedisPublisher) LoggedOut(ctx context.Context, ev LoggedOut) {
	p.publish(ctx, ChannelLoggedOut, ev)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, ev any) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("event marshal failed", "channel", channel, "error", err)
		return
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		slog.Warn("event publish failed", "channel", channel, "error", err)
	}
}
