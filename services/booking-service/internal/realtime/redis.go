package realtime

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "realtime:tenant:"

// Channel is the Redis channel of one tenant.
func Channel(tenantID string) string {
	return channelPrefix + tenantID
}

// RedisBridge publishes to per-tenant channels and relays every tenant
// channel into the local hub.
type RedisBridge struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisBridge(rdb *redis.Client, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, logger: logger}
}

func (b *RedisBridge) Publish(ctx context.Context, tenantID string, msg []byte) error {
	return b.rdb.Publish(ctx, Channel(tenantID), msg).Err()
}

// Run subscribes until ctx is done, resubscribing after connection loss.
func (b *RedisBridge) Run(ctx context.Context, hub *Hub) {
	for ctx.Err() == nil {
		b.relay(ctx, hub)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (b *RedisBridge) relay(ctx context.Context, hub *Hub) {
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			b.logger.Error("redis psubscribe failed", "err", err)
		}
		return
	}
	b.logger.Info("realtime relay subscribed", "pattern", channelPrefix+"*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("realtime relay channel closed")
				return
			}
			tenantID := strings.TrimPrefix(msg.Channel, channelPrefix)
			hub.Broadcast(tenantID, []byte(msg.Payload))
		}
	}
}
