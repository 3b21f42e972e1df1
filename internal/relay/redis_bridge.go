package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const signalChannelPrefix = "quiz:signal:"

// RedisBridge relays signals between instances over Redis pub/sub. Signal
// publishes; Run subscribes and fans every received signal out to the local
// Hub. Delivery stays best effort: a failed publish falls back to the local
// room only.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	logger *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

func NewRedisBridge(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{
		client: client,
		hub:    hub,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

func (b *RedisBridge) Signal(ctx context.Context, sessionID string) {
	if err := b.client.Publish(ctx, signalChannelPrefix+sessionID, "").Err(); err != nil {
		b.logger.Warn("publish signal failed, delivering locally", "session_id", sessionID, "err", err)
		b.hub.Broadcast(sessionID)
	}
}

// Ready is closed once the subscription is confirmed.
func (b *RedisBridge) Ready() <-chan struct{} {
	return b.ready
}

// Run blocks until ctx is cancelled or the subscription fails.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, signalChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to signals: %w", err)
	}
	b.readyOnce.Do(func() { close(b.ready) })

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.hub.Broadcast(strings.TrimPrefix(msg.Channel, signalChannelPrefix))
		}
	}
}
