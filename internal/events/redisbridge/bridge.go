package redisbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/robertov8/gspeech/internal/events"
)

// Bridge mirrors bus messages to a Redis pub/sub channel so observers in
// other processes can follow runs.
type Bridge struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	forwarded atomic.Uint64
	failed    atomic.Uint64
}

// Stats represents mirror statistics
type Stats struct {
	Channel   string `json:"channel"`
	Forwarded uint64 `json:"forwarded"`
	Failed    uint64 `json:"failed"`
}

// New creates a bridge publishing to channel
func New(client *redis.Client, channel string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// Publish sends one message as JSON
func (b *Bridge) Publish(ctx context.Context, msg events.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

// Forward publishes every message from sub until ctx is done or sub is
// closed. Failed publishes are logged and dropped.
func (b *Bridge) Forward(ctx context.Context, sub *events.Subscription) {
	b.logger.Info("Redis mirror started", slog.String("channel", b.channel))
	defer b.logger.Info("Redis mirror stopped", slog.String("channel", b.channel))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if err := b.Publish(ctx, msg); err != nil {
				b.failed.Add(1)
				b.logger.Warn("Failed to mirror message",
					slog.String("type", string(msg.Type)),
					slog.String("error", err.Error()))
				continue
			}
			b.forwarded.Add(1)
		}
	}
}

// Listen subscribes to the channel and decodes mirrored messages. The
// returned channel is closed when ctx is done.
func (b *Bridge) Listen(ctx context.Context) (<-chan events.Message, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	out := make(chan events.Message, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg events.Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.logger.Warn("Ignoring malformed mirrored message",
						slog.String("channel", raw.Channel),
						slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// GetStats returns mirror statistics
func (b *Bridge) GetStats() Stats {
	return Stats{
		Channel:   b.channel,
		Forwarded: b.forwarded.Load(),
		Failed:    b.failed.Load(),
	}
}
