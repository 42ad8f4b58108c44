package redisbridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robertov8/gspeech/internal/config"
)

// NewClient constructs a Redis client from the redis config section
func NewClient(cfg config.RedisConfig) *redis.Client {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		// ParseURL rejects bare host:port; treat the value as an address.
		opts = &redis.Options{
			Addr: cfg.URL,
		}
	}

	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	client.AddHook(&disableMaintNotifications{})
	return client
}

// Ping verifies connectivity to Redis with a short timeout
func Ping(ctx context.Context, client *redis.Client) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(timeoutCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// disableMaintNotifications swallows the CLIENT MAINT_NOTIFICATIONS handshake,
// which servers without the command reject.
type disableMaintNotifications struct{}

func (h *disableMaintNotifications) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *disableMaintNotifications) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if isMaintNotifications(cmd) {
			return nil
		}
		return next(ctx, cmd)
	}
}

func (h *disableMaintNotifications) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		filtered := cmds[:0]
		for _, cmd := range cmds {
			if !isMaintNotifications(cmd) {
				filtered = append(filtered, cmd)
			}
		}
		return next(ctx, filtered)
	}
}

func isMaintNotifications(cmd redis.Cmder) bool {
	if !strings.EqualFold(cmd.FullName(), "client") || len(cmd.Args()) < 2 {
		return false
	}
	name, ok := cmd.Args()[1].(string)
	return ok && strings.EqualFold(name, "maint_notifications")
}
