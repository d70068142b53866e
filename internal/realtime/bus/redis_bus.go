package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"pipeline-orchestrator/internal/ports"
)

const DefaultChannel = "pipeline-events"

type redisBus struct {
	log     ports.Logger
	rdb     goredis.UniversalClient
	channel string
}

// NewRedisBus connects to addr and verifies the connection with a ping.
func NewRedisBus(ctx context.Context, log ports.Logger, addr, channel string) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisBusWithClient(log, rdb, channel), nil
}

func NewRedisBusWithClient(log ports.Logger, rdb goredis.UniversalClient, channel string) Bus {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &redisBus{log: log, rdb: rdb, channel: channel}
}

func encodeEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func decodeEnvelope(raw string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, err
	}
	if env.Origin == "" || env.Event.Kind == "" {
		return Envelope{}, fmt.Errorf("envelope missing origin or kind")
	}
	return env, nil
}

func (b *redisBus) Publish(ctx context.Context, env Envelope) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis event bus not initialized")
	}
	raw, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the channel and calls onMsg for every decoded
// envelope until ctx is done.
func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(env Envelope)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis event bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				env, err := decodeEnvelope(m.Payload)
				if err != nil {
					b.log.Warn(ctx, "bad event bus payload", "error", err)
					continue
				}
				onMsg(env)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
