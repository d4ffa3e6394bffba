package redishost

import (
	"context"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/duelgate/game-server-go/sessions"
)

// Config for the Redis-backed DeliveryHost. Defaults can be loaded via
// envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: DELIVERY_KEY_PREFIX
	KeyPrefix string `env:"DELIVERY_KEY_PREFIX,default=game:deliver:"`
	// StreamMaxLen bounds each participant stream (approximate trimming).
	// ENV: DELIVERY_STREAM_MAXLEN
	StreamMaxLen int64 `env:"DELIVERY_STREAM_MAXLEN,default=1024"`
}

type Host struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int64
}

func New(cfg Config) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "game:deliver:"
	}
	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = 1024
	}
	return &Host{client: cl, keyPrefix: prefix, maxLen: maxLen}, nil
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv() (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode delivery config: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

func (h *Host) streamKey(pid string) string { return h.keyPrefix + "stream:" + pid }

func (h *Host) Deliver(ctx context.Context, participantID string, data []byte) (string, error) {
	id, err := h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: h.streamKey(participantID),
		MaxLen: h.maxLen,
		Approx: true,
		Values: map[string]interface{}{"d": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

func (h *Host) Subscribe(ctx context.Context, participantID string, lastEventID string, handler sessions.MessageHandlerFunc) error {
	key := h.streamKey(participantID)
	cursor := lastEventID
	if cursor == "" {
		cursor = "0" // replay the retained log from the start
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		res, err := h.client.XRead(ctx, &redis.XReadArgs{Streams: []string{key, cursor}, Count: 16, Block: 500 * time.Millisecond}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if len(res) == 0 || len(res[0].Messages) == 0 {
			continue
		}
		for _, m := range res[0].Messages {
			cursor = m.ID
			var payload []byte
			switch v := m.Values["d"].(type) {
			case string:
				payload = []byte(v)
			case []byte:
				payload = v
			default:
				payload = []byte(fmt.Sprintf("%v", v))
			}
			if err := handler(ctx, m.ID, payload); err != nil {
				return err
			}
		}
	}
}

func (h *Host) Cleanup(ctx context.Context, participantID string) error {
	c := context.WithoutCancel(ctx)
	_, err := h.client.Del(c, h.streamKey(participantID)).Result()
	return err
}

var _ sessions.DeliveryHost = (*Host)(nil)
