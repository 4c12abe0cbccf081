package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streamchat/internal/config"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis client to centralize configuration.
type Client struct {
	inner *redis.Client
}

// ErrTurnInFlight is returned when a conversation already has an open turn.
var ErrTurnInFlight = errors.New("conversation already has a turn in flight")

const turnKeyPrefix = "streamchat:turn:"

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient creates the redis client from app config.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	host := cfg.Redis.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}

	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Client{inner: client}, nil
}

// AcquireTurn takes the per-conversation lock so only one assistant turn
// streams at a time. The returned release func is safe to call more than once.
func (c *Client) AcquireTurn(ctx context.Context, conversationID string, ttl time.Duration) (func(), error) {
	if c == nil || c.inner == nil {
		return nil, errors.New("redis client not initialized")
	}
	if conversationID == "" {
		return func() {}, nil
	}
	key := turnKeyPrefix + conversationID
	token := uuid.NewString()
	ok, err := c.inner.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire turn: %w", err)
	}
	if !ok {
		return nil, ErrTurnInFlight
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// the request context may already be gone
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, c.inner, []string{key}, token).Err()
	}, nil
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
