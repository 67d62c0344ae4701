package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/chatsync/internal/config"
	"github.com/mbeoliero/chatsync/pkg/constant"
	"github.com/redis/go-redis/v9"
)

// RedisDialer bridges the gateway protocol over Redis pub/sub.
// Frames for a user arrive on push:{user_id}; outbound frames go to signal:{user_id}.
type RedisDialer struct {
	rdb       *redis.Client
	writeWait time.Duration
}

// NewRedisDialer creates a RedisDialer from config
func NewRedisDialer(cfg *config.Config) *RedisDialer {
	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return newRedisDialer(rdb, cfg.WebSocket.WriteWait)
}

func newRedisDialer(rdb *redis.Client, writeWait time.Duration) *RedisDialer {
	if writeWait <= 0 {
		writeWait = WriteWait
	}
	return &RedisDialer{rdb: rdb, writeWait: writeWait}
}

// Dial subscribes to the user's push channel
func (d *RedisDialer) Dial(ctx context.Context, userId string) (ClientConn, error) {
	if err := d.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	pubsub := d.rdb.Subscribe(ctx, fmt.Sprintf(constant.RedisChannelPush(), userId))
	// Wait for the subscription confirmation so no push is missed after Dial returns
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	return &redisClientConn{
		rdb:       d.rdb,
		pubsub:    pubsub,
		msgs:      pubsub.Channel(),
		signal:    fmt.Sprintf(constant.RedisChannelSignal(), userId),
		writeWait: d.writeWait,
	}, nil
}

// Close releases the Redis client
func (d *RedisDialer) Close() error {
	return d.rdb.Close()
}

// redisClientConn implements ClientConn on a Redis subscription
type redisClientConn struct {
	rdb       *redis.Client
	pubsub    *redis.PubSub
	msgs      <-chan *redis.Message
	signal    string
	writeWait time.Duration
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// ReadMessage blocks until the next pushed frame
func (c *redisClientConn) ReadMessage() ([]byte, error) {
	msg, ok := <-c.msgs
	if !ok {
		return nil, ErrConnClosed
	}
	return []byte(msg.Payload), nil
}

// WriteMessage publishes a frame on the signal channel
func (c *redisClientConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConnClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.writeWait)
	defer cancel()
	return c.rdb.Publish(ctx, c.signal, data).Err()
}

// Close ends the subscription; pending reads return ErrConnClosed
func (c *redisClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		err = c.pubsub.Close()
	})
	return err
}
