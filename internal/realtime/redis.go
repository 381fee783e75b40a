package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var relayPatterns = []string{notificationsChannelPrefix + "*", ChannelReports}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// OpenRedis connects to the Redis server used as the cross-instance live-event bus.
func OpenRedis(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("realtime: redis ping failed: %w", err)
	}
	return client, nil
}

// RedisBroadcaster publishes events on the Redis pub/sub channel named after the event channel.
type RedisBroadcaster struct {
	client redisPublisher
	clock  func() time.Time
}

// NewRedisBroadcaster wraps a Redis client.
func NewRedisBroadcaster(client redisPublisher) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, clock: time.Now}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, event Event) error {
	message, err := NewMessage(event, b.clock())
	if err != nil {
		return err
	}
	payload, err := message.Encode()
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, message.Channel, payload).Err()
}

type localPublisher interface {
	Publish(message Message)
}

// RedisRelay forwards messages published on Redis by any instance to local subscribers.
type RedisRelay struct {
	client *redis.Client
	local  localPublisher
	logger *zap.Logger
}

// NewRedisRelay constructs a relay from client into local.
func NewRedisRelay(client *redis.Client, local localPublisher, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, local: local, logger: logger}
}

// Run pattern-subscribes to the live-event channels and blocks until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, relayPatterns...)
	defer func() {
		_ = pubsub.Close()
	}()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: redis subscribe failed: %w", err)
	}
	r.logger.Info("redis relay subscribed", zap.Strings("patterns", relayPatterns))

	stream := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case received, ok := <-stream:
			if !ok {
				return errors.New("realtime: redis subscription closed")
			}
			r.forward(received.Channel, received.Payload)
		}
	}
}

func (r *RedisRelay) forward(channel, payload string) {
	message, err := DecodeMessage([]byte(payload))
	if err != nil {
		r.logger.Warn("dropping malformed live event", zap.String("channel", channel), zap.Error(err))
		return
	}
	if message.Channel != channel {
		r.logger.Warn("dropping live event with mismatched channel",
			zap.String("channel", channel),
			zap.String("message_channel", message.Channel))
		return
	}
	r.local.Publish(message)
}
