package publisher

import (
	"context"

	"sjsage522/runewatcher/logger"
	"sjsage522/runewatcher/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher implements Publisher using a Redis stream
type RedisPublisher struct {
	client          *redis.Client
	ctx             context.Context
	stream          string
	streamMaxLength int
	logger          *logger.Logger
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(ctx context.Context, addr string, db int, stream string, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisPublisher{
		client:          client,
		ctx:             ctx,
		stream:          stream,
		streamMaxLength: streamMaxLength,
		logger:          logger.ForPublisher(),
	}
}

// Ping checks that Redis answers
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return errors.NewPublisher(p.stream, "redis is unreachable", err)
	}
	return nil
}

// Publish appends a message to the stream under the given field
func (p *RedisPublisher) Publish(key string, message []byte) error {
	err := p.client.XAdd(p.ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: int64(p.streamMaxLength),
		Approx: true,
		Values: map[string]interface{}{
			key: string(message),
		},
	}).Err()
	if err != nil {
		return errors.NewPublisher(p.stream, "failed to publish "+key, err)
	}
	return nil
}

// TrimStreams trims the stream to the configured maximum length
func (p *RedisPublisher) TrimStreams() error {
	if err := p.client.XTrimMaxLen(p.ctx, p.stream, int64(p.streamMaxLength)).Err(); err != nil {
		return errors.NewPublisher(p.stream, "failed to trim stream", err)
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NopPublisher drops every message. It stands in when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(key string, message []byte) error { return nil }
func (NopPublisher) TrimStreams() error                       { return nil }
func (NopPublisher) Close() error                             { return nil }
