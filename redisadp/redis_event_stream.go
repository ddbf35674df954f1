package redisadp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mashiike/taskengine"
	"github.com/redis/go-redis/v9"
)

// DefaultEventChannel is the pub/sub channel used when a config leaves Channel empty.
const DefaultEventChannel = "taskengine:events"

// RedisEventStreamConfig represents the configuration for RedisEventStream
type RedisEventStreamConfig struct {
	Client  redis.UniversalClient
	Channel string // Optional, defaults to DefaultEventChannel
	// BufferSize is the per-subscriber buffer. go-redis drops a message that
	// cannot be buffered for a minute; publishers are never blocked.
	BufferSize int
	Logger     *slog.Logger // Optional logger, defaults to slog.Default()
}

// RedisEventStream implements taskengine.EventStream on Redis pub/sub, so
// subscribers on any node see events committed by executors on every node.
type RedisEventStream struct {
	client     redis.UniversalClient
	channel    string
	bufferSize int
	logger     *slog.Logger
}

// NewRedisEventStream creates a new Redis pub/sub event stream
func NewRedisEventStream(config RedisEventStreamConfig) (*RedisEventStream, error) {
	if config.Client == nil {
		return nil, errors.New("redis Client is required")
	}
	channel := config.Channel
	if channel == "" {
		channel = DefaultEventChannel
	}
	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisEventStream{
		client:     config.Client,
		channel:    channel,
		bufferSize: bufferSize,
		logger:     logger,
	}, nil
}

func (s *RedisEventStream) Publish(ctx context.Context, event taskengine.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so every event
// published after Subscribe returns is delivered.
func (s *RedisEventStream) Subscribe(ctx context.Context) (*taskengine.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	messages := pubsub.Channel(redis.WithChannelSize(s.bufferSize))

	out := make(chan taskengine.Event)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				s.logger.Debug("Failed to close pub/sub connection", "error", err)
			}
		})
	}

	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event taskengine.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn("Discarding malformed event", "error", err, "channel", msg.Channel)
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return taskengine.NewSubscription(out, stop), nil
}
