package redisadp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mashiike/taskengine"
	"github.com/redis/go-redis/v9"
)

// RedisTaskLockerConfig represents the configuration for RedisTaskLocker
type RedisTaskLockerConfig struct {
	Client    redis.UniversalClient
	KeyPrefix string        // Optional, defaults to DefaultKeyPrefix
	TTL       time.Duration // Lease length, defaults to 1 minute
	Logger    *slog.Logger  // Optional logger, defaults to slog.Default()
}

// RedisTaskLocker implements taskengine.TaskLocker with Redis leases.
// A lock is a key set with NX and a TTL, refreshed every TTL/3 while held.
// A holder that dies stops refreshing and the lease expires on its own.
type RedisTaskLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	held   map[string]func()
	closed bool
}

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)
)

// NewRedisTaskLocker creates a new Redis-backed task locker
func NewRedisTaskLocker(config RedisTaskLockerConfig) (*RedisTaskLocker, error) {
	if config.Client == nil {
		return nil, errors.New("redis Client is required")
	}
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisTaskLocker{
		client: config.Client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
		held:   make(map[string]func()),
	}, nil
}

func (l *RedisTaskLocker) lockKey(key taskengine.TaskKey) string {
	return newKeyspace(l.prefix, key.Tenant).base + ":lock:" + escape(key.TaskID)
}

func (l *RedisTaskLocker) Lock(ctx context.Context, key taskengine.TaskKey) (func(), error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, taskengine.ErrTaskLockerClosed
	}

	lockKey := l.lockKey(key)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire task lock: %w", err)
	}
	if !ok {
		return nil, taskengine.ErrTaskLockAlreadyAcquired
	}

	stopRefresh := make(chan struct{})
	refreshed := make(chan struct{})
	go func() {
		defer close(refreshed)
		l.refresh(lockKey, token, stopRefresh)
	}()

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(stopRefresh)
			<-refreshed
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err(); err != nil {
				l.logger.Warn("Failed to release task lock", "error", err, "taskID", key.TaskID, "tenant", key.Tenant)
			}
			l.mu.Lock()
			delete(l.held, token)
			l.mu.Unlock()
		})
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		unlock()
		return nil, taskengine.ErrTaskLockerClosed
	}
	l.held[token] = unlock
	l.mu.Unlock()
	return unlock, nil
}

func (l *RedisTaskLocker) refresh(lockKey, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.client, []string{lockKey}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.Warn("Failed to refresh task lock", "error", err, "key", lockKey)
				continue
			}
			if n == 0 {
				l.logger.Warn("Task lock lease lost", "key", lockKey)
				return
			}
		}
	}
}

// Close releases every lock held by this locker and rejects further Lock calls.
func (l *RedisTaskLocker) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	unlocks := make([]func(), 0, len(l.held))
	for _, unlock := range l.held {
		unlocks = append(unlocks, unlock)
	}
	l.mu.Unlock()

	for _, unlock := range unlocks {
		unlock()
	}
	return nil
}
