package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/mashiike/taskengine"
	"github.com/mashiike/taskengine/awsadp"
	"github.com/mashiike/taskengine/redisadp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Options carries the collaborators that are not part of Config.
type Options struct {
	// Registerer receives the engine metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// RedisClient replaces the client built from Config.Redis. It is not closed by Engine.Close.
	RedisClient redis.UniversalClient
	// SQSClient replaces the client built from the default AWS configuration.
	SQSClient awsadp.SQSAPI
	Logger    *slog.Logger
}

// Engine is an assembled node: a ProtocolServer and the Executor running its tasks.
type Engine struct {
	Server   *taskengine.ProtocolServer
	Executor *taskengine.Executor
	Store    taskengine.Store
	Queue    taskengine.TaskQueue
	Events   taskengine.EventStream

	// SQSQueue is set when the queue backend is sqs; Run consumes it.
	SQSQueue *awsadp.SQSTaskQueue

	logger  *slog.Logger
	closers []io.Closer
}

// New assembles an Engine for runtime from cfg.
func New(ctx context.Context, cfg *Config, runtime taskengine.AgentRuntime, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger}

	var metrics *taskengine.Metrics
	if opts.Registerer != nil {
		metrics = taskengine.NewMetrics(opts.Registerer)
	}

	redisClient := opts.RedisClient
	if cfg.usesRedis() && redisClient == nil {
		redisClient = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		e.closers = append(e.closers, redisClient)
	}

	if err := e.buildStore(cfg, redisClient); err != nil {
		return nil, e.abort(err)
	}
	if err := e.buildEvents(cfg, redisClient); err != nil {
		return nil, e.abort(err)
	}

	var sender taskengine.PushNotificationSender
	if cfg.PushNotifications.Enabled {
		s := taskengine.NewHTTPPushNotificationSender()
		if cfg.PushNotifications.SigningKey != "" {
			s.SigningKey = []byte(cfg.PushNotifications.SigningKey)
		}
		if cfg.PushNotifications.Issuer != "" {
			s.Issuer = cfg.PushNotifications.Issuer
		}
		s.SkipVerification = cfg.PushNotifications.SkipVerification
		s.Logger = logger
		sender = s
	}

	executor := taskengine.NewExecutor(e.Store, runtime, e.Events)
	executor.HeartbeatInterval = cfg.Executor.HeartbeatInterval
	executor.CancelMonitoringInterval = cfg.Executor.CancelMonitoringInterval
	executor.LockRetryInterval = cfg.Executor.LockRetryInterval
	executor.PushNotificationSender = sender
	executor.Metrics = metrics
	executor.Logger = logger
	e.Executor = executor

	if err := e.buildQueue(ctx, cfg, opts, redisClient); err != nil {
		return nil, e.abort(err)
	}

	server := taskengine.NewProtocolServer(e.Store, runtime, e.Queue, e.Events)
	server.PushNotificationSender = sender
	server.DisablePushNotifications = !cfg.PushNotifications.Enabled
	server.Metrics = metrics
	server.Logger = logger
	e.Server = server
	return e, nil
}

func (e *Engine) buildStore(cfg *Config, client redis.UniversalClient) error {
	switch cfg.Store.Backend {
	case BackendRedis:
		store, err := redisadp.NewRedisStore(redisadp.RedisStoreConfig{
			Client:    client,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Logger:    e.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis store: %w", err)
		}
		e.Store = store
	default:
		e.Store = taskengine.NewMemoryStore()
	}
	return nil
}

func (e *Engine) buildEvents(cfg *Config, client redis.UniversalClient) error {
	switch cfg.Events.Backend {
	case BackendRedis:
		events, err := redisadp.NewRedisEventStream(redisadp.RedisEventStreamConfig{
			Client:  client,
			Channel: cfg.Events.Channel,
			Logger:  e.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis event stream: %w", err)
		}
		e.Events = events
	default:
		events := taskengine.NewMemoryEventStream()
		e.closers = append(e.closers, events)
		e.Events = events
	}
	return nil
}

func (e *Engine) buildQueue(ctx context.Context, cfg *Config, opts Options, client redis.UniversalClient) error {
	if cfg.Queue.Backend != BackendSQS {
		locker := taskengine.NewInMemoryTaskLocker()
		e.Executor.TaskLocker = locker
		e.closers = append(e.closers, locker)
		queue := taskengine.NewInProcessTaskQueue(e.Executor)
		queue.Logger = e.logger
		e.Queue = queue
		e.closers = append(e.closers, queue)
		return nil
	}

	// executions may land on any node
	if client != nil {
		locker, err := redisadp.NewRedisTaskLocker(redisadp.RedisTaskLockerConfig{
			Client:    client,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.LockTTL,
			Logger:    e.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis task locker: %w", err)
		}
		e.Executor.TaskLocker = locker
		e.closers = append(e.closers, locker)
	}

	sqsClient := opts.SQSClient
	if sqsClient == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Queue.SQS.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Queue.SQS.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		sqsClient = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.Queue.SQS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Queue.SQS.Endpoint)
			}
		})
	}
	queue, err := awsadp.NewSQSTaskQueue(ctx, awsadp.SQSTaskQueueConfig{
		Client:          sqsClient,
		QueueURL:        cfg.Queue.SQS.QueueURL,
		QueueName:       cfg.Queue.SQS.QueueName,
		Processor:       e.Executor,
		WaitTimeSeconds: cfg.Queue.SQS.WaitTimeSeconds,
		Logger:          e.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create SQS task queue: %w", err)
	}
	e.Queue = queue
	e.SQSQueue = queue
	e.closers = append(e.closers, queue)
	return nil
}

// Run consumes the SQS queue until ctx is canceled. With the in-process
// queue executions are started by the server itself and Run only waits.
func (e *Engine) Run(ctx context.Context) error {
	if e.SQSQueue != nil {
		return e.SQSQueue.Start(ctx)
	}
	<-ctx.Done()
	return nil
}

// Close stops executions and releases the backends New created, in reverse
// order of creation.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range slices.Backward(e.closers) {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func (e *Engine) abort(err error) error {
	if closeErr := e.Close(); closeErr != nil {
		e.logger.Warn("Failed to release resources", "error", closeErr)
	}
	return err
}
