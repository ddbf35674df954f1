// Package service assembles a taskengine deployment from configuration.
//
// Configuration is read from a YAML file and then overridden by environment
// variables, so a container can ship one file and adjust endpoints and
// secrets per environment:
//
//	TASKENGINE_STORE     store backend (memory, redis)
//	TASKENGINE_QUEUE     queue backend (inprocess, sqs)
//	TASKENGINE_EVENTS    event stream backend (memory, redis)
//	REDIS_ADDR           redis address
//	REDIS_USERNAME       redis ACL user
//	REDIS_PASSWORD       redis password
//	SQS_QUEUE_URL        SQS queue url
//	PUSH_SIGNING_KEY     HS256 key for push notification tokens
package service

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by the configuration.
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendInProcess = "inprocess"
	BackendSQS       = "sqs"
)

// Config is the configuration of one engine node.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Queue    QueueConfig    `yaml:"queue"`
	Events   EventsConfig   `yaml:"events"`
	Redis    RedisConfig    `yaml:"redis"`
	Executor ExecutorConfig `yaml:"executor"`

	PushNotifications PushNotificationsConfig `yaml:"push_notifications"`
}

// StoreConfig selects the task store.
type StoreConfig struct {
	// Backend is memory or redis. Default: memory
	Backend string `yaml:"backend"`
}

// QueueConfig selects the task queue.
type QueueConfig struct {
	// Backend is inprocess or sqs. Default: inprocess
	Backend string    `yaml:"backend"`
	SQS     SQSConfig `yaml:"sqs"`
}

// SQSConfig configures the SQS task queue.
type SQSConfig struct {
	QueueURL  string `yaml:"queue_url"`
	QueueName string `yaml:"queue_name"`
	Region    string `yaml:"region"`
	// Endpoint overrides the service endpoint, e.g. for ElasticMQ.
	Endpoint string `yaml:"endpoint"`
	// WaitTimeSeconds is the long polling wait. Default: 20
	WaitTimeSeconds int32 `yaml:"wait_time_seconds"`
}

// EventsConfig selects the event stream.
type EventsConfig struct {
	// Backend is memory or redis. Default: memory
	Backend string `yaml:"backend"`
	// Channel is the redis pub/sub channel. Default: taskengine:events
	Channel string `yaml:"channel"`
}

// RedisConfig configures the redis client shared by the redis backends.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	// LockTTL is the lease of cross-node task locks. Default: 1m
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// ExecutorConfig tunes task execution.
type ExecutorConfig struct {
	HeartbeatInterval        time.Duration `yaml:"heartbeat_interval"`
	CancelMonitoringInterval time.Duration `yaml:"cancel_monitoring_interval"`
	LockRetryInterval        time.Duration `yaml:"lock_retry_interval"`
}

// PushNotificationsConfig configures webhook delivery.
type PushNotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
	// SigningKey signs notification tokens when the config has no bearer credentials.
	SigningKey string `yaml:"signing_key"`
	Issuer     string `yaml:"issuer"`
	// SkipVerification accepts webhook URLs without the validation challenge.
	SkipVerification bool `yaml:"skip_verification"`
}

// DefaultConfig returns a single-process configuration.
func DefaultConfig() *Config {
	return &Config{
		Store:  StoreConfig{Backend: BackendMemory},
		Queue:  QueueConfig{Backend: BackendInProcess, SQS: SQSConfig{WaitTimeSeconds: 20}},
		Events: EventsConfig{Backend: BackendMemory},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			LockTTL: time.Minute,
		},
		Executor: ExecutorConfig{
			HeartbeatInterval:        30 * time.Second,
			CancelMonitoringInterval: time.Second,
			LockRetryInterval:        time.Second,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults and applies the
// environment overrides. An empty path uses the defaults and the environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setFromEnv(&c.Store.Backend, "TASKENGINE_STORE")
	setFromEnv(&c.Queue.Backend, "TASKENGINE_QUEUE")
	setFromEnv(&c.Events.Backend, "TASKENGINE_EVENTS")
	setFromEnv(&c.Redis.Addr, "REDIS_ADDR")
	setFromEnv(&c.Redis.Username, "REDIS_USERNAME")
	setFromEnv(&c.Redis.Password, "REDIS_PASSWORD")
	setFromEnv(&c.Queue.SQS.QueueURL, "SQS_QUEUE_URL")
	setFromEnv(&c.Queue.SQS.Region, "AWS_REGION")
	setFromEnv(&c.PushNotifications.SigningKey, "PUSH_SIGNING_KEY")
	if v, ok := os.LookupEnv("REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		c.Redis.DB = db
	}
	return nil
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	switch c.Events.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown events backend %q", c.Events.Backend))
	}
	switch c.Queue.Backend {
	case BackendInProcess:
	case BackendSQS:
		if c.Queue.SQS.QueueURL == "" && c.Queue.SQS.QueueName == "" {
			errs = append(errs, errors.New("sqs queue requires queue_url or queue_name"))
		}
		// other nodes must see this node's tasks and events
		if c.Store.Backend == BackendMemory {
			errs = append(errs, errors.New("sqs queue requires a shared store backend"))
		}
		if c.Events.Backend == BackendMemory {
			errs = append(errs, errors.New("sqs queue requires a shared events backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue backend %q", c.Queue.Backend))
	}
	if c.usesRedis() && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis addr is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) usesRedis() bool {
	return c.Store.Backend == BackendRedis || c.Events.Backend == BackendRedis
}
