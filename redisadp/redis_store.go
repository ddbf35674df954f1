package redisadp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Songmu/flextime"
	"github.com/mashiike/taskengine"
	"github.com/mashiike/taskengine/a2a"
	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig represents the configuration for RedisStore
type RedisStoreConfig struct {
	Client    redis.UniversalClient
	KeyPrefix string       // Optional, defaults to DefaultKeyPrefix
	Logger    *slog.Logger // Optional logger, defaults to slog.Default()
}

// RedisStore implements taskengine.Store on Redis.
//
// A task is a hash holding its JSON record next to the fields the secondary
// indexes are derived from. Every write of a task and its index entries runs
// in one MULTI/EXEC guarded by WATCH on the task key, retried up to
// taskengine.MaxUpdateAttempts times before ErrContention is returned.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

const (
	fieldData      = "data"
	fieldUpdated   = "updated"
	fieldContextID = "contextId"
	fieldState     = "state"
	fieldVersion   = "version"
)

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	if config.Client == nil {
		return nil, errors.New("redis Client is required")
	}
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client: config.Client,
		prefix: prefix,
		logger: logger,
	}, nil
}

func (s *RedisStore) keys(tenant string) keyspace {
	return newKeyspace(s.prefix, tenant)
}

// watch runs fn in a WATCH transaction on key, retrying when another client
// modified the key before EXEC.
func (s *RedisStore) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for attempt := 1; attempt <= taskengine.MaxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.logger.Debug("Optimistic transaction conflict, retrying", "key", key, "attempt", attempt)
	}
	return fmt.Errorf("%w: %s", taskengine.ErrContention, key)
}

func (s *RedisStore) AddTask(ctx context.Context, task *a2a.Task, tenant string) (*a2a.Task, error) {
	if task == nil || task.ID == "" {
		return nil, fmt.Errorf("%w: task id is required", taskengine.ErrInvalidParams)
	}
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	ks := s.keys(tenant)
	key := ks.task(task.ID)

	err = s.watch(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", taskengine.ErrTaskAlreadyExists, task.ID)
		}
		score := flextime.Now().UnixMilli()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldData, data,
				fieldUpdated, score,
				fieldContextID, task.ContextID,
				fieldState, string(task.Status.State),
				fieldVersion, 1,
			)
			for _, idx := range ks.taskIndexes(task.ContextID, task.Status.State) {
				pipe.ZAdd(ctx, idx, redis.Z{Score: float64(score), Member: task.ID})
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

func (s *RedisStore) GetTask(ctx context.Context, taskID, tenant string) (*a2a.Task, error) {
	data, err := s.client.HGet(ctx, s.keys(tenant).task(taskID), fieldData).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", taskengine.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}
	return decodeTask(data)
}

func decodeTask(data []byte) (*a2a.Task, error) {
	var task a2a.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

func (s *RedisStore) UpdateTask(ctx context.Context, task *a2a.Task, tenant string) (*a2a.Task, error) {
	if task == nil || task.ID == "" {
		return nil, fmt.Errorf("%w: task id is required", taskengine.ErrInvalidParams)
	}
	return s.ModifyTask(ctx, task.ID, tenant, func(*a2a.Task) (*a2a.Task, error) {
		return task.Clone(), nil
	})
}

// ModifyTask reads the task under WATCH, applies fn and commits the record and
// its index moves in one transaction.
func (s *RedisStore) ModifyTask(ctx context.Context, taskID, tenant string, fn taskengine.ModifyFunc) (*a2a.Task, error) {
	ks := s.keys(tenant)
	key := ks.task(taskID)

	var result *a2a.Task
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		values, err := tx.HMGet(ctx, key, fieldData, fieldContextID, fieldState, fieldVersion).Result()
		if err != nil {
			return fmt.Errorf("failed to read task %s: %w", taskID, err)
		}
		raw, ok := values[0].(string)
		if !ok {
			return fmt.Errorf("%w: %s", taskengine.ErrTaskNotFound, taskID)
		}
		prevContextID, _ := values[1].(string)
		prevState, _ := values[2].(string)
		version, _ := strconv.ParseInt(stringValue(values[3]), 10, 64)

		current, err := decodeTask([]byte(raw))
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		next = next.Clone()
		next.ID = taskID
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		score := flextime.Now().UnixMilli()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldData, data,
				fieldUpdated, score,
				fieldContextID, next.ContextID,
				fieldState, string(next.Status.State),
				fieldVersion, version+1,
			)
			for _, idx := range ks.taskIndexes(prevContextID, a2a.TaskState(prevState)) {
				pipe.ZRem(ctx, idx, taskID)
			}
			for _, idx := range ks.taskIndexes(next.ContextID, next.Status.State) {
				pipe.ZAdd(ctx, idx, redis.Z{Score: float64(score), Member: taskID})
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func (s *RedisStore) ListTasks(ctx context.Context, opts taskengine.ListTasksOptions, tenant string) (*taskengine.ListTasksResult, error) {
	ks := s.keys(tenant)
	pageSize := taskengine.NormalizePageSize(opts.PageSize)
	minScore := "-inf"
	if opts.LastUpdatedAfter > 0 {
		minScore = "(" + strconv.FormatInt(opts.LastUpdatedAfter*1000, 10)
	}

	page, err := s.scanIndex(ctx, ks.listIndex(opts.ContextID, opts.Status), minScore, opts.PageToken, pageSize)
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.StringCmd, len(page.members))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, z := range page.members {
			cmds[i] = pipe.HGet(ctx, ks.task(z.Member.(string)), fieldData)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	result := &taskengine.ListTasksResult{
		Tasks:         make([]*a2a.Task, 0, len(cmds)),
		NextPageToken: page.nextToken,
		PageSize:      pageSize,
		TotalSize:     page.total,
	}
	projection := opts.Projection()
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load task: %w", err)
		}
		task, err := decodeTask(data)
		if err != nil {
			return nil, err
		}
		result.Tasks = append(result.Tasks, a2a.Project(task, projection))
	}
	return result, nil
}

type indexPage struct {
	members   []redis.Z
	nextToken string
	total     int
}

// scanIndex returns one page of idx in descending (score, member) order, which
// is the order ZREVRANGEBYSCORE yields. The cursor score bounds the range and
// members at the cursor score are skipped until the cursor member is passed.
func (s *RedisStore) scanIndex(ctx context.Context, idx, minScore, pageToken string, pageSize int) (*indexPage, error) {
	total, err := s.client.ZCount(ctx, idx, minScore, "+inf").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count index %s: %w", idx, err)
	}

	maxScore := "+inf"
	cursor, hasCursor := taskengine.DecodePageToken(pageToken)
	if hasCursor {
		maxScore = strconv.FormatInt(cursor.Score, 10)
	}

	batch := int64(pageSize + 1)
	collected := make([]redis.Z, 0, pageSize+1)
	for offset := int64(0); len(collected) <= pageSize; offset += batch {
		zs, err := s.client.ZRevRangeByScoreWithScores(ctx, idx, &redis.ZRangeBy{
			Min:    minScore,
			Max:    maxScore,
			Offset: offset,
			Count:  batch,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to range index %s: %w", idx, err)
		}
		for _, z := range zs {
			member, _ := z.Member.(string)
			if hasCursor && !cursor.Follows(int64(z.Score), member) {
				continue
			}
			collected = append(collected, z)
			if len(collected) > pageSize {
				break
			}
		}
		if int64(len(zs)) < batch {
			break
		}
	}

	page := &indexPage{members: collected, total: int(total)}
	if len(collected) > pageSize {
		page.members = collected[:pageSize]
		last := page.members[pageSize-1]
		page.nextToken = taskengine.EncodePageToken(taskengine.PageCursor{
			Score: int64(last.Score),
			ID:    last.Member.(string),
		})
	}
	return page, nil
}

// SetPushNotificationConfig stores config. An empty config id defaults to the task id.
func (s *RedisStore) SetPushNotificationConfig(ctx context.Context, config a2a.TaskPushNotificationConfig, tenant string) (*a2a.TaskPushNotificationConfig, error) {
	if config.TaskID == "" {
		return nil, fmt.Errorf("%w: task id is required", taskengine.ErrInvalidParams)
	}
	if config.PushNotificationConfig.ID == "" {
		config.PushNotificationConfig.ID = config.TaskID
	}
	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push notification config: %w", err)
	}
	ks := s.keys(tenant)
	member := redis.Z{
		Score:  float64(flextime.Now().UnixMilli()),
		Member: pushConfigMember(config.TaskID, config.PushNotificationConfig.ID),
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ks.pushConfig(config.TaskID, config.PushNotificationConfig.ID), data, 0)
		pipe.ZAdd(ctx, ks.allPushConfigs(), member)
		pipe.ZAdd(ctx, ks.pushConfigsOf(config.TaskID), member)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store push notification config: %w", err)
	}
	return &config, nil
}

func (s *RedisStore) GetPushNotificationConfig(ctx context.Context, taskID, configID, tenant string) (*a2a.TaskPushNotificationConfig, error) {
	data, err := s.client.Get(ctx, s.keys(tenant).pushConfig(taskID, configID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: task %s config %s", taskengine.ErrPushNotificationConfigNotFound, taskID, configID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get push notification config: %w", err)
	}
	return decodePushConfig(data)
}

func decodePushConfig(data []byte) (*a2a.TaskPushNotificationConfig, error) {
	var config a2a.TaskPushNotificationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal push notification config: %w", err)
	}
	return &config, nil
}

func (s *RedisStore) DeletePushNotificationConfig(ctx context.Context, taskID, configID, tenant string) error {
	ks := s.keys(tenant)
	member := pushConfigMember(taskID, configID)
	var deleted *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, ks.pushConfig(taskID, configID))
		pipe.ZRem(ctx, ks.allPushConfigs(), member)
		pipe.ZRem(ctx, ks.pushConfigsOf(taskID), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete push notification config: %w", err)
	}
	if deleted.Val() == 0 {
		return fmt.Errorf("%w: task %s config %s", taskengine.ErrPushNotificationConfigNotFound, taskID, configID)
	}
	return nil
}

func (s *RedisStore) ListPushNotificationConfigs(ctx context.Context, opts taskengine.ListPushNotificationConfigsOptions, tenant string) (*taskengine.ListPushNotificationConfigsResult, error) {
	ks := s.keys(tenant)
	idx := ks.allPushConfigs()
	if opts.TaskID != "" {
		idx = ks.pushConfigsOf(opts.TaskID)
	}
	pageSize := taskengine.NormalizePageSize(opts.PageSize)
	page, err := s.scanIndex(ctx, idx, "-inf", opts.PageToken, pageSize)
	if err != nil {
		return nil, err
	}

	result := &taskengine.ListPushNotificationConfigsResult{
		Configs:       make([]*a2a.TaskPushNotificationConfig, 0, len(page.members)),
		NextPageToken: page.nextToken,
		PageSize:      pageSize,
		TotalSize:     page.total,
	}
	if len(page.members) == 0 {
		return result, nil
	}
	keys := make([]string, 0, len(page.members))
	for _, z := range page.members {
		taskID, configID, ok := parsePushConfigMember(z.Member.(string))
		if !ok {
			s.logger.Warn("Skipping malformed push notification config index entry", "index", idx, "member", z.Member)
			continue
		}
		keys = append(keys, ks.pushConfig(taskID, configID))
	}
	if len(keys) == 0 {
		return result, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load push notification configs: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		config, err := decodePushConfig([]byte(raw))
		if err != nil {
			return nil, err
		}
		result.Configs = append(result.Configs, config)
	}
	return result, nil
}
