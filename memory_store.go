package taskengine

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Songmu/flextime"
	"github.com/mashiike/taskengine/a2a"
)

// MemoryStore implements Store in process memory.
// Stored tasks are cloned on the way in and on the way out, so callers never
// share a record with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[memoryTaskKey]*memoryTaskEntry
	configs map[memoryConfigKey]*memoryConfigEntry
}

type memoryTaskKey struct {
	tenant string
	taskID string
}

type memoryTaskEntry struct {
	task    *a2a.Task
	updated int64 // unix milliseconds
}

type memoryConfigKey struct {
	tenant   string
	taskID   string
	configID string
}

func (k memoryConfigKey) sortID() string {
	return k.taskID + "/" + k.configID
}

type memoryConfigEntry struct {
	config  a2a.TaskPushNotificationConfig
	updated int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[memoryTaskKey]*memoryTaskEntry),
		configs: make(map[memoryConfigKey]*memoryConfigEntry),
	}
}

func (s *MemoryStore) AddTask(ctx context.Context, task *a2a.Task, tenant string) (*a2a.Task, error) {
	if task == nil || task.ID == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrInvalidParams)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryTaskKey{tenant: tenant, taskID: task.ID}
	if _, exists := s.tasks[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskAlreadyExists, task.ID)
	}
	stored := task.Clone()
	s.tasks[key] = &memoryTaskEntry{task: stored, updated: flextime.Now().UnixMilli()}
	return stored.Clone(), nil
}

func (s *MemoryStore) GetTask(ctx context.Context, taskID, tenant string) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.tasks[memoryTaskKey{tenant: tenant, taskID: taskID}]
	if !ok {
		return nil, taskNotFound(taskID)
	}
	return entry.task.Clone(), nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, task *a2a.Task, tenant string) (*a2a.Task, error) {
	if task == nil || task.ID == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrInvalidParams)
	}
	return s.ModifyTask(ctx, task.ID, tenant, func(*a2a.Task) (*a2a.Task, error) {
		return task, nil
	})
}

// ModifyTask applies fn while holding the store lock, which makes the
// read-modify-write a single compare-and-swap step.
func (s *MemoryStore) ModifyTask(ctx context.Context, taskID, tenant string, fn ModifyFunc) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryTaskKey{tenant: tenant, taskID: taskID}
	entry, ok := s.tasks[key]
	if !ok {
		return nil, taskNotFound(taskID)
	}
	next, err := fn(entry.task.Clone())
	if err != nil {
		return nil, err
	}
	stored := next.Clone()
	stored.ID = taskID
	s.tasks[key] = &memoryTaskEntry{task: stored, updated: flextime.Now().UnixMilli()}
	return stored.Clone(), nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, opts ListTasksOptions, tenant string) (*ListTasksResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]memoryTaskKey, 0)
	for key, entry := range s.tasks {
		if key.tenant != tenant {
			continue
		}
		if opts.ContextID != "" && entry.task.ContextID != opts.ContextID {
			continue
		}
		if opts.Status != "" && entry.task.Status.State != opts.Status {
			continue
		}
		if opts.LastUpdatedAfter > 0 && entry.updated <= opts.LastUpdatedAfter*1000 {
			continue
		}
		matched = append(matched, key)
	}
	slices.SortFunc(matched, func(a, b memoryTaskKey) int {
		if c := cmp.Compare(s.tasks[b].updated, s.tasks[a].updated); c != 0 {
			return c
		}
		return cmp.Compare(b.taskID, a.taskID)
	})

	pageSize := NormalizePageSize(opts.PageSize)
	start := 0
	if cursor, ok := DecodePageToken(opts.PageToken); ok {
		start = len(matched)
		for i, key := range matched {
			if cursor.Follows(s.tasks[key].updated, key.taskID) {
				start = i
				break
			}
		}
	}
	end := min(start+pageSize, len(matched))

	result := &ListTasksResult{
		Tasks:     make([]*a2a.Task, 0, end-start),
		PageSize:  pageSize,
		TotalSize: len(matched),
	}
	projection := opts.Projection()
	for _, key := range matched[start:end] {
		result.Tasks = append(result.Tasks, a2a.Project(s.tasks[key].task, projection))
	}
	if end < len(matched) && end > start {
		last := matched[end-1]
		result.NextPageToken = EncodePageToken(PageCursor{Score: s.tasks[last].updated, ID: last.taskID})
	}
	return result, nil
}

// SetPushNotificationConfig stores config. An empty config id defaults to the task id.
func (s *MemoryStore) SetPushNotificationConfig(ctx context.Context, config a2a.TaskPushNotificationConfig, tenant string) (*a2a.TaskPushNotificationConfig, error) {
	if config.TaskID == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrInvalidParams)
	}
	if config.PushNotificationConfig.ID == "" {
		config.PushNotificationConfig.ID = config.TaskID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryConfigKey{tenant: tenant, taskID: config.TaskID, configID: config.PushNotificationConfig.ID}
	s.configs[key] = &memoryConfigEntry{config: config, updated: flextime.Now().UnixMilli()}
	return &config, nil
}

func (s *MemoryStore) GetPushNotificationConfig(ctx context.Context, taskID, configID, tenant string) (*a2a.TaskPushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.configs[memoryConfigKey{tenant: tenant, taskID: taskID, configID: configID}]
	if !ok {
		return nil, fmt.Errorf("%w: task %s config %s", ErrPushNotificationConfigNotFound, taskID, configID)
	}
	config := entry.config
	return &config, nil
}

func (s *MemoryStore) DeletePushNotificationConfig(ctx context.Context, taskID, configID, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryConfigKey{tenant: tenant, taskID: taskID, configID: configID}
	if _, ok := s.configs[key]; !ok {
		return fmt.Errorf("%w: task %s config %s", ErrPushNotificationConfigNotFound, taskID, configID)
	}
	delete(s.configs, key)
	return nil
}

func (s *MemoryStore) ListPushNotificationConfigs(ctx context.Context, opts ListPushNotificationConfigsOptions, tenant string) (*ListPushNotificationConfigsResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]memoryConfigKey, 0)
	for key := range s.configs {
		if key.tenant != tenant {
			continue
		}
		if opts.TaskID != "" && key.taskID != opts.TaskID {
			continue
		}
		matched = append(matched, key)
	}
	slices.SortFunc(matched, func(a, b memoryConfigKey) int {
		if c := cmp.Compare(s.configs[b].updated, s.configs[a].updated); c != 0 {
			return c
		}
		return cmp.Compare(b.sortID(), a.sortID())
	})

	pageSize := NormalizePageSize(opts.PageSize)
	start := 0
	if cursor, ok := DecodePageToken(opts.PageToken); ok {
		start = len(matched)
		for i, key := range matched {
			if cursor.Follows(s.configs[key].updated, key.sortID()) {
				start = i
				break
			}
		}
	}
	end := min(start+pageSize, len(matched))

	result := &ListPushNotificationConfigsResult{
		Configs:   make([]*a2a.TaskPushNotificationConfig, 0, end-start),
		PageSize:  pageSize,
		TotalSize: len(matched),
	}
	for _, key := range matched[start:end] {
		config := s.configs[key].config
		result.Configs = append(result.Configs, &config)
	}
	if end < len(matched) && end > start {
		last := matched[end-1]
		result.NextPageToken = EncodePageToken(PageCursor{Score: s.configs[last].updated, ID: last.sortID()})
	}
	return result, nil
}
