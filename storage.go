// Package taskengine provides the server-side task lifecycle engine of the
// A2A (Agent-to-Agent) protocol: task storage, execution queueing, event
// fan-out and the protocol operations built on top of them.
package taskengine

import (
	"context"

	"github.com/mashiike/taskengine/a2a"
)

// Storage constants
const (
	// DefaultPageSize is used when a list request does not specify a page size.
	DefaultPageSize = 50
	// MaxPageSize is the upper bound of a list page.
	MaxPageSize = 100
	// MaxUpdateAttempts bounds the optimistic concurrency retry loop of replicated stores.
	MaxUpdateAttempts = 10
)

//go:generate go tool mockgen -source=storage.go -destination=mock_storage_test.go -package=taskengine

// ModifyFunc receives a private copy of the stored task and returns the
// replacement record. Returning an error aborts the update and the error is
// returned unchanged from ModifyTask. Stores that retry on contention may call
// it more than once; only the last call's result is committed.
type ModifyFunc func(task *a2a.Task) (*a2a.Task, error)

// Store provides tenant-scoped task and push notification config persistence.
// All methods are safe for concurrent use. Implementations return:
//   - ErrTaskNotFound: when a requested task does not exist
//   - ErrTaskAlreadyExists: when AddTask races with an existing (tenant, id)
//   - ErrPushNotificationConfigNotFound: when a push notification config does not exist
//   - ErrContention: when optimistic concurrency retries are exhausted
type Store interface {
	// AddTask persists a new task. Exactly one of concurrent adds for the same id succeeds.
	AddTask(ctx context.Context, task *a2a.Task, tenant string) (*a2a.Task, error)
	GetTask(ctx context.Context, taskID, tenant string) (*a2a.Task, error)
	// UpdateTask replaces an existing task record.
	UpdateTask(ctx context.Context, task *a2a.Task, tenant string) (*a2a.Task, error)
	// ModifyTask atomically reads, transforms and replaces an existing task record.
	ModifyTask(ctx context.Context, taskID, tenant string, fn ModifyFunc) (*a2a.Task, error)
	ListTasks(ctx context.Context, opts ListTasksOptions, tenant string) (*ListTasksResult, error)

	SetPushNotificationConfig(ctx context.Context, config a2a.TaskPushNotificationConfig, tenant string) (*a2a.TaskPushNotificationConfig, error)
	GetPushNotificationConfig(ctx context.Context, taskID, configID, tenant string) (*a2a.TaskPushNotificationConfig, error)
	DeletePushNotificationConfig(ctx context.Context, taskID, configID, tenant string) error
	ListPushNotificationConfigs(ctx context.Context, opts ListPushNotificationConfigsOptions, tenant string) (*ListPushNotificationConfigsResult, error)
}

// ListTasksOptions filters, paginates and projects a task listing.
type ListTasksOptions struct {
	ContextID string
	Status    a2a.TaskState
	// LastUpdatedAfter is an exclusive lower bound in unix seconds. Zero disables the filter.
	LastUpdatedAfter int64
	PageSize         int
	PageToken        string
	HistoryLength    *int
	IncludeArtifacts bool
}

// Projection returns the projection part of the options.
func (o ListTasksOptions) Projection() a2a.ProjectionOptions {
	return a2a.ProjectionOptions{
		HistoryLength:    o.HistoryLength,
		IncludeArtifacts: o.IncludeArtifacts,
	}
}

// ListTasksResult is one page of tasks, most recently updated first.
type ListTasksResult struct {
	Tasks []*a2a.Task
	// NextPageToken is empty when there are no more pages.
	NextPageToken string
	PageSize      int
	// TotalSize counts every task matching the filters.
	TotalSize int
}

// ListPushNotificationConfigsOptions filters and paginates push notification configs of a tenant.
type ListPushNotificationConfigsOptions struct {
	// TaskID restricts the listing to one task. Empty lists every config of the tenant.
	TaskID    string
	PageSize  int
	PageToken string
}

// ListPushNotificationConfigsResult is one page of push notification configs.
type ListPushNotificationConfigsResult struct {
	Configs       []*a2a.TaskPushNotificationConfig
	NextPageToken string
	PageSize      int
	TotalSize     int
}

// NormalizePageSize clamps size to [1, MaxPageSize]; non-positive sizes use DefaultPageSize.
func NormalizePageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}
