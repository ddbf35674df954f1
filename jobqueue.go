package taskengine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mashiike/taskengine/a2a"
)

// TaskQueue error variables
var (
	// ErrTaskQueueClosed is returned when attempting to use a closed task queue
	ErrTaskQueueClosed = errors.New("task queue is closed")
)

// TaskKey identifies a task across tenants.
type TaskKey struct {
	Tenant string
	TaskID string
}

func (k TaskKey) String() string {
	if k.Tenant == "" {
		return k.TaskID
	}
	return k.Tenant + "/" + k.TaskID
}

// JobConfig is the serializable description of one unit of work.
type JobConfig struct {
	TaskID    string `json:"taskId"`
	ContextID string `json:"contextId"`
	Tenant    string `json:"tenant,omitempty"`
	// MessageID is the latest user message when the job was enqueued. A job
	// whose message is no longer the latest is skipped by the executor.
	MessageID string `json:"messageId,omitempty"`
}

// NewJobConfig describes the execution of task under tenant.
func NewJobConfig(task *a2a.Task, tenant string) JobConfig {
	return JobConfig{
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Tenant:    tenant,
		MessageID: latestUserMessageID(task),
	}
}

// latestUserMessageID returns the id of the last user message in the task's
// history. Every user message starts a new generation of executions.
func latestUserMessageID(task *a2a.Task) string {
	for i := len(task.History) - 1; i >= 0; i-- {
		if task.History[i].Role == a2a.RoleUser {
			return task.History[i].MessageID
		}
	}
	return ""
}

// Job represents one background execution of a task
type Job struct {
	TaskID    string
	ContextID string
	Tenant    string
	MessageID string

	// Function fields for queue operations
	ExtendTimeoutFunc func(context.Context, time.Duration) error
	CompleteFunc      func() error
	FailFunc          func() error
}

// NewJob creates a job from config with no-op queue operations.
func NewJob(config JobConfig) *Job {
	return &Job{
		TaskID:            config.TaskID,
		ContextID:         config.ContextID,
		Tenant:            config.Tenant,
		MessageID:         config.MessageID,
		ExtendTimeoutFunc: func(context.Context, time.Duration) error { return nil },
		CompleteFunc:      func() error { return nil },
		FailFunc:          func() error { return nil },
	}
}

// Key returns the task key the job executes.
func (j *Job) Key() TaskKey {
	return TaskKey{Tenant: j.Tenant, TaskID: j.TaskID}
}

//go:generate go tool mockgen -source=jobqueue.go -destination=mock_jobqueue_test.go -package=taskengine

// TaskQueue schedules asynchronous task executions.
// Implementations never run two executions of the same (tenant, task id) at once:
// re-enqueuing a task supersedes the previous execution.
type TaskQueue interface {
	// Enqueue schedules execution of task. It does not wait for the execution.
	Enqueue(ctx context.Context, task *a2a.Task, tenant string) error
	// Cancel requests cancellation of the in-flight execution of task, if any.
	Cancel(ctx context.Context, task *a2a.Task, tenant string) error
	// Close gracefully shuts down the queue
	Close() error
}

// JobProcessor executes one job. *Executor is the engine's implementation.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *Job) error
}

// JobProcessorFunc adapts a function to JobProcessor.
type JobProcessorFunc func(ctx context.Context, job *Job) error

func (f JobProcessorFunc) ProcessJob(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// TaskRunner runs at most one unit of work per TaskKey.
// Starting a new unit for a key cancels the previous one and waits for it to
// return before the new one begins.
type TaskRunner struct {
	// OnDone, when set, is called after every unit ends, including units
	// superseded before they started. Set it before the first Run.
	OnDone func(key TaskKey)

	mu      sync.Mutex
	running map[TaskKey]*runningUnit
	closed  bool
	wg      sync.WaitGroup
}

type runningUnit struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTaskRunner creates an empty TaskRunner.
func NewTaskRunner() *TaskRunner {
	return &TaskRunner{
		running: make(map[TaskKey]*runningUnit),
	}
}

// Run starts fn for key in the background and returns immediately.
// fn receives a context that keeps the values of ctx but not its cancellation;
// it is canceled by Cancel, Close or a later Run for the same key.
func (r *TaskRunner) Run(ctx context.Context, key TaskKey, fn func(ctx context.Context)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrTaskQueueClosed
	}
	prev := r.running[key]
	unitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unit := &runningUnit{cancel: cancel, done: make(chan struct{})}
	r.running[key] = unit
	r.wg.Add(1)
	r.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	go func() {
		defer r.wg.Done()
		defer close(unit.done)
		if r.OnDone != nil {
			defer r.OnDone(key)
		}
		defer func() {
			cancel()
			r.mu.Lock()
			if r.running[key] == unit {
				delete(r.running, key)
			}
			r.mu.Unlock()
		}()
		// the previous unit must be gone before this one touches the task
		if prev != nil {
			<-prev.done
		}
		if unitCtx.Err() != nil {
			return
		}
		fn(unitCtx)
	}()
	return nil
}

// Cancel cancels the unit running for key. Unknown keys are ignored.
func (r *TaskRunner) Cancel(key TaskKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if unit, ok := r.running[key]; ok {
		unit.cancel()
	}
}

// Running reports whether a unit is registered for key.
func (r *TaskRunner) Running(key TaskKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[key]
	return ok
}

// Close cancels every unit and waits for all of them to return.
func (r *TaskRunner) Close() error {
	r.mu.Lock()
	r.closed = true
	for _, unit := range r.running {
		unit.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

// InProcessTaskQueue executes tasks in the current process.
// Scheduled work lives only as long as the process.
type InProcessTaskQueue struct {
	Processor JobProcessor
	Logger    *slog.Logger

	runner *TaskRunner
}

// NewInProcessTaskQueue creates a queue that hands every job to processor.
func NewInProcessTaskQueue(processor JobProcessor) *InProcessTaskQueue {
	return &InProcessTaskQueue{
		Processor: processor,
		Logger:    slog.Default(),
		runner:    NewTaskRunner(),
	}
}

// Enqueue starts execution of task, superseding any execution of the same task.
func (q *InProcessTaskQueue) Enqueue(ctx context.Context, task *a2a.Task, tenant string) error {
	job := NewJob(NewJobConfig(task, tenant))
	return q.runner.Run(ctx, job.Key(), func(ctx context.Context) {
		if err := q.Processor.ProcessJob(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
			q.Logger.Error("Job processing failed", "error", err, "taskID", job.TaskID, "tenant", job.Tenant)
		}
	})
}

// Cancel cancels the running execution of task. It is a no-op when nothing runs.
func (q *InProcessTaskQueue) Cancel(ctx context.Context, task *a2a.Task, tenant string) error {
	q.runner.Cancel(TaskKey{Tenant: tenant, TaskID: task.ID})
	return nil
}

// Close cancels all executions and waits for them to return.
func (q *InProcessTaskQueue) Close() error {
	return q.runner.Close()
}
