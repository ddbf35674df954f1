package taskengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Songmu/flextime"
	"github.com/mashiike/taskengine/a2a"
)

var (
	// errTaskClosed aborts an execution whose task reached a terminal state
	// outside of it, e.g. through CancelTask.
	errTaskClosed = errors.New("task is already in a terminal state")
	// errSuperseded aborts an execution whose task received a newer user
	// message. The job enqueued for that message takes over.
	errSuperseded = errors.New("task received a newer message")

	errHeartbeatFailed = errors.New("heartbeat failed")
)

// jobOutcome is what ProcessJob reports to the queue once the heartbeat stopped.
type jobOutcome int

const (
	jobLeft jobOutcome = iota // neither completed nor failed, the queue decides
	jobCompleted
	jobFailed
)

// Executor drives one task through the AgentRuntime per job. Every change is
// persisted through Store.ModifyTask and then published, in that order.
type Executor struct {
	Store   Store
	Runtime AgentRuntime
	Events  EventStream

	// PushNotificationSender delivers every published event to the task's webhooks (optional)
	PushNotificationSender PushNotificationSender
	// TaskLocker prevents concurrent execution across processes (optional)
	TaskLocker TaskLocker

	HeartbeatInterval        time.Duration // interval between job visibility extensions
	CancelMonitoringInterval time.Duration // interval between store checks for external cancellation
	LockRetryInterval        time.Duration

	IDGenerator IDGenerator
	Metrics     *Metrics
	Logger      *slog.Logger
}

// NewExecutor creates an Executor with default intervals.
func NewExecutor(store Store, runtime AgentRuntime, events EventStream) *Executor {
	return &Executor{
		Store:                    store,
		Runtime:                  runtime,
		Events:                   events,
		HeartbeatInterval:        30 * time.Second,
		CancelMonitoringInterval: time.Second,
		LockRetryInterval:        time.Second,
		IDGenerator:              DefaultIDGenerator{},
		Logger:                   slog.Default(),
	}
}

// ProcessJob executes the task referenced by job until the agent's event
// sequence ends, the task reaches a terminal state, or ctx is canceled.
// Agent failures are recorded on the task and are not returned; the returned
// error reports infrastructure failures and cancellation.
func (e *Executor) ProcessJob(ctx context.Context, job *Job) error {
	logger := e.Logger.With("taskID", job.TaskID, "contextID", job.ContextID, "tenant", job.Tenant)

	jobCtx, jobCancel := context.WithCancelCause(ctx)
	defer jobCancel(nil)

	// the heartbeat also covers the wait for the task lock
	var heartbeatWg sync.WaitGroup
	heartbeatCtx, stopHeartbeat := context.WithCancel(jobCtx)
	heartbeatWg.Add(1)
	go e.heartbeat(heartbeatCtx, &heartbeatWg, job, jobCancel)

	outcome, err := e.process(ctx, jobCtx, job, logger)
	stopHeartbeat()
	heartbeatWg.Wait()

	switch outcome {
	case jobCompleted:
		completeJob(job, logger)
	case jobFailed:
		failJob(job, logger)
	}
	return err
}

func (e *Executor) process(ctx, jobCtx context.Context, job *Job, logger *slog.Logger) (jobOutcome, error) {
	if e.TaskLocker != nil {
		unlock, err := e.acquireTaskLockWithRetry(jobCtx, job.Key())
		if err != nil {
			if ctx.Err() != nil {
				return jobLeft, ctx.Err()
			}
			if cause := context.Cause(jobCtx); errors.Is(cause, errHeartbeatFailed) {
				err = cause
			}
			logger.Error("Failed to acquire task lock", "error", err)
			return jobFailed, err
		}
		defer unlock()
	}

	task, err := e.Store.GetTask(jobCtx, job.TaskID, job.Tenant)
	if err != nil {
		logger.Error("Failed to get task for processing", "error", err)
		if errors.Is(err, ErrTaskNotFound) {
			// nothing to retry for a task that does not exist
			return jobCompleted, fmt.Errorf("failed to get task: %w", err)
		}
		return jobFailed, fmt.Errorf("failed to get task: %w", err)
	}
	if task.Status.State.IsTerminal() {
		logger.Debug("Task is already in terminal state, skipping processing", "state", task.Status.State)
		return jobCompleted, nil
	}
	generation := latestUserMessageID(task)
	if job.MessageID != "" && job.MessageID != generation {
		logger.Debug("Task has a newer message than the job, skipping processing", "messageID", job.MessageID, "latestMessageID", generation)
		return jobCompleted, nil
	}

	agentCtx, agentCancel := context.WithCancelCause(jobCtx)
	defer agentCancel(nil)

	var watchWg sync.WaitGroup
	watchCtx, stopWatch := context.WithCancel(agentCtx)
	watchWg.Add(1)
	go e.watch(watchCtx, &watchWg, job, generation, agentCancel)

	x := &execution{executor: e, job: job, task: task, generation: generation, logger: logger}
	runErr := x.run(agentCtx)

	stopWatch()
	watchWg.Wait()

	switch {
	case runErr == nil:
		e.Metrics.executionFinished(string(x.task.Status.State))
		return jobCompleted, nil
	case changedElsewhere(runErr), changedElsewhere(context.Cause(agentCtx)):
		logger.Debug("Task changed outside the execution, stopping", "reason", context.Cause(agentCtx))
		return jobCompleted, nil
	case agentCtx.Err() != nil:
		if ctx.Err() != nil {
			logger.Debug("Task execution cancelled")
			return jobLeft, ctx.Err()
		}
		cause := context.Cause(agentCtx)
		logger.Error("Task execution aborted", "error", cause)
		return jobFailed, cause
	}

	logger.Warn("Agent execution failed", "error", runErr)
	if err := x.fail(ctx, runErr); err != nil {
		if changedElsewhere(err) {
			return jobCompleted, nil
		}
		logger.Error("Failed to record task failure", "error", err)
		return jobFailed, fmt.Errorf("failed to record task failure: %w", err)
	}
	e.Metrics.executionFinished(string(x.task.Status.State))
	return jobCompleted, nil
}

// changedElsewhere reports whether err stopped an execution because its task
// was finished or continued by someone else.
func changedElsewhere(err error) bool {
	return errors.Is(err, errTaskClosed) || errors.Is(err, errSuperseded)
}

func completeJob(job *Job, logger *slog.Logger) {
	if job.CompleteFunc == nil {
		return
	}
	if err := job.CompleteFunc(); err != nil {
		logger.Error("Failed to mark job as completed", "error", err)
	}
}

func failJob(job *Job, logger *slog.Logger) {
	if job.FailFunc == nil {
		return
	}
	if err := job.FailFunc(); err != nil {
		logger.Error("Failed to mark job as failed", "error", err)
	}
}

// acquireTaskLockWithRetry attempts to acquire a task lock until ctx is done
func (e *Executor) acquireTaskLockWithRetry(ctx context.Context, key TaskKey) (func(), error) {
	interval := e.LockRetryInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		unlock, err := e.TaskLocker.Lock(ctx, key)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, ErrTaskLockAlreadyAcquired) {
			return nil, err
		}
		e.Logger.Debug("Failed to acquire task lock, retrying", "error", err, "taskID", key.TaskID, "tenant", key.Tenant)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// heartbeat extends the job's visibility until ctx is done. A failed
// extension cancels the whole job.
func (e *Executor) heartbeat(ctx context.Context, wg *sync.WaitGroup, job *Job, cancel context.CancelCauseFunc) {
	defer wg.Done()
	if job.ExtendTimeoutFunc == nil || e.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job.ExtendTimeoutFunc(ctx, e.HeartbeatInterval*2); err != nil {
				if ctx.Err() != nil {
					return
				}
				e.Logger.Error("Heartbeat failed - cancelling job", "error", err, "taskID", job.TaskID)
				cancel(fmt.Errorf("%w: %w", errHeartbeatFailed, err))
				return
			}
		}
	}
}

// watch polls the store until ctx is done and stops the execution when the
// task was finished elsewhere or received a newer user message.
func (e *Executor) watch(ctx context.Context, wg *sync.WaitGroup, job *Job, generation string, agentCancel context.CancelCauseFunc) {
	defer wg.Done()
	if e.CancelMonitoringInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.CancelMonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task, err := e.Store.GetTask(ctx, job.TaskID, job.Tenant)
			if err != nil {
				// transient store errors keep the execution running
				e.Logger.Debug("Failed to check task status for cancellation", "error", err, "taskID", job.TaskID)
				continue
			}
			switch {
			case task.Status.State.IsTerminal():
				e.Logger.Debug("Task is in terminal state - cancelling agent execution", "taskID", job.TaskID, "state", task.Status.State)
				agentCancel(errTaskClosed)
				return
			case latestUserMessageID(task) != generation:
				e.Logger.Debug("Task received a newer message - cancelling agent execution", "taskID", job.TaskID)
				agentCancel(errSuperseded)
				return
			}
		}
	}
}

func (e *Executor) publisher() eventPublisher {
	return eventPublisher{
		events:  e.Events,
		store:   e.Store,
		sender:  e.PushNotificationSender,
		metrics: e.Metrics,
		logger:  e.Logger,
	}
}

// execution is the state of one ProcessJob call.
type execution struct {
	executor   *Executor
	job        *Job
	task       *a2a.Task
	generation string // latest user message when the execution started
	logger     *slog.Logger
}

func (x *execution) run(ctx context.Context) error {
	if x.task.Status.State != a2a.TaskStateSubmitted {
		if err := x.transition(ctx, a2a.NewTaskStatus(a2a.TaskStateSubmitted, nil, flextime.Now())); err != nil {
			return err
		}
	}
	if err := x.drive(ctx); err != nil {
		return err
	}
	state := x.task.Status.State
	if state.IsTerminal() || state.IsInterrupted() {
		return nil
	}
	return x.transition(ctx, a2a.NewTaskStatus(a2a.TaskStateCompleted, nil, flextime.Now()))
}

// drive consumes the runtime's event sequence. Panics raised by the runtime
// are returned as agent failures.
func (x *execution) drive(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrAgentFailure, r)
		}
	}()

	started := false
	for event, eventErr := range x.executor.Runtime.Execute(ctx, x.task.Clone()) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if eventErr != nil {
			return fmt.Errorf("%w: %w", ErrAgentFailure, eventErr)
		}
		if event == nil {
			continue
		}
		if !started {
			started = true
			if x.task.Status.State != a2a.TaskStateWorking {
				if err := x.transition(ctx, a2a.NewTaskStatus(a2a.TaskStateWorking, nil, flextime.Now())); err != nil {
					return err
				}
			}
		}
		if err := x.apply(ctx, event); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (x *execution) apply(ctx context.Context, event a2a.TaskEvent) error {
	switch ev := event.(type) {
	case *a2a.TaskStatusUpdateEvent:
		status := ev.Status
		if !status.State.IsValid() {
			return fmt.Errorf("%w: invalid task state %q", ErrAgentFailure, status.State)
		}
		if status.Timestamp == nil {
			status.SetTimestamp(flextime.Now())
		}
		return x.commit(ctx, func(task *a2a.Task) (a2a.TaskEvent, error) {
			task.Status = status
			out := a2a.NewStatusUpdateEvent(task, status)
			out.Metadata = ev.Metadata
			return out, nil
		})
	case *a2a.TaskArtifactUpdateEvent:
		return x.commit(ctx, func(task *a2a.Task) (a2a.TaskEvent, error) {
			idx := task.FindArtifact(ev.Artifact.ArtifactID)
			switch {
			case ev.Append && idx < 0:
				return nil, fmt.Errorf("%w: artifact %q to append to does not exist", ErrAgentFailure, ev.Artifact.ArtifactID)
			case ev.Append:
				task.Artifacts[idx].Merge(ev.Artifact)
			case idx >= 0:
				task.Artifacts[idx] = ev.Artifact.Clone()
			default:
				task.Artifacts = append(task.Artifacts, ev.Artifact.Clone())
			}
			out := a2a.NewArtifactUpdateEvent(task, ev.Artifact.Clone(), ev.Append, ev.LastChunk)
			out.Metadata = ev.Metadata
			return out, nil
		})
	default:
		return fmt.Errorf("%w: unsupported task event %T", ErrAgentFailure, event)
	}
}

// transition moves the task to status, keeping the previous status message in history.
func (x *execution) transition(ctx context.Context, status a2a.TaskStatus) error {
	return x.commit(ctx, func(task *a2a.Task) (a2a.TaskEvent, error) {
		if task.Status.Message != nil {
			task.History = append(task.History, *task.Status.Message)
		}
		task.Status = status
		return a2a.NewStatusUpdateEvent(task, status), nil
	})
}

// fail records cause on the task. A TaskStatusError decides the resulting
// status; any other error moves the task to failed with an agent status
// message describing it.
func (x *execution) fail(ctx context.Context, cause error) error {
	var statusErr TaskStatusError
	if errors.As(cause, &statusErr) {
		status := statusErr.ToTaskStatus()
		if status.Timestamp == nil {
			status.SetTimestamp(flextime.Now())
		}
		return x.transition(ctx, status)
	}

	msg := a2a.NewMessage(x.executor.IDGenerator.GenerateMessageID(), a2a.RoleAgent,
		[]a2a.Part{a2a.NewTextPart(cause.Error())},
		func(mo *a2a.MessageOptions) {
			mo.TaskID = x.job.TaskID
			mo.ContextID = x.task.ContextID
		},
	)
	return x.transition(ctx, a2a.NewTaskStatus(a2a.TaskStateFailed, &msg, flextime.Now()))
}

// commit persists one mutation and publishes the event it produced. Once the
// store update starts, the pair completes even if ctx is canceled. A task
// that is already terminal is left untouched and errTaskClosed is returned;
// a task with a newer user message is left to its next execution and
// errSuperseded is returned.
func (x *execution) commit(ctx context.Context, mutate func(task *a2a.Task) (a2a.TaskEvent, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pairCtx := context.WithoutCancel(ctx)

	var event a2a.TaskEvent
	updated, err := x.executor.Store.ModifyTask(pairCtx, x.job.TaskID, x.job.Tenant, func(task *a2a.Task) (*a2a.Task, error) {
		if task.Status.State.IsTerminal() {
			return nil, errTaskClosed
		}
		if latestUserMessageID(task) != x.generation {
			return nil, errSuperseded
		}
		ev, err := mutate(task)
		if err != nil {
			return nil, err
		}
		event = ev
		return task, nil
	})
	if err != nil {
		return err
	}
	x.task = updated
	x.executor.publisher().publish(pairCtx, x.job.Tenant, event)
	return nil
}
