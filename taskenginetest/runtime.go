// Package taskenginetest provides testing utilities for taskengine: a
// scriptable AgentRuntime, an in-memory engine wired like production, and a
// conformance suite every Store implementation must pass.
package taskenginetest

import (
	"context"
	"iter"
	"sync"

	"github.com/mashiike/taskengine"
	"github.com/mashiike/taskengine/a2a"
)

// Step produces one event of a scripted execution. A nil event is skipped.
type Step func(ctx context.Context, task *a2a.Task) (a2a.TaskEvent, error)

// Runtime is a scripted taskengine.AgentRuntime. Every execution plays Steps
// in order, and records the task it was started for.
type Runtime struct {
	// Reply makes Process answer with this message instead of creating a task.
	Reply *a2a.Message
	Steps []Step

	mu       sync.Mutex
	executed []*a2a.Task
}

// NewRuntime creates a Runtime playing steps.
func NewRuntime(steps ...Step) *Runtime {
	return &Runtime{Steps: steps}
}

func (r *Runtime) Process(ctx context.Context, message a2a.Message, ic taskengine.InvocationContext) (*a2a.SendMessageResult, error) {
	if r.Reply != nil {
		reply := r.Reply.Clone()
		return &a2a.SendMessageResult{Message: &reply}, nil
	}
	return taskengine.SubmitTask(ctx, message, ic)
}

func (r *Runtime) Execute(ctx context.Context, task *a2a.Task) iter.Seq2[a2a.TaskEvent, error] {
	r.mu.Lock()
	r.executed = append(r.executed, task.Clone())
	r.mu.Unlock()

	return func(yield func(a2a.TaskEvent, error) bool) {
		for _, step := range r.Steps {
			event, err := step(ctx, task)
			if event == nil && err == nil {
				continue
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Executions returns the tasks Execute was called with, in call order.
func (r *Runtime) Executions() []*a2a.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*a2a.Task(nil), r.executed...)
}

// Status yields a status update with an optional agent text message.
func Status(state a2a.TaskState, text string) Step {
	return func(_ context.Context, task *a2a.Task) (a2a.TaskEvent, error) {
		status := a2a.TaskStatus{State: state}
		if text != "" {
			msg := a2a.NewMessage("status-"+string(state), a2a.RoleAgent, []a2a.Part{a2a.NewTextPart(text)},
				func(mo *a2a.MessageOptions) {
					mo.TaskID = task.ID
					mo.ContextID = task.ContextID
				},
			)
			status.Message = &msg
		}
		return &a2a.TaskStatusUpdateEvent{
			Kind:      a2a.KindStatusUpdate,
			TaskID:    task.ID,
			ContextID: task.ContextID,
			Status:    status,
		}, nil
	}
}

// Artifact yields an artifact update.
func Artifact(artifact a2a.Artifact, appendChunk, lastChunk bool) Step {
	return func(_ context.Context, task *a2a.Task) (a2a.TaskEvent, error) {
		return a2a.NewArtifactUpdateEvent(task, artifact, appendChunk, lastChunk), nil
	}
}

// Error ends the execution with err.
func Error(err error) Step {
	return func(context.Context, *a2a.Task) (a2a.TaskEvent, error) {
		return nil, err
	}
}

// Panic panics with v inside the runtime.
func Panic(v any) Step {
	return func(context.Context, *a2a.Task) (a2a.TaskEvent, error) {
		panic(v)
	}
}

// WaitFor blocks until ch is closed or the execution is canceled.
func WaitFor(ch <-chan struct{}) Step {
	return func(ctx context.Context, _ *a2a.Task) (a2a.TaskEvent, error) {
		select {
		case <-ch:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Block blocks until the execution is canceled.
func Block() Step {
	return func(ctx context.Context, _ *a2a.Task) (a2a.TaskEvent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// Notify closes ch when the execution reaches this step.
func Notify(ch chan<- struct{}) Step {
	var once sync.Once
	return func(context.Context, *a2a.Task) (a2a.TaskEvent, error) {
		once.Do(func() { close(ch) })
		return nil, nil
	}
}
