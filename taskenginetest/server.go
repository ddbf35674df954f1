package taskenginetest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mashiike/taskengine"
	"github.com/mashiike/taskengine/a2a"
)

// Server is an in-memory engine wired the way production wires it: the
// protocol server enqueues onto an in-process queue whose jobs run on an
// Executor sharing the server's store and event stream.
type Server struct {
	*taskengine.ProtocolServer

	Store    *taskengine.MemoryStore
	Events   *taskengine.MemoryEventStream
	Queue    *taskengine.InProcessTaskQueue
	Executor *taskengine.Executor
}

// NewServer creates a Server for runtime. Everything is shut down when tb ends.
//
// Example usage:
//
//	runtime := taskenginetest.NewRuntime(taskenginetest.Status(a2a.TaskStateCompleted, "done"))
//	srv := taskenginetest.NewServer(t, runtime)
//	result, err := srv.SendMessage(ctx, params, "")
func NewServer(tb testing.TB, runtime taskengine.AgentRuntime) *Server {
	tb.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ids := &taskengine.SequentialIDGenerator{}

	store := taskengine.NewMemoryStore()
	events := taskengine.NewMemoryEventStream()

	executor := taskengine.NewExecutor(store, runtime, events)
	executor.CancelMonitoringInterval = 10 * time.Millisecond
	executor.IDGenerator = ids
	executor.Logger = logger

	queue := taskengine.NewInProcessTaskQueue(executor)
	queue.Logger = logger

	srv := taskengine.NewProtocolServer(store, runtime, queue, events)
	srv.IDGenerator = ids
	srv.Logger = logger

	tb.Cleanup(func() {
		_ = queue.Close()
		_ = events.Close()
	})
	return &Server{
		ProtocolServer: srv,
		Store:          store,
		Events:         events,
		Queue:          queue,
		Executor:       executor,
	}
}

// WaitForState polls the task until it reaches one of states or timeout elapses.
func (s *Server) WaitForState(tb testing.TB, taskID, tenant string, timeout time.Duration, states ...a2a.TaskState) *a2a.Task {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	var last *a2a.Task
	for {
		task, err := s.Store.GetTask(ctx, taskID, tenant)
		if err != nil && !errors.Is(err, taskengine.ErrTaskNotFound) {
			tb.Fatalf("failed to get task %s: %v", taskID, err)
		}
		if task != nil {
			last = task
			for _, state := range states {
				if task.Status.State == state {
					return task
				}
			}
		}
		select {
		case <-ctx.Done():
			got := a2a.TaskState("")
			if last != nil {
				got = last.Status.State
			}
			tb.Fatalf("task %s did not reach %v within %s, last state %q", taskID, states, timeout, got)
			return nil
		case <-ticker.C:
		}
	}
}

// Collect drains ch until it is closed or timeout elapses.
func Collect(tb testing.TB, ch <-chan a2a.StreamResponse, timeout time.Duration) []a2a.StreamResponse {
	tb.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var out []a2a.StreamResponse
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, item)
		case <-timer.C:
			tb.Fatalf("stream did not close within %s, received %d items", timeout, len(out))
			return out
		}
	}
}
