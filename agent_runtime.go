package taskengine

import (
	"context"
	"iter"

	"github.com/mashiike/taskengine/a2a"
)

//go:generate go tool mockgen -source=agent_runtime.go -destination=mock_agent_runtime_test.go -package=taskengine

// InvocationContext carries what the runtime needs to know about a new interaction.
type InvocationContext struct {
	Tenant        string
	TaskID        string
	ContextID     string
	Configuration *a2a.MessageSendConfiguration
	Metadata      map[string]any
}

// AgentRuntime is the agent backend driven by the engine.
type AgentRuntime interface {
	// Process handles the first message of an interaction. It returns either a
	// task to be executed in the background or a direct message reply.
	Process(ctx context.Context, message a2a.Message, ic InvocationContext) (*a2a.SendMessageResult, error)
	// Execute runs task and yields its events. The sequence is finite and
	// must stop when ctx is canceled.
	Execute(ctx context.Context, task *a2a.Task) iter.Seq2[a2a.TaskEvent, error]
}

// TaskStatusError allows runtime errors to define the status a failed task ends in.
type TaskStatusError interface {
	error
	ToTaskStatus() a2a.TaskStatus
}

type agentRuntimeFunc struct {
	process func(ctx context.Context, message a2a.Message, ic InvocationContext) (*a2a.SendMessageResult, error)
	execute func(ctx context.Context, task *a2a.Task) iter.Seq2[a2a.TaskEvent, error]
}

// NewAgentRuntime builds an AgentRuntime from functions. A nil process
// creates a submitted task for every message.
func NewAgentRuntime(
	process func(ctx context.Context, message a2a.Message, ic InvocationContext) (*a2a.SendMessageResult, error),
	execute func(ctx context.Context, task *a2a.Task) iter.Seq2[a2a.TaskEvent, error],
) AgentRuntime {
	if process == nil {
		process = SubmitTask
	}
	return &agentRuntimeFunc{process: process, execute: execute}
}

func (r *agentRuntimeFunc) Process(ctx context.Context, message a2a.Message, ic InvocationContext) (*a2a.SendMessageResult, error) {
	return r.process(ctx, message, ic)
}

func (r *agentRuntimeFunc) Execute(ctx context.Context, task *a2a.Task) iter.Seq2[a2a.TaskEvent, error] {
	if r.execute == nil {
		return func(yield func(a2a.TaskEvent, error) bool) {}
	}
	return r.execute(ctx, task)
}

// SubmitTask answers every message with a new submitted task whose history
// holds the message. The ids come from ic; the server fills them when empty.
func SubmitTask(_ context.Context, message a2a.Message, ic InvocationContext) (*a2a.SendMessageResult, error) {
	task := a2a.NewTask(ic.TaskID, ic.ContextID, a2a.TaskStateSubmitted)
	task.History = []a2a.Message{message}
	return &a2a.SendMessageResult{Task: &task}, nil
}
