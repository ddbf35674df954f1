package a2a

import "fmt"

// TaskEvent is a task lifecycle event. It is implemented only by
// *TaskStatusUpdateEvent and *TaskArtifactUpdateEvent.
type TaskEvent interface {
	GetTaskID() string
	GetContextID() string
	isTaskEvent()
}

// TaskStatusUpdateEvent reports a replaced task status.
type TaskStatusUpdateEvent struct {
	Kind      Kind           `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskArtifactUpdateEvent reports a new artifact or a chunk appended to an existing one.
type TaskArtifactUpdateEvent struct {
	Kind      Kind           `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e *TaskStatusUpdateEvent) GetTaskID() string    { return e.TaskID }
func (e *TaskStatusUpdateEvent) GetContextID() string { return e.ContextID }
func (*TaskStatusUpdateEvent) isTaskEvent()           {}

func (e *TaskArtifactUpdateEvent) GetTaskID() string    { return e.TaskID }
func (e *TaskArtifactUpdateEvent) GetContextID() string { return e.ContextID }
func (*TaskArtifactUpdateEvent) isTaskEvent()           {}

// NewStatusUpdateEvent creates a status event for task. Final is set when the
// status ends the current execution (terminal or waiting on the caller).
func NewStatusUpdateEvent(task *Task, status TaskStatus) *TaskStatusUpdateEvent {
	return &TaskStatusUpdateEvent{
		Kind:      KindStatusUpdate,
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Status:    status,
		Final:     status.State.IsTerminal() || status.State.IsInterrupted(),
	}
}

// NewArtifactUpdateEvent creates an artifact event for task.
func NewArtifactUpdateEvent(task *Task, artifact Artifact, appendChunk, lastChunk bool) *TaskArtifactUpdateEvent {
	return &TaskArtifactUpdateEvent{
		Kind:      KindArtifactUpdate,
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Artifact:  artifact,
		Append:    appendChunk,
		LastChunk: lastChunk,
	}
}

// StreamResponse represents one item yielded by a streaming operation.
// Exactly one field is set.
type StreamResponse struct {
	Task     *Task                    `json:"task,omitempty"`
	Message  *Message                 `json:"message,omitempty"`
	Status   *TaskStatusUpdateEvent   `json:"status,omitempty"`
	Artifact *TaskArtifactUpdateEvent `json:"artifact,omitempty"`
}

// NewStreamResponse wraps a task event.
func NewStreamResponse(event TaskEvent) StreamResponse {
	switch ev := event.(type) {
	case *TaskStatusUpdateEvent:
		return StreamResponse{Status: ev}
	case *TaskArtifactUpdateEvent:
		return StreamResponse{Artifact: ev}
	default:
		panic(fmt.Sprintf("a2a: unknown task event %T", event))
	}
}

// Event returns the wrapped task event, or nil when the response carries a task or message.
func (r StreamResponse) Event() TaskEvent {
	switch {
	case r.Status != nil:
		return r.Status
	case r.Artifact != nil:
		return r.Artifact
	default:
		return nil
	}
}

// IsFinal reports whether r is the last item of a stream.
func (r StreamResponse) IsFinal() bool {
	return r.Status != nil && r.Status.Final
}
