// Package a2a provides the Agent-to-Agent (A2A) data model used by the task engine.
// It holds plain in-memory entities only; wire framing lives in transport adapters.
package a2a

import (
	"time"
)

// Kind discriminates messages, tasks, parts and task events.
type Kind string

const (
	KindMessage        Kind = "message"
	KindTask           Kind = "task"
	KindTextPart       Kind = "text"
	KindFilePart       Kind = "file"
	KindDataPart       Kind = "data"
	KindStatusUpdate   Kind = "status-update"
	KindArtifactUpdate Kind = "artifact-update"
)

func (k Kind) String() string { return string(k) }

// Role identifies the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// IsValid reports whether r is user or agent.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAgent
}

func (r Role) String() string { return string(r) }

// TaskState is a node of the task lifecycle.
//
//	submitted -> working -> completed | failed | canceled | rejected
//	working -> input-required | auth-required -> submitted (on the next message)
//
// Terminal states never change again.
type TaskState string

const (
	TaskStateUnspecified   TaskState = "unspecified"
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
)

type stateTraits struct {
	terminal    bool
	interrupted bool
}

var taskStates = map[TaskState]stateTraits{
	TaskStateUnspecified:   {},
	TaskStateSubmitted:     {},
	TaskStateWorking:       {},
	TaskStateInputRequired: {interrupted: true},
	TaskStateAuthRequired:  {interrupted: true},
	TaskStateCompleted:     {terminal: true},
	TaskStateCanceled:      {terminal: true},
	TaskStateFailed:        {terminal: true},
	TaskStateRejected:      {terminal: true},
}

// IsValid reports whether state is one of the known task states.
func (state TaskState) IsValid() bool {
	_, ok := taskStates[state]
	return ok
}

// IsTerminal reports whether state ends the task's lifecycle.
func (state TaskState) IsTerminal() bool {
	return taskStates[state].terminal
}

// IsInterrupted reports whether the task waits on the caller (input or auth).
func (state TaskState) IsInterrupted() bool {
	return taskStates[state].interrupted
}

// CanCancel reports whether a task in state may still be canceled.
func (state TaskState) CanCancel() bool {
	traits, ok := taskStates[state]
	return ok && !traits.terminal
}

func (state TaskState) String() string { return string(state) }

// MessageSendParams represents the parameters of a send message operation.
type MessageSendParams struct {
	Message       Message                   `json:"message"`
	Configuration *MessageSendConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any            `json:"metadata,omitempty"`
}

// MessageSendConfiguration represents configuration for the send message request.
type MessageSendConfiguration struct {
	AcceptedOutputModes    []string                `json:"acceptedOutputModes,omitempty"`
	HistoryLength          *int                    `json:"historyLength,omitempty"` // nil means unset, 0 means none
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig,omitempty"`
}

// SendMessageResult is the response of a send message operation: exactly one of Task or Message is set.
type SendMessageResult struct {
	Task    *Task    `json:"task,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// TaskPushNotificationConfig binds a push notification config to a task.
type TaskPushNotificationConfig struct {
	TaskID                 string                 `json:"taskId"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

// Message is one turn of a conversation.
type Message struct {
	Kind             Kind           `json:"kind"`
	MessageID        string         `json:"messageId"`
	ContextID        string         `json:"contextId,omitempty"`
	TaskID           string         `json:"taskId,omitempty"`
	Role             Role           `json:"role"`
	Parts            []Part         `json:"parts"`
	ReferenceTaskIDs []string       `json:"referenceTaskIds,omitempty"`
	Extensions       []string       `json:"extensions,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Part is a piece of content. Kind selects which of Text, File and Data is meaningful.
type Part struct {
	Kind     Kind           `json:"kind"`
	Text     string         `json:"text,omitempty"`
	File     *FilePart      `json:"file,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FilePart references a file by URI or carries it inline as base64 bytes.
type FilePart struct {
	URI      string `json:"uri,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Task is the unit of work tracked by the engine.
type Task struct {
	Kind      Kind           `json:"kind"`
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskStatus is the current state of a task with an optional agent message.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp *string   `json:"timestamp,omitempty"` // RFC 3339
}

// Artifact is an output produced by a task.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Extensions  []string       `json:"extensions,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// PushNotificationConfig describes a webhook receiving a task's events.
type PushNotificationConfig struct {
	ID             string                              `json:"id,omitempty"`
	URL            string                              `json:"url"`
	Token          string                              `json:"token,omitempty"`
	Authentication *PushNotificationAuthenticationInfo `json:"authentication,omitempty"`
}

// PushNotificationAuthenticationInfo holds the credentials presented to the webhook.
type PushNotificationAuthenticationInfo struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitempty"`
}

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{Kind: KindTextPart, Text: text}
}

// NewFilePart creates a file part referencing uri.
func NewFilePart(uri, name, mimeType string) Part {
	return Part{Kind: KindFilePart, File: &FilePart{URI: uri, Name: name, MimeType: mimeType}}
}

// NewDataPart creates a structured data part.
func NewDataPart(data map[string]any) Part {
	return Part{Kind: KindDataPart, Data: data}
}

// MessageOptions represents optional fields for message creation.
type MessageOptions struct {
	ContextID        string
	TaskID           string
	ReferenceTaskIDs []string
	Extensions       []string
	Metadata         map[string]any
}

// NewMessage creates a message; optFns fill the optional fields.
func NewMessage(messageID string, role Role, parts []Part, optFns ...func(*MessageOptions)) Message {
	var opts MessageOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return Message{
		Kind:             KindMessage,
		MessageID:        messageID,
		Role:             role,
		Parts:            parts,
		ContextID:        opts.ContextID,
		TaskID:           opts.TaskID,
		ReferenceTaskIDs: opts.ReferenceTaskIDs,
		Extensions:       opts.Extensions,
		Metadata:         opts.Metadata,
	}
}

// NewTask creates a task in state without a timestamp.
func NewTask(id string, contextID string, state TaskState) Task {
	return Task{
		Kind:      KindTask,
		ID:        id,
		ContextID: contextID,
		Status:    TaskStatus{State: state},
	}
}

// NewTaskStatus creates a status stamped with t.
func NewTaskStatus(state TaskState, message *Message, t time.Time) TaskStatus {
	status := TaskStatus{State: state, Message: message}
	status.SetTimestamp(t)
	return status
}

// SetTimestamp stamps the status with t in UTC.
func (ts *TaskStatus) SetTimestamp(t time.Time) {
	timestamp := t.UTC().Format(time.RFC3339Nano)
	ts.Timestamp = &timestamp
}

// GetTimestamp parses the timestamp. It returns nil when the status has none.
func (ts *TaskStatus) GetTimestamp() (*time.Time, error) {
	if ts.Timestamp == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *ts.Timestamp)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
