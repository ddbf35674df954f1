package taskengine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Songmu/flextime"
	"github.com/mashiike/taskengine/a2a"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProtocolServer implements the A2A task operations on top of a Store, a
// TaskQueue and an EventStream. Every operation is scoped to a tenant.
type ProtocolServer struct {
	Store   Store
	Runtime AgentRuntime
	Queue   TaskQueue
	Events  EventStream

	// PushNotificationSender verifies webhook URLs and delivers cancellation events (optional)
	PushNotificationSender PushNotificationSender
	// DisablePushNotifications rejects push notification configs when set to true
	DisablePushNotifications bool

	IDGenerator IDGenerator
	Tracer      trace.Tracer
	Metrics     *Metrics
	Logger      *slog.Logger
}

// NewProtocolServer creates a ProtocolServer with the default IDGenerator and the global tracer provider.
func NewProtocolServer(store Store, runtime AgentRuntime, queue TaskQueue, events EventStream) *ProtocolServer {
	return &ProtocolServer{
		Store:       store,
		Runtime:     runtime,
		Queue:       queue,
		Events:      events,
		IDGenerator: DefaultIDGenerator{},
		Tracer:      otel.GetTracerProvider().Tracer("github.com/mashiike/taskengine"),
		Logger:      slog.Default(),
	}
}

func (s *ProtocolServer) pushNotificationsEnabled() bool {
	return !s.DisablePushNotifications && s.PushNotificationSender != nil
}

func (s *ProtocolServer) startSpan(ctx context.Context, operation, tenant string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("a2a.tenant", tenant))
	return s.Tracer.Start(ctx, "taskengine."+operation, trace.WithAttributes(attrs...))
}

func (s *ProtocolServer) endSpan(span trace.Span, operation string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("taskengine.error_kind", string(KindOf(err))))
	}
	s.Metrics.operation(operation, err)
	span.End()
}

func (s *ProtocolServer) publisher() eventPublisher {
	p := eventPublisher{
		events:  s.Events,
		store:   s.Store,
		metrics: s.Metrics,
		logger:  s.Logger,
	}
	if s.pushNotificationsEnabled() {
		p.sender = s.PushNotificationSender
	}
	return p
}

// SendMessage starts a new interaction or continues an existing task.
//
// Without a task id the message goes to AgentRuntime.Process: a direct
// message reply is returned as is, a task is stored and enqueued. With a task
// id the message is appended to that task's history and the task is enqueued
// again. The returned task reflects the state right after enqueueing.
func (s *ProtocolServer) SendMessage(ctx context.Context, params a2a.MessageSendParams, tenant string) (result *a2a.SendMessageResult, err error) {
	ctx, span := s.startSpan(ctx, "SendMessage", tenant, attribute.String("a2a.task_id", params.Message.TaskID))
	defer func() { s.endSpan(span, "SendMessage", err) }()

	out, err := s.dispatch(ctx, params, tenant)
	if err != nil {
		return nil, err
	}
	if out.message != nil {
		return &a2a.SendMessageResult{Message: out.message}, nil
	}
	return &a2a.SendMessageResult{Task: a2a.Project(out.task, projectionFor(params.Configuration))}, nil
}

// SendStreamingMessage behaves like SendMessage and then streams the task's
// live events until a final status event, ctx cancellation or stream shutdown.
// A newly created task is yielded first; a direct message reply is the only item.
func (s *ProtocolServer) SendStreamingMessage(ctx context.Context, params a2a.MessageSendParams, tenant string) (_ <-chan a2a.StreamResponse, err error) {
	ctx, span := s.startSpan(ctx, "SendStreamingMessage", tenant, attribute.String("a2a.task_id", params.Message.TaskID))
	defer func() { s.endSpan(span, "SendStreamingMessage", err) }()

	// subscribe before anything is persisted so no event of this execution is missed
	sub, err := s.Events.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	out, err := s.dispatch(ctx, params, tenant)
	if err != nil {
		sub.Close()
		return nil, err
	}
	if out.message != nil {
		sub.Close()
		ch := make(chan a2a.StreamResponse, 1)
		ch <- a2a.StreamResponse{Message: out.message}
		close(ch)
		return ch, nil
	}

	var first *a2a.Task
	if out.created {
		first = a2a.Project(out.task, projectionFor(params.Configuration))
	}
	if out.task.Status.State.IsTerminal() {
		// nothing will run for a task the runtime finished while processing
		sub.Close()
		ch := make(chan a2a.StreamResponse, 1)
		if first != nil {
			ch <- a2a.StreamResponse{Task: first}
		}
		close(ch)
		return ch, nil
	}
	return s.stream(ctx, sub, tenant, out.task.ID, first), nil
}

// GetTask returns the task, keeping only the last historyLength history entries when set.
func (s *ProtocolServer) GetTask(ctx context.Context, taskID string, historyLength *int, tenant string) (task *a2a.Task, err error) {
	ctx, span := s.startSpan(ctx, "GetTask", tenant, attribute.String("a2a.task_id", taskID))
	defer func() { s.endSpan(span, "GetTask", err) }()

	stored, err := s.Store.GetTask(ctx, taskID, tenant)
	if err != nil {
		return nil, err
	}
	return a2a.Project(stored, a2a.ProjectionOptions{HistoryLength: historyLength, IncludeArtifacts: true}), nil
}

func (s *ProtocolServer) ListTasks(ctx context.Context, opts ListTasksOptions, tenant string) (result *ListTasksResult, err error) {
	ctx, span := s.startSpan(ctx, "ListTasks", tenant, attribute.String("a2a.context_id", opts.ContextID))
	defer func() { s.endSpan(span, "ListTasks", err) }()

	if opts.Status != "" && !opts.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown task state %q", ErrInvalidParams, opts.Status)
	}
	if opts.HistoryLength != nil && *opts.HistoryLength < 0 {
		return nil, fmt.Errorf("%w: history length must not be negative", ErrInvalidParams)
	}
	return s.Store.ListTasks(ctx, opts, tenant)
}

// CancelTask moves a cancelable task to canceled, publishes the final status
// and stops its running execution.
func (s *ProtocolServer) CancelTask(ctx context.Context, taskID, tenant string) (task *a2a.Task, err error) {
	ctx, span := s.startSpan(ctx, "CancelTask", tenant, attribute.String("a2a.task_id", taskID))
	defer func() { s.endSpan(span, "CancelTask", err) }()

	status := a2a.NewTaskStatus(a2a.TaskStateCanceled, nil, flextime.Now())
	var event *a2a.TaskStatusUpdateEvent
	canceled, err := s.Store.ModifyTask(ctx, taskID, tenant, func(task *a2a.Task) (*a2a.Task, error) {
		if !task.Status.State.CanCancel() {
			return nil, fmt.Errorf("%w: task %s is %s", ErrTaskNotCancelable, taskID, task.Status.State)
		}
		if task.Status.Message != nil {
			task.History = append(task.History, *task.Status.Message)
		}
		task.Status = status
		event = a2a.NewStatusUpdateEvent(task, status)
		return task, nil
	})
	if err != nil {
		return nil, err
	}
	s.publisher().publish(context.WithoutCancel(ctx), tenant, event)

	if err := s.Queue.Cancel(ctx, canceled, tenant); err != nil {
		s.Logger.Warn("Failed to cancel running execution", "error", err, "taskID", taskID, "tenant", tenant)
	}
	return canceled, nil
}

// SubscribeToTask streams the live events of a working task. For a task in
// any other state the returned channel is already closed.
func (s *ProtocolServer) SubscribeToTask(ctx context.Context, taskID, tenant string) (_ <-chan a2a.StreamResponse, err error) {
	ctx, span := s.startSpan(ctx, "SubscribeToTask", tenant, attribute.String("a2a.task_id", taskID))
	defer func() { s.endSpan(span, "SubscribeToTask", err) }()

	sub, err := s.Events.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	task, err := s.Store.GetTask(ctx, taskID, tenant)
	if err != nil {
		sub.Close()
		return nil, err
	}
	if task.Status.State != a2a.TaskStateWorking {
		sub.Close()
		ch := make(chan a2a.StreamResponse)
		close(ch)
		return ch, nil
	}
	return s.stream(ctx, sub, tenant, taskID, nil), nil
}

func (s *ProtocolServer) SetTaskPushNotificationConfig(ctx context.Context, config a2a.TaskPushNotificationConfig, tenant string) (_ *a2a.TaskPushNotificationConfig, err error) {
	ctx, span := s.startSpan(ctx, "SetTaskPushNotificationConfig", tenant, attribute.String("a2a.task_id", config.TaskID))
	defer func() { s.endSpan(span, "SetTaskPushNotificationConfig", err) }()

	if !s.pushNotificationsEnabled() {
		return nil, ErrPushNotificationNotSupported
	}
	if _, err := s.Store.GetTask(ctx, config.TaskID, tenant); err != nil {
		return nil, err
	}
	if err := s.verifyPushNotificationConfig(ctx, &config.PushNotificationConfig); err != nil {
		return nil, err
	}
	if config.PushNotificationConfig.ID == "" {
		config.PushNotificationConfig.ID = s.IDGenerator.GeneratePushNotificationConfigID()
	}
	return s.Store.SetPushNotificationConfig(ctx, config, tenant)
}

func (s *ProtocolServer) GetTaskPushNotificationConfig(ctx context.Context, taskID, configID, tenant string) (_ *a2a.TaskPushNotificationConfig, err error) {
	ctx, span := s.startSpan(ctx, "GetTaskPushNotificationConfig", tenant, attribute.String("a2a.task_id", taskID))
	defer func() { s.endSpan(span, "GetTaskPushNotificationConfig", err) }()

	if !s.pushNotificationsEnabled() {
		return nil, ErrPushNotificationNotSupported
	}
	return s.Store.GetPushNotificationConfig(ctx, taskID, configID, tenant)
}

func (s *ProtocolServer) ListTaskPushNotificationConfigs(ctx context.Context, opts ListPushNotificationConfigsOptions, tenant string) (_ *ListPushNotificationConfigsResult, err error) {
	ctx, span := s.startSpan(ctx, "ListTaskPushNotificationConfigs", tenant, attribute.String("a2a.task_id", opts.TaskID))
	defer func() { s.endSpan(span, "ListTaskPushNotificationConfigs", err) }()

	if !s.pushNotificationsEnabled() {
		return nil, ErrPushNotificationNotSupported
	}
	return s.Store.ListPushNotificationConfigs(ctx, opts, tenant)
}

func (s *ProtocolServer) DeleteTaskPushNotificationConfig(ctx context.Context, taskID, configID, tenant string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteTaskPushNotificationConfig", tenant, attribute.String("a2a.task_id", taskID))
	defer func() { s.endSpan(span, "DeleteTaskPushNotificationConfig", err) }()

	if !s.pushNotificationsEnabled() {
		return ErrPushNotificationNotSupported
	}
	return s.Store.DeletePushNotificationConfig(ctx, taskID, configID, tenant)
}

type dispatchResult struct {
	task    *a2a.Task
	message *a2a.Message
	created bool
}

// dispatch holds the branching shared by SendMessage and SendStreamingMessage.
func (s *ProtocolServer) dispatch(ctx context.Context, params a2a.MessageSendParams, tenant string) (*dispatchResult, error) {
	msg := params.Message.Clone()
	if msg.Kind == "" {
		msg.Kind = a2a.KindMessage
	}
	if msg.Role == "" {
		msg.Role = a2a.RoleUser
	}
	if msg.MessageID == "" {
		msg.MessageID = s.IDGenerator.GenerateMessageID()
	}
	if msg.Role != a2a.RoleUser {
		return nil, fmt.Errorf("%w: message role must be %q", ErrInvalidParams, a2a.RoleUser)
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	var pushConfig *a2a.PushNotificationConfig
	if params.Configuration != nil && params.Configuration.PushNotificationConfig != nil {
		if !s.pushNotificationsEnabled() {
			return nil, ErrPushNotificationNotSupported
		}
		cfg := *params.Configuration.PushNotificationConfig
		if err := s.verifyPushNotificationConfig(ctx, &cfg); err != nil {
			return nil, err
		}
		pushConfig = &cfg
	}

	var (
		out *dispatchResult
		err error
	)
	if msg.TaskID == "" {
		out, err = s.startTask(ctx, msg, params, tenant)
	} else {
		out, err = s.continueTask(ctx, msg, tenant)
	}
	if err != nil || out.task == nil {
		return out, err
	}

	if pushConfig != nil {
		if pushConfig.ID == "" {
			pushConfig.ID = s.IDGenerator.GeneratePushNotificationConfigID()
		}
		cfg := a2a.TaskPushNotificationConfig{TaskID: out.task.ID, PushNotificationConfig: *pushConfig}
		// the task and its message are already stored, so it still has to run;
		// the caller can register the config again with SetTaskPushNotificationConfig
		if _, err := s.Store.SetPushNotificationConfig(ctx, cfg, tenant); err != nil {
			s.Logger.Error("Failed to save push notification config", "error", err, "taskID", out.task.ID, "tenant", tenant)
		}
	}
	if out.task.Status.State.IsTerminal() {
		return out, nil
	}
	if err := s.Queue.Enqueue(ctx, out.task, tenant); err != nil {
		s.Logger.Error("Failed to enqueue task", "error", err, "taskID", out.task.ID, "tenant", tenant)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return out, nil
}

func (s *ProtocolServer) startTask(ctx context.Context, msg a2a.Message, params a2a.MessageSendParams, tenant string) (*dispatchResult, error) {
	ic := InvocationContext{
		Tenant:        tenant,
		TaskID:        s.IDGenerator.GenerateTaskID(),
		ContextID:     msg.ContextID,
		Configuration: params.Configuration,
		Metadata:      params.Metadata,
	}
	if ic.ContextID == "" {
		ic.ContextID = s.IDGenerator.GenerateContextID()
	}

	res, err := s.Runtime.Process(ctx, msg, ic)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAgentFailure, err)
	}
	switch {
	case res == nil || (res.Task == nil && res.Message == nil):
		return nil, fmt.Errorf("%w: runtime returned an empty response", ErrAgentFailure)
	case res.Task == nil:
		return &dispatchResult{message: res.Message}, nil
	}

	task := res.Task.Clone()
	task.Kind = a2a.KindTask
	if task.ID == "" {
		task.ID = ic.TaskID
	}
	if task.ContextID == "" {
		task.ContextID = ic.ContextID
	}
	if task.Status.State == "" || task.Status.State == a2a.TaskStateUnspecified {
		task.Status.State = a2a.TaskStateSubmitted
	}
	if task.Status.Timestamp == nil {
		task.Status.SetTimestamp(flextime.Now())
	}
	msg.TaskID = task.ID
	msg.ContextID = task.ContextID
	if !slices.ContainsFunc(task.History, func(m a2a.Message) bool { return m.MessageID == msg.MessageID }) {
		task.History = append(task.History, msg)
	}

	added, err := s.Store.AddTask(ctx, task, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to add task: %w", err)
	}
	return &dispatchResult{task: added, created: true}, nil
}

func (s *ProtocolServer) continueTask(ctx context.Context, msg a2a.Message, tenant string) (*dispatchResult, error) {
	task, err := s.Store.ModifyTask(ctx, msg.TaskID, tenant, func(task *a2a.Task) (*a2a.Task, error) {
		if task.Status.State.IsTerminal() {
			return nil, fmt.Errorf("%w: task %s is %s", ErrUnsupportedOperation, task.ID, task.Status.State)
		}
		if msg.ContextID != "" && msg.ContextID != task.ContextID {
			return nil, fmt.Errorf("%w: message context %s does not match task context %s", ErrInvalidParams, msg.ContextID, task.ContextID)
		}
		m := msg.Clone()
		m.ContextID = task.ContextID
		task.History = append(task.History, m)
		return task, nil
	})
	if err != nil {
		return nil, err
	}
	return &dispatchResult{task: task}, nil
}

func (s *ProtocolServer) verifyPushNotificationConfig(ctx context.Context, config *a2a.PushNotificationConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if !s.PushNotificationSender.VerifyURL(ctx, config.URL) {
		return fmt.Errorf("%w: %w: %s", ErrUnsupportedOperation, ErrVerificationFailed, config.URL)
	}
	return nil
}

// stream forwards the subscription's events for (tenant, taskID) until a
// final status event, ctx cancellation or the subscription ending.
func (s *ProtocolServer) stream(ctx context.Context, sub *Subscription, tenant, taskID string, first *a2a.Task) <-chan a2a.StreamResponse {
	out := make(chan a2a.StreamResponse)
	go func() {
		defer close(out)
		defer sub.Close()

		if first != nil {
			select {
			case out <- a2a.StreamResponse{Task: first}:
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if !ev.Matches(tenant, taskID) {
					continue
				}
				resp := a2a.NewStreamResponse(ev.TaskEvent)
				select {
				case out <- resp:
				case <-ctx.Done():
					return
				}
				if resp.IsFinal() {
					return
				}
			}
		}
	}()
	return out
}

func projectionFor(config *a2a.MessageSendConfiguration) a2a.ProjectionOptions {
	opts := a2a.ProjectionOptions{IncludeArtifacts: true}
	if config != nil {
		opts.HistoryLength = config.HistoryLength
	}
	return opts
}
