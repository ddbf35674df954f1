package taskengine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mashiike/taskengine"
	"github.com/mashiike/taskengine/a2a"
	"github.com/mashiike/taskengine/taskenginetest"
)

const waitTimeout = 2 * time.Second

func userMessage(id, text string, optFns ...func(*a2a.MessageOptions)) a2a.Message {
	return a2a.NewMessage(id, a2a.RoleUser, []a2a.Part{a2a.NewTextPart(text)}, optFns...)
}

func continuing(task *a2a.Task) func(*a2a.MessageOptions) {
	return func(mo *a2a.MessageOptions) {
		mo.TaskID = task.ID
		mo.ContextID = task.ContextID
	}
}

func TestProtocolServer_SendMessage(t *testing.T) {
	runtime := taskenginetest.NewRuntime(
		taskenginetest.Status(a2a.TaskStateWorking, ""),
		taskenginetest.Status(a2a.TaskStateCompleted, "done"),
	)
	srv := taskenginetest.NewServer(t, runtime)
	ctx := context.Background()

	result, err := srv.SendMessage(ctx, a2a.MessageSendParams{Message: userMessage("m1", "hello")}, "tenant-a")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if result.Message != nil || result.Task == nil {
		t.Fatalf("Expected a task result, got %+v", result)
	}
	if result.Task.Status.State != a2a.TaskStateSubmitted {
		t.Errorf("Expected submitted, got %s", result.Task.Status.State)
	}
	if result.Task.ContextID == "" {
		t.Error("Expected a generated context id")
	}
	if len(result.Task.History) != 1 || result.Task.History[0].MessageID != "m1" {
		t.Errorf("Expected the message in history, got %+v", result.Task.History)
	}

	done := srv.WaitForState(t, result.Task.ID, "tenant-a", waitTimeout, a2a.TaskStateCompleted)
	if done.Status.Message == nil || done.Status.Message.Parts[0].Text != "done" {
		t.Errorf("Expected the completion message, got %+v", done.Status.Message)
	}
	if len(runtime.Executions()) != 1 {
		t.Errorf("Expected 1 execution, got %d", len(runtime.Executions()))
	}

	if _, err := srv.GetTask(ctx, result.Task.ID, nil, "tenant-b"); !errors.Is(err, taskengine.ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound from another tenant, got %v", err)
	}
}

func TestProtocolServer_SendMessage_DirectReply(t *testing.T) {
	runtime := taskenginetest.NewRuntime()
	reply := a2a.NewMessage("r1", a2a.RoleAgent, []a2a.Part{a2a.NewTextPart("hi")})
	runtime.Reply = &reply
	srv := taskenginetest.NewServer(t, runtime)
	ctx := context.Background()

	result, err := srv.SendMessage(ctx, a2a.MessageSendParams{Message: userMessage("m1", "hello")}, "")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if result.Task != nil || result.Message == nil {
		t.Fatalf("Expected a message result, got %+v", result)
	}
	if result.Message.MessageID != "r1" {
		t.Errorf("Expected reply r1, got %s", result.Message.MessageID)
	}

	list, err := srv.ListTasks(ctx, taskengine.ListTasksOptions{}, "")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if list.TotalSize != 0 {
		t.Errorf("Expected no task to be stored, got %d", list.TotalSize)
	}
}

func TestProtocolServer_SendMessage_Validation(t *testing.T) {
	srv := taskenginetest.NewServer(t, taskenginetest.NewRuntime())
	ctx := context.Background()

	agentMsg := a2a.NewMessage("m1", a2a.RoleAgent, []a2a.Part{a2a.NewTextPart("hello")})
	if _, err := srv.SendMessage(ctx, a2a.MessageSendParams{Message: agentMsg}, ""); !errors.Is(err, taskengine.ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams for an agent message, got %v", err)
	}

	noParts := a2a.NewMessage("m2", a2a.RoleUser, nil)
	if _, err := srv.SendMessage(ctx, a2a.MessageSendParams{Message: noParts}, ""); !errors.Is(err, taskengine.ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams for a message without parts, got %v", err)
	}

	unknown := userMessage("m3", "hello", func(mo *a2a.MessageOptions) { mo.TaskID = "missing" })
	if _, err := srv.SendMessage(ctx, a2a.MessageSendParams{Message: unknown}, ""); !errors.Is(err, taskengine.ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}

	withPush := a2a.MessageSendParams{
		Message: userMessage("m4", "hello"),
		Configuration: &a2a.MessageSendConfiguration{
			PushNotificationConfig: &a2a.PushNotificationConfig{URL: "https://example.com/hook"},
		},
	}
	if _, err := srv.SendMessage(ctx, withPush, ""); !errors.Is(err, taskengine.ErrPushNotificationNotSupported) {
		t.Errorf("Expected ErrPushNotificationNotSupported, got %v", err)
	}
}

func TestProtocolServer_SendMessage_ContinuesInputRequired(t *testing.T) {
	askOnce := func(_ context.Context, task *a2a.Task) (a2a.TaskEvent, error) {
		users := 0
		for _, m := range task.History {
			if m.Role == a2a.RoleUser {
				users++
			}
		}
		state, text := a2a.TaskStateInputRequired, "which city?"
		if users > 1 {
			state, text = a2a.TaskStateCompleted, "sunny"
		}
		return taskenginetest.Status(state, text)(context.Background(), task)
	}
	runtime := taskenginetest.NewRuntime(askOnce)
	srv := taskenginetest.NewServer(t, runtime)
	ctx := context.Background()

	first, err := srv.SendMessage(ctx, a2a.MessageSendParams{Message: userMessage("m1", "weather?")}, "")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	waiting := srv.WaitForState(t, first.Task.ID, "", waitTimeout, a2a.TaskStateInputRequired)

	second, err := srv.SendMessage(ctx, a2a.MessageSendParams{Message: userMessage("m2", "Tokyo", continuing(waiting))}, "")
	if err != nil {
		t.Fatalf("SendMessage continuation failed: %v", err)
	}
	if second.Task.ID != first.Task.ID {
		t.Errorf("Expected the same task, got %s", second.Task.ID)
	}
	last := second.Task.History[len(second.Task.History)-1]
	if last.MessageID != "m2" {
		t.Errorf("Expected m2 appended to history, got %s", last.MessageID)
	}

	done := srv.WaitForState(t, first.Task.ID, "", waitTimeout, a2a.TaskStateCompleted)
	if done.Status.Message == nil || done.Status.Message.Parts[0].Text != "sunny" {
		t.Errorf("Expected the final answer, got %+v", done.Status.Message)
	}
	if len(runtime.Executions()) != 2 {
		t.Errorf("Expected 2 executions, got %d", len(runtime.Executions()))
	}

	_, err = srv.SendMessage(ctx, a2a.MessageSendParams{Message: userMessage("m3", "again", continuing(done))}, "")
	if !errors.Is(err, taskengine.ErrUnsupportedOperation) {
		t.Errorf("Expected ErrUnsupportedOperation for a completed task, got %v", err)
	}
}

func TestProtocolServer_SendMessage_ContextMismatch(t *testing.T) {
	srv := taskenginetest.NewServer(t, taskenginetest.NewRuntime())
	ctx := context.Background()
	task := taskenginetest.NewTask("task-1", "ctx-1", a2a.TaskStateInputRequired)
	if _, err := srv.Store.AddTask(ctx, task, ""); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	msg := userMessage("m1", "hello", func(mo *a2a.MessageOptions) {
		mo.TaskID = "task-1"
		mo.ContextID = "ctx-other"
	})
	if _, err := srv.SendMessage(ctx, a2a.MessageSendParams{Message: msg}, ""); !errors.Is(err, taskengine.ErrInvalidParams) {
		t.Fatalf("Expected ErrInvalidParams, got %v", err)
	}
	stored, err := srv.Store.GetTask(ctx, "task-1", "")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(stored.History) != len(task.History) {
		t.Errorf("Expected history to be untouched, got %d entries", len(stored.History))
	}
}

func TestProtocolServer_GetTask_HistoryLength(t *testing.T) {
	srv := taskenginetest.NewServer(t, taskenginetest.NewRuntime())
	ctx := context.Background()
	task := taskenginetest.NewTask("task-1", "ctx-1", a2a.TaskStateCompleted)
	task.History = []a2a.Message{userMessage("m1", "a"), userMessage("m2", "b"), userMessage("m3", "c")}
	if _, err := srv.Store.AddTask(ctx, task, ""); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	one := 1
	got, err := srv.GetTask(ctx, "task-1", &one, "")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(got.History) != 1 || got.History[0].MessageID != "m3" {
		t.Errorf("Expected only the last message, got %+v", got.History)
	}

	all, err := srv.GetTask(ctx, "task-1", nil, "")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(all.History) != 3 {
		t.Errorf("Expected full history, got %d entries", len(all.History))
	}
}

func TestProtocolServer_ListTasks(t *testing.T) {
	srv := taskenginetest.NewServer(t, taskenginetest.NewRuntime())
	ctx := context.Background()
	for _, task := range []*a2a.Task{
		taskenginetest.NewTask("task-1", "ctx-1", a2a.TaskStateCompleted),
		taskenginetest.NewTask("task-2", "ctx-1", a2a.TaskStateWorking),
		taskenginetest.NewTask("task-3", "ctx-2", a2a.TaskStateCompleted),
	} {
		if _, err := srv.Store.AddTask(ctx, task, ""); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
	}

	result, err := srv.ListTasks(ctx, taskengine.ListTasksOptions{ContextID: "ctx-1", Status: a2a.TaskStateCompleted}, "")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if result.TotalSize != 1 || len(result.Tasks) != 1 || result.Tasks[0].ID != "task-1" {
		t.Errorf("Expected only task-1, got %+v", result)
	}

	if _, err := srv.ListTasks(ctx, taskengine.ListTasksOptions{Status: "sleeping"}, ""); !errors.Is(err, taskengine.ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams for an unknown state, got %v", err)
	}
	negative := -1
	if _, err := srv.ListTasks(ctx, taskengine.ListTasksOptions{HistoryLength: &negative}, ""); !errors.Is(err, taskengine.ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams for a negative history length, got %v", err)
	}
}

func TestProtocolServer_CancelTask(t *testing.T) {
	started := make(chan struct{})
	runtime := taskenginetest.NewRuntime(
		taskenginetest.Status(a2a.TaskStateWorking, ""),
		taskenginetest.Notify(started),
		taskenginetest.Block(),
	)
	srv := taskenginetest.NewServer(t, runtime)
	ctx := context.Background()

	result, err := srv.SendMessage(ctx, a2a.MessageSendParams{Message: userMessage("m1", "work")}, "")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("execution did not start")
	}

	live, err := srv.SubscribeToTask(ctx, result.Task.ID, "")
	if err != nil {
		t.Fatalf("SubscribeToTask failed: %v", err)
	}

	canceled, err := srv.CancelTask(ctx, result.Task.ID, "")
	if err != nil {
		t.Fatalf("CancelTask failed: %v", err)
	}
	if canceled.Status.State != a2a.TaskStateCanceled {
		t.Errorf("Expected canceled, got %s", canceled.Status.State)
	}

	items := taskenginetest.Collect(t, live, waitTimeout)
	if len(items) == 0 || !items[len(items)-1].IsFinal() {
		t.Fatalf("Expected the stream to end with a final event, got %+v", items)
	}
	if got := items[len(items)-1].Status.Status.State; got != a2a.TaskStateCanceled {
		t.Errorf("Expected final state canceled, got %s", got)
	}

	// the interrupted execution must not overwrite the cancellation
	time.Sleep(50 * time.Millisecond)
	stored := srv.WaitForState(t, result.Task.ID, "", waitTimeout, a2a.TaskStateCanceled)
	if stored.Status.State != a2a.TaskStateCanceled {
		t.Errorf("Expected canceled to stick, got %s", stored.Status.State)
	}

	if _, err := srv.CancelTask(ctx, result.Task.ID, ""); !errors.Is(err, taskengine.ErrTaskNotCancelable) {
		t.Errorf("Expected ErrTaskNotCancelable, got %v", err)
	}
	if _, err := srv.CancelTask(ctx, "missing", ""); !errors.Is(err, taskengine.ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestProtocolServer_CancelTaskByState(t *testing.T) {
	cases := []struct {
		state      a2a.TaskState
		cancelable bool
	}{
		{a2a.TaskStateUnspecified, true},
		{a2a.TaskStateSubmitted, true},
		{a2a.TaskStateWorking, true},
		{a2a.TaskStateInputRequired, true},
		{a2a.TaskStateAuthRequired, true},
		{a2a.TaskStateCompleted, false},
		{a2a.TaskStateCanceled, false},
		{a2a.TaskStateFailed, false},
		{a2a.TaskStateRejected, false},
	}
	for _, tc := range cases {
		t.Run(tc.state.String(), func(t *testing.T) {
			srv := taskenginetest.NewServer(t, taskenginetest.NewRuntime())
			ctx := context.Background()
			if _, err := srv.Store.AddTask(ctx, taskenginetest.NewTask("task-1", "ctx-1", tc.state), ""); err != nil {
				t.Fatalf("AddTask failed: %v", err)
			}

			canceled, err := srv.CancelTask(ctx, "task-1", "")
			if !tc.cancelable {
				if !errors.Is(err, taskengine.ErrTaskNotCancelable) {
					t.Fatalf("Expected ErrTaskNotCancelable, got %v", err)
				}
				stored, err := srv.GetTask(ctx, "task-1", nil, "")
				if err != nil {
					t.Fatalf("GetTask failed: %v", err)
				}
				if stored.Status.State != tc.state {
					t.Errorf("Expected state %s to be kept, got %s", tc.state, stored.Status.State)
				}
				return
			}
			if err != nil {
				t.Fatalf("CancelTask failed: %v", err)
			}
			if canceled.Status.State != a2a.TaskStateCanceled {
				t.Errorf("Expected canceled, got %s", canceled.Status.State)
			}
		})
	}
}

func TestProtocolServer_SendStreamingMessage(t *testing.T) {
	artifact := a2a.Artifact{ArtifactID: "report", Parts: []a2a.Part{a2a.NewTextPart("42")}}
	runtime := taskenginetest.NewRuntime(
		taskenginetest.Status(a2a.TaskStateWorking, ""),
		taskenginetest.Artifact(artifact, false, true),
		taskenginetest.Status(a2a.TaskStateCompleted, "done"),
	)
	srv := taskenginetest.NewServer(t, runtime)
	ctx := context.Background()

	ch, err := srv.SendStreamingMessage(ctx, a2a.MessageSendParams{Message: userMessage("m1", "compute")}, "")
	if err != nil {
		t.Fatalf("SendStreamingMessage failed: %v", err)
	}
	items := taskenginetest.Collect(t, ch, waitTimeout)
	if len(items) < 3 {
		t.Fatalf("Expected at least 3 items, got %d", len(items))
	}
	if items[0].Task == nil || items[0].Task.Status.State != a2a.TaskStateSubmitted {
		t.Errorf("Expected the submitted task first, got %+v", items[0])
	}

	var sawArtifact bool
	for _, item := range items[1:] {
		if item.Task != nil || item.Message != nil {
			t.Errorf("Expected only events after the snapshot, got %+v", item)
		}
		if item.Event() != nil && item.Event().GetTaskID() != items[0].Task.ID {
			t.Errorf("Expected events of %s only, got %s", items[0].Task.ID, item.Event().GetTaskID())
		}
		if item.Artifact != nil && item.Artifact.Artifact.ArtifactID == "report" {
			sawArtifact = true
		}
	}
	if !sawArtifact {
		t.Error("Expected the artifact event")
	}
	last := items[len(items)-1]
	if !last.IsFinal() || last.Status.Status.State != a2a.TaskStateCompleted {
		t.Errorf("Expected a final completed event last, got %+v", last)
	}
}

func TestProtocolServer_SendStreamingMessage_DirectReply(t *testing.T) {
	runtime := taskenginetest.NewRuntime()
	reply := a2a.NewMessage("r1", a2a.RoleAgent, []a2a.Part{a2a.NewTextPart("hi")})
	runtime.Reply = &reply
	srv := taskenginetest.NewServer(t, runtime)

	ch, err := srv.SendStreamingMessage(context.Background(), a2a.MessageSendParams{Message: userMessage("m1", "hello")}, "")
	if err != nil {
		t.Fatalf("SendStreamingMessage failed: %v", err)
	}
	items := taskenginetest.Collect(t, ch, waitTimeout)
	if len(items) != 1 || items[0].Message == nil || items[0].Message.MessageID != "r1" {
		t.Errorf("Expected the reply as the only item, got %+v", items)
	}
}

func TestProtocolServer_SubscribeToTask(t *testing.T) {
	srv := taskenginetest.NewServer(t, taskenginetest.NewRuntime())
	ctx := context.Background()
	if _, err := srv.Store.AddTask(ctx, taskenginetest.NewTask("task-1", "ctx-1", a2a.TaskStateCompleted), ""); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	ch, err := srv.SubscribeToTask(ctx, "task-1", "")
	if err != nil {
		t.Fatalf("SubscribeToTask failed: %v", err)
	}
	if items := taskenginetest.Collect(t, ch, waitTimeout); len(items) != 0 {
		t.Errorf("Expected a closed stream for a completed task, got %+v", items)
	}

	if _, err := srv.SubscribeToTask(ctx, "missing", ""); !errors.Is(err, taskengine.ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestProtocolServer_PushNotificationsDisabled(t *testing.T) {
	srv := taskenginetest.NewServer(t, taskenginetest.NewRuntime())
	ctx := context.Background()

	config := a2a.TaskPushNotificationConfig{
		TaskID:                 "task-1",
		PushNotificationConfig: a2a.PushNotificationConfig{URL: "https://example.com/hook"},
	}
	if _, err := srv.SetTaskPushNotificationConfig(ctx, config, ""); !errors.Is(err, taskengine.ErrPushNotificationNotSupported) {
		t.Errorf("Set: expected ErrPushNotificationNotSupported, got %v", err)
	}
	if _, err := srv.GetTaskPushNotificationConfig(ctx, "task-1", "cfg", ""); !errors.Is(err, taskengine.ErrPushNotificationNotSupported) {
		t.Errorf("Get: expected ErrPushNotificationNotSupported, got %v", err)
	}
	if _, err := srv.ListTaskPushNotificationConfigs(ctx, taskengine.ListPushNotificationConfigsOptions{TaskID: "task-1"}, ""); !errors.Is(err, taskengine.ErrPushNotificationNotSupported) {
		t.Errorf("List: expected ErrPushNotificationNotSupported, got %v", err)
	}
	if err := srv.DeleteTaskPushNotificationConfig(ctx, "task-1", "cfg", ""); !errors.Is(err, taskengine.ErrPushNotificationNotSupported) {
		t.Errorf("Delete: expected ErrPushNotificationNotSupported, got %v", err)
	}
}
