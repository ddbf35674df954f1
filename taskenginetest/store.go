package taskenginetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Songmu/flextime"
	"github.com/google/go-cmp/cmp"
	"github.com/mashiike/taskengine"
	"github.com/mashiike/taskengine/a2a"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// RunStoreTests runs the Store conformance suite. newStore must return an
// empty store for every call.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) taskengine.Store) {
	t.Run("AddAndGet", func(t *testing.T) { testAddAndGet(t, newStore(t)) })
	t.Run("TenantIsolation", func(t *testing.T) { testTenantIsolation(t, newStore(t)) })
	t.Run("ConcurrentAdd", func(t *testing.T) { testConcurrentAdd(t, newStore(t)) })
	t.Run("UpdateTask", func(t *testing.T) { testUpdateTask(t, newStore(t)) })
	t.Run("ModifyTask", func(t *testing.T) { testModifyTask(t, newStore(t)) })
	t.Run("ConcurrentModify", func(t *testing.T) { testConcurrentModify(t, newStore(t)) })
	t.Run("ListPagination", func(t *testing.T) { testListPagination(t, newStore(t)) })
	t.Run("ListFilters", func(t *testing.T) { testListFilters(t, newStore(t)) })
	t.Run("ListLastUpdatedAfter", func(t *testing.T) { testListLastUpdatedAfter(t, newStore(t)) })
	t.Run("ListProjection", func(t *testing.T) { testListProjection(t, newStore(t)) })
	t.Run("PushNotificationConfigs", func(t *testing.T) { testPushNotificationConfigs(t, newStore(t)) })
	t.Run("PushNotificationConfigPagination", func(t *testing.T) { testPushNotificationConfigPagination(t, newStore(t)) })
}

// NewTask returns a task in state with one user message in history.
func NewTask(id, contextID string, state a2a.TaskState) *a2a.Task {
	task := a2a.NewTask(id, contextID, state)
	task.Status.SetTimestamp(flextime.Now())
	task.History = []a2a.Message{
		a2a.NewMessage("msg-"+id, a2a.RoleUser, []a2a.Part{a2a.NewTextPart("hello " + id)},
			func(mo *a2a.MessageOptions) {
				mo.TaskID = id
				mo.ContextID = contextID
			},
		),
	}
	return &task
}

func testAddAndGet(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	task := NewTask("task-1", "ctx-1", a2a.TaskStateSubmitted)

	added, err := store.AddTask(ctx, task, "")
	require.NoError(t, err)
	if diff := cmp.Diff(task, added); diff != "" {
		t.Errorf("added task mismatch (-want +got):\n%s", diff)
	}

	got, err := store.GetTask(ctx, "task-1", "")
	require.NoError(t, err)
	if diff := cmp.Diff(task, got); diff != "" {
		t.Errorf("stored task mismatch (-want +got):\n%s", diff)
	}

	got.History = nil
	again, err := store.GetTask(ctx, "task-1", "")
	require.NoError(t, err)
	require.Len(t, again.History, 1, "mutating a returned task must not change the stored record")

	_, err = store.AddTask(ctx, task, "")
	require.ErrorIs(t, err, taskengine.ErrTaskAlreadyExists)

	_, err = store.GetTask(ctx, "missing", "")
	require.ErrorIs(t, err, taskengine.ErrTaskNotFound)
}

func testTenantIsolation(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	_, err := store.AddTask(ctx, NewTask("task-1", "ctx-1", a2a.TaskStateSubmitted), "tenant-a")
	require.NoError(t, err)

	_, err = store.GetTask(ctx, "task-1", "tenant-b")
	require.ErrorIs(t, err, taskengine.ErrTaskNotFound)

	// the same id is independent in another tenant
	_, err = store.AddTask(ctx, NewTask("task-1", "ctx-2", a2a.TaskStateWorking), "tenant-b")
	require.NoError(t, err)

	a, err := store.GetTask(ctx, "task-1", "tenant-a")
	require.NoError(t, err)
	require.Equal(t, "ctx-1", a.ContextID)
	b, err := store.GetTask(ctx, "task-1", "tenant-b")
	require.NoError(t, err)
	require.Equal(t, "ctx-2", b.ContextID)

	list, err := store.ListTasks(ctx, taskengine.ListTasksOptions{}, "tenant-c")
	require.NoError(t, err)
	require.Empty(t, list.Tasks)
	require.Equal(t, 0, list.TotalSize)

	list, err = store.ListTasks(ctx, taskengine.ListTasksOptions{Status: a2a.TaskStateWorking}, "tenant-a")
	require.NoError(t, err)
	require.Empty(t, list.Tasks)
}

func testConcurrentAdd(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	const writers = 16
	results := make([]error, writers)

	var eg errgroup.Group
	for i := range writers {
		eg.Go(func() error {
			task := NewTask("task-race", fmt.Sprintf("ctx-%d", i), a2a.TaskStateSubmitted)
			_, results[i] = store.AddTask(ctx, task, "")
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, taskengine.ErrTaskAlreadyExists):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded, "exactly one concurrent AddTask must succeed")
}

func testUpdateTask(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	_, err := store.UpdateTask(ctx, NewTask("missing", "ctx-1", a2a.TaskStateWorking), "")
	require.ErrorIs(t, err, taskengine.ErrTaskNotFound)

	_, err = store.AddTask(ctx, NewTask("task-1", "ctx-1", a2a.TaskStateSubmitted), "")
	require.NoError(t, err)

	updated := NewTask("task-1", "ctx-1", a2a.TaskStateWorking)
	updated.Artifacts = []a2a.Artifact{{ArtifactID: "a1", Parts: []a2a.Part{a2a.NewTextPart("x")}}}
	_, err = store.UpdateTask(ctx, updated, "")
	require.NoError(t, err)

	got, err := store.GetTask(ctx, "task-1", "")
	require.NoError(t, err)
	if diff := cmp.Diff(updated, got); diff != "" {
		t.Errorf("updated task mismatch (-want +got):\n%s", diff)
	}

	// an update in another tenant does not see the task
	_, err = store.UpdateTask(ctx, updated, "other")
	require.ErrorIs(t, err, taskengine.ErrTaskNotFound)
}

func testModifyTask(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	_, err := store.ModifyTask(ctx, "missing", "", func(task *a2a.Task) (*a2a.Task, error) {
		return task, nil
	})
	require.ErrorIs(t, err, taskengine.ErrTaskNotFound)

	_, err = store.AddTask(ctx, NewTask("task-1", "ctx-1", a2a.TaskStateSubmitted), "")
	require.NoError(t, err)

	errAbort := errors.New("abort")
	_, err = store.ModifyTask(ctx, "task-1", "", func(task *a2a.Task) (*a2a.Task, error) {
		task.Status.State = a2a.TaskStateFailed
		return nil, errAbort
	})
	require.ErrorIs(t, err, errAbort)

	got, err := store.GetTask(ctx, "task-1", "")
	require.NoError(t, err)
	require.Equal(t, a2a.TaskStateSubmitted, got.Status.State, "an aborted modification must not be committed")

	modified, err := store.ModifyTask(ctx, "task-1", "", func(task *a2a.Task) (*a2a.Task, error) {
		task.Status.State = a2a.TaskStateWorking
		return task, nil
	})
	require.NoError(t, err)
	require.Equal(t, a2a.TaskStateWorking, modified.Status.State)

	got, err = store.GetTask(ctx, "task-1", "")
	require.NoError(t, err)
	require.Equal(t, a2a.TaskStateWorking, got.Status.State)
}

func testConcurrentModify(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	_, err := store.AddTask(ctx, NewTask("task-1", "ctx-1", a2a.TaskStateWorking), "")
	require.NoError(t, err)

	const writers = 20
	var eg errgroup.Group
	for i := range writers {
		eg.Go(func() error {
			for {
				_, err := store.ModifyTask(ctx, "task-1", "", func(task *a2a.Task) (*a2a.Task, error) {
					task.History = append(task.History, a2a.NewMessage(fmt.Sprintf("w-%d", i), a2a.RoleUser,
						[]a2a.Part{a2a.NewTextPart("append")}))
					return task, nil
				})
				if errors.Is(err, taskengine.ErrContention) {
					continue
				}
				return err
			}
		})
	}
	require.NoError(t, eg.Wait())

	got, err := store.GetTask(ctx, "task-1", "")
	require.NoError(t, err)
	require.Len(t, got.History, writers+1, "no concurrent modification may be lost")
}

func addTasksAt(t *testing.T, store taskengine.Store, tenant string, base time.Time, tasks ...*a2a.Task) {
	t.Helper()
	for i, task := range tasks {
		restore := flextime.Fix(base.Add(time.Duration(i) * time.Second))
		_, err := store.AddTask(context.Background(), task, tenant)
		restore()
		require.NoError(t, err)
	}
}

func testListPagination(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	tasks := make([]*a2a.Task, 25)
	for i := range tasks {
		tasks[i] = NewTask(fmt.Sprintf("task-%02d", i), "ctx-1", a2a.TaskStateSubmitted)
	}
	addTasksAt(t, store, "", time.Unix(1700000000, 0), tasks...)

	var (
		seen  []string
		sizes []int
		token string
	)
	for range 10 {
		page, err := store.ListTasks(ctx, taskengine.ListTasksOptions{PageSize: 10, PageToken: token}, "")
		require.NoError(t, err)
		require.Equal(t, 25, page.TotalSize)
		require.Equal(t, 10, page.PageSize)
		sizes = append(sizes, len(page.Tasks))
		for _, task := range page.Tasks {
			seen = append(seen, task.ID)
		}
		token = page.NextPageToken
		if token == "" {
			break
		}
	}
	require.Equal(t, []int{10, 10, 5}, sizes)

	want := make([]string, 0, 25)
	for i := 24; i >= 0; i-- {
		want = append(want, fmt.Sprintf("task-%02d", i))
	}
	require.Equal(t, want, seen, "pages must be most recently updated first without gaps or duplicates")

	// malformed tokens restart from the first page
	page, err := store.ListTasks(ctx, taskengine.ListTasksOptions{PageSize: 3, PageToken: "%%%not-a-token"}, "")
	require.NoError(t, err)
	require.Len(t, page.Tasks, 3)
	require.Equal(t, "task-24", page.Tasks[0].ID)

	page, err = store.ListTasks(ctx, taskengine.ListTasksOptions{PageSize: 1000}, "")
	require.NoError(t, err)
	require.Equal(t, taskengine.MaxPageSize, page.PageSize)
	require.Len(t, page.Tasks, 25)
	require.Empty(t, page.NextPageToken)
}

func testListFilters(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	addTasksAt(t, store, "", time.Unix(1700000000, 0),
		NewTask("a", "ctx-1", a2a.TaskStateWorking),
		NewTask("b", "ctx-1", a2a.TaskStateCompleted),
		NewTask("c", "ctx-2", a2a.TaskStateWorking),
		NewTask("d", "ctx-2", a2a.TaskStateSubmitted),
	)

	ids := func(opts taskengine.ListTasksOptions) []string {
		t.Helper()
		page, err := store.ListTasks(ctx, opts, "")
		require.NoError(t, err)
		require.Equal(t, len(page.Tasks), page.TotalSize)
		out := make([]string, 0, len(page.Tasks))
		for _, task := range page.Tasks {
			out = append(out, task.ID)
		}
		return out
	}

	require.Equal(t, []string{"c", "a"}, ids(taskengine.ListTasksOptions{Status: a2a.TaskStateWorking}))
	require.Equal(t, []string{"b", "a"}, ids(taskengine.ListTasksOptions{ContextID: "ctx-1"}))
	require.Equal(t, []string{"c"}, ids(taskengine.ListTasksOptions{ContextID: "ctx-2", Status: a2a.TaskStateWorking}))
	require.Empty(t, ids(taskengine.ListTasksOptions{ContextID: "ctx-3"}))

	// a state change moves the task between the status filters
	restore := flextime.Fix(time.Unix(1700000100, 0))
	_, err := store.ModifyTask(ctx, "a", "", func(task *a2a.Task) (*a2a.Task, error) {
		task.Status.State = a2a.TaskStateCompleted
		return task, nil
	})
	restore()
	require.NoError(t, err)

	require.Equal(t, []string{"c"}, ids(taskengine.ListTasksOptions{Status: a2a.TaskStateWorking}))
	require.Equal(t, []string{"a", "b"}, ids(taskengine.ListTasksOptions{Status: a2a.TaskStateCompleted}))
	require.Equal(t, []string{"a", "b"}, ids(taskengine.ListTasksOptions{ContextID: "ctx-1", Status: a2a.TaskStateCompleted}))
	require.Empty(t, ids(taskengine.ListTasksOptions{ContextID: "ctx-1", Status: a2a.TaskStateWorking}))
	require.Equal(t, []string{"a", "d", "c", "b"}, ids(taskengine.ListTasksOptions{}))
}

func testListLastUpdatedAfter(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	addTasksAt(t, store, "", time.Unix(1000, 0),
		NewTask("old", "ctx-1", a2a.TaskStateWorking),
		NewTask("new", "ctx-1", a2a.TaskStateWorking),
	)

	page, err := store.ListTasks(ctx, taskengine.ListTasksOptions{LastUpdatedAfter: 1000}, "")
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	require.Equal(t, "new", page.Tasks[0].ID)
	require.Equal(t, 1, page.TotalSize)

	page, err = store.ListTasks(ctx, taskengine.ListTasksOptions{LastUpdatedAfter: 999}, "")
	require.NoError(t, err)
	require.Len(t, page.Tasks, 2)

	page, err = store.ListTasks(ctx, taskengine.ListTasksOptions{LastUpdatedAfter: 1001, Status: a2a.TaskStateWorking}, "")
	require.NoError(t, err)
	require.Empty(t, page.Tasks)
}

func testListProjection(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	task := NewTask("task-1", "ctx-1", a2a.TaskStateWorking)
	task.History = append(task.History,
		a2a.NewMessage("m2", a2a.RoleAgent, []a2a.Part{a2a.NewTextPart("two")}),
		a2a.NewMessage("m3", a2a.RoleUser, []a2a.Part{a2a.NewTextPart("three")}),
	)
	task.Artifacts = []a2a.Artifact{{ArtifactID: "a1", Parts: []a2a.Part{a2a.NewTextPart("x")}}}
	_, err := store.AddTask(ctx, task, "")
	require.NoError(t, err)

	one := 1
	page, err := store.ListTasks(ctx, taskengine.ListTasksOptions{HistoryLength: &one}, "")
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	require.Len(t, page.Tasks[0].History, 1)
	require.Equal(t, "m3", page.Tasks[0].History[0].MessageID)
	require.Empty(t, page.Tasks[0].Artifacts)

	page, err = store.ListTasks(ctx, taskengine.ListTasksOptions{IncludeArtifacts: true}, "")
	require.NoError(t, err)
	require.Len(t, page.Tasks[0].History, 3)
	require.Len(t, page.Tasks[0].Artifacts, 1)

	got, err := store.GetTask(ctx, "task-1", "")
	require.NoError(t, err)
	if diff := cmp.Diff(task, got); diff != "" {
		t.Errorf("projection modified the stored task (-want +got):\n%s", diff)
	}
}

func testPushNotificationConfigs(t *testing.T, store taskengine.Store) {
	ctx := context.Background()

	saved, err := store.SetPushNotificationConfig(ctx, a2a.TaskPushNotificationConfig{
		TaskID:                 "task-1",
		PushNotificationConfig: a2a.PushNotificationConfig{URL: "https://example.com/default"},
	}, "tenant-a")
	require.NoError(t, err)
	require.Equal(t, "task-1", saved.PushNotificationConfig.ID, "an empty config id defaults to the task id")

	_, err = store.SetPushNotificationConfig(ctx, a2a.TaskPushNotificationConfig{
		TaskID: "task-1",
		PushNotificationConfig: a2a.PushNotificationConfig{
			ID:    "hook",
			URL:   "https://example.com/hook",
			Token: "secret",
		},
	}, "tenant-a")
	require.NoError(t, err)
	_, err = store.SetPushNotificationConfig(ctx, a2a.TaskPushNotificationConfig{
		TaskID:                 "task-2",
		PushNotificationConfig: a2a.PushNotificationConfig{ID: "hook", URL: "https://example.com/other"},
	}, "tenant-a")
	require.NoError(t, err)

	got, err := store.GetPushNotificationConfig(ctx, "task-1", "hook", "tenant-a")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/hook", got.PushNotificationConfig.URL)
	require.Equal(t, "secret", got.PushNotificationConfig.Token)

	_, err = store.GetPushNotificationConfig(ctx, "task-1", "hook", "tenant-b")
	require.ErrorIs(t, err, taskengine.ErrPushNotificationConfigNotFound)

	list, err := store.ListPushNotificationConfigs(ctx, taskengine.ListPushNotificationConfigsOptions{TaskID: "task-1"}, "tenant-a")
	require.NoError(t, err)
	require.Len(t, list.Configs, 2)
	require.Equal(t, 2, list.TotalSize)
	for _, config := range list.Configs {
		require.Equal(t, "task-1", config.TaskID)
	}

	all, err := store.ListPushNotificationConfigs(ctx, taskengine.ListPushNotificationConfigsOptions{}, "tenant-a")
	require.NoError(t, err)
	require.Len(t, all.Configs, 3)

	// updating a config replaces it
	_, err = store.SetPushNotificationConfig(ctx, a2a.TaskPushNotificationConfig{
		TaskID:                 "task-1",
		PushNotificationConfig: a2a.PushNotificationConfig{ID: "hook", URL: "https://example.com/hook2"},
	}, "tenant-a")
	require.NoError(t, err)
	got, err = store.GetPushNotificationConfig(ctx, "task-1", "hook", "tenant-a")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/hook2", got.PushNotificationConfig.URL)
	list, err = store.ListPushNotificationConfigs(ctx, taskengine.ListPushNotificationConfigsOptions{TaskID: "task-1"}, "tenant-a")
	require.NoError(t, err)
	require.Len(t, list.Configs, 2)

	// deletes are tenant scoped
	err = store.DeletePushNotificationConfig(ctx, "task-1", "hook", "tenant-b")
	require.ErrorIs(t, err, taskengine.ErrPushNotificationConfigNotFound)

	require.NoError(t, store.DeletePushNotificationConfig(ctx, "task-1", "hook", "tenant-a"))
	_, err = store.GetPushNotificationConfig(ctx, "task-1", "hook", "tenant-a")
	require.ErrorIs(t, err, taskengine.ErrPushNotificationConfigNotFound)
	err = store.DeletePushNotificationConfig(ctx, "task-1", "hook", "tenant-a")
	require.ErrorIs(t, err, taskengine.ErrPushNotificationConfigNotFound)

	list, err = store.ListPushNotificationConfigs(ctx, taskengine.ListPushNotificationConfigsOptions{TaskID: "task-1"}, "tenant-a")
	require.NoError(t, err)
	require.Len(t, list.Configs, 1)
	require.Equal(t, "task-1", list.Configs[0].PushNotificationConfig.ID)

	other, err := store.GetPushNotificationConfig(ctx, "task-2", "hook", "tenant-a")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/other", other.PushNotificationConfig.URL)
}

func testPushNotificationConfigPagination(t *testing.T, store taskengine.Store) {
	ctx := context.Background()
	for i := range 7 {
		restore := flextime.Fix(time.Unix(1700000000+int64(i), 0))
		_, err := store.SetPushNotificationConfig(ctx, a2a.TaskPushNotificationConfig{
			TaskID:                 "task-1",
			PushNotificationConfig: a2a.PushNotificationConfig{ID: fmt.Sprintf("cfg-%d", i), URL: "https://example.com/hook"},
		}, "")
		restore()
		require.NoError(t, err)
	}

	var seen []string
	token := ""
	pages := 0
	for {
		page, err := store.ListPushNotificationConfigs(ctx, taskengine.ListPushNotificationConfigsOptions{
			TaskID: "task-1", PageSize: 3, PageToken: token,
		}, "")
		require.NoError(t, err)
		require.Equal(t, 7, page.TotalSize)
		pages++
		for _, config := range page.Configs {
			seen = append(seen, config.PushNotificationConfig.ID)
		}
		token = page.NextPageToken
		if token == "" {
			break
		}
		require.Less(t, pages, 5, "pagination does not terminate")
	}
	require.Equal(t, 3, pages)
	require.Equal(t, []string{"cfg-6", "cfg-5", "cfg-4", "cfg-3", "cfg-2", "cfg-1", "cfg-0"}, seen)
}
