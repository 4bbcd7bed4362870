package automation

import (
	"context"
	"io"
	"testing"

	log "github.com/sirupsen/logrus"

	"boardflow-api/domain"
	"boardflow-api/storage"
)

type notifyCall struct {
	UserIDs  []string
	Title    string
	Message  string
	Metadata map[string]string
}

type captureNotifier struct {
	calls []notifyCall
	err   error
}

func (n *captureNotifier) Notify(_ context.Context, userIDs []string, title, message string, metadata map[string]string) error {
	if n.err != nil {
		return n.err
	}
	n.calls = append(n.calls, notifyCall{UserIDs: userIDs, Title: title, Message: message, Metadata: metadata})
	return nil
}

type panicNotifier struct{}

func (panicNotifier) Notify(context.Context, []string, string, string, map[string]string) error {
	panic("notifier exploded")
}

type testEnv struct {
	store      *storage.Storage
	notifier   *captureNotifier
	executor   *Executor
	dispatcher *Dispatcher
	logger     *log.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := log.New()
	logger.SetOutput(io.Discard)

	notifier := &captureNotifier{}
	executor := NewExecutor(store, notifier, logger)
	dispatcher := NewDispatcher(store, store, executor, logger)
	return &testEnv{store: store, notifier: notifier, executor: executor, dispatcher: dispatcher, logger: logger}
}

func (e *testEnv) seedBoard(t *testing.T, boardID string, columns ...domain.Column) {
	t.Helper()
	ctx := context.Background()
	if err := e.store.CreateBoard(ctx, boardID, "board "+boardID); err != nil {
		t.Fatalf("create board: %v", err)
	}
	for _, c := range columns {
		c.BoardID = boardID
		if c.Name == "" {
			c.Name = c.ID
		}
		if err := e.store.CreateColumn(ctx, c); err != nil {
			t.Fatalf("create column %s: %v", c.ID, err)
		}
	}
}

func (e *testEnv) seedTask(t *testing.T, task *domain.Task) *domain.Task {
	t.Helper()
	if task.Title == "" {
		task.Title = "task " + task.ID
	}
	if task.CreatedBy == "" {
		task.CreatedBy = "u1"
	}
	if err := e.store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task %s: %v", task.ID, err)
	}
	return task
}

func (e *testEnv) mustGetTask(t *testing.T, id string) *domain.Task {
	t.Helper()
	task, err := e.store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("get task %s: %v", id, err)
	}
	if task == nil {
		t.Fatalf("task %s not found", id)
	}
	return task
}

func (e *testEnv) seedRule(t *testing.T, r *domain.AutomationRule) *domain.AutomationRule {
	t.Helper()
	if err := e.store.CreateRule(context.Background(), r); err != nil {
		t.Fatalf("create rule %s: %v", r.Name, err)
	}
	return r
}

func (e *testEnv) executions(t *testing.T, boardID string) []domain.Execution {
	t.Helper()
	execs, err := e.store.ListExecutions(context.Background(), boardID, 0)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	return execs
}

func eventFor(task *domain.Task, previous *domain.Snapshot) *domain.EventContext {
	current := task.Snapshot()
	return &domain.EventContext{
		TaskID:     task.ID,
		ActorID:    "u1",
		BoardID:    task.BoardID,
		ColumnID:   task.ColumnID,
		SwimlaneID: task.SwimlaneID,
		Previous:   previous,
		Current:    &current,
	}
}
