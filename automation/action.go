package automation

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"boardflow-api/domain"
	"boardflow-api/storage"
)

// Executor applies a rule's action to the task named by the event
// context. Failures are returned, never panicked; the dispatcher converts
// them into failed execution records.
type Executor struct {
	store    ActionStore
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
}

// NewExecutor creates an action executor.
func NewExecutor(store ActionStore, notifier Notifier, logger *log.Logger) *Executor {
	return &Executor{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// Apply performs the mutation or side effect for one action type.
func (e *Executor) Apply(ctx context.Context, a domain.ActionType, cfg domain.ActionConfig, evt *domain.EventContext) error {
	switch a {
	case domain.ActionMoveTask:
		return e.moveTask(ctx, cfg, evt)
	case domain.ActionAssignUser:
		uid := cfg.UserID
		return e.store.UpdateTaskFields(ctx, evt.TaskID, storage.TaskFieldUpdate{
			SetAssignee: true, AssigneeID: &uid,
		})
	case domain.ActionSetPriority:
		p := cfg.Priority
		return e.store.UpdateTaskFields(ctx, evt.TaskID, storage.TaskFieldUpdate{Priority: &p})
	case domain.ActionSetDueDate:
		due := e.now().UTC().AddDate(0, 0, cfg.DueInDays)
		return e.store.UpdateTaskFields(ctx, evt.TaskID, storage.TaskFieldUpdate{
			SetDueDate: true, DueDate: &due,
		})
	case domain.ActionAddLabel:
		return e.store.AddLabel(ctx, evt.TaskID, cfg.Label)
	case domain.ActionRemoveLabel:
		return e.store.RemoveLabel(ctx, evt.TaskID, cfg.Label)
	case domain.ActionSendNotification:
		return e.sendNotification(ctx, cfg, evt)
	case domain.ActionAddComment:
		return e.store.InsertComment(ctx, evt.TaskID, evt.ActorID, cfg.Comment)
	case domain.ActionCreateSubtask:
		return e.createSubtask(ctx, cfg, evt)
	}
	return fmt.Errorf("unrecognized action type %q", a)
}

// moveTask appends the task at the end of the configured target partition.
func (e *Executor) moveTask(ctx context.Context, cfg domain.ActionConfig, evt *domain.EventContext) error {
	to := domain.Partition{ColumnID: cfg.ColumnID}
	if cfg.SwimlaneID != "" {
		sl := cfg.SwimlaneID
		to.SwimlaneID = &sl
	}
	end, err := e.store.CountPartition(ctx, to)
	if err != nil {
		return err
	}
	return e.store.MovePartition(ctx, evt.TaskID, to, end)
}

// sendNotification notifies the task assignee, falling back to the
// creator when unassigned.
func (e *Executor) sendNotification(ctx context.Context, cfg domain.ActionConfig, evt *domain.EventContext) error {
	task, err := e.store.GetTask(ctx, evt.TaskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("notify: %w", storage.ErrTaskNotFound)
	}
	recipient := task.CreatedBy
	if task.AssigneeID != nil {
		recipient = *task.AssigneeID
	}
	title := cfg.Title
	if title == "" {
		title = task.Title
	}
	meta := map[string]string{"taskId": task.ID, "boardId": task.BoardID}
	return e.notifier.Notify(ctx, []string{recipient}, title, cfg.Message, meta)
}

// createSubtask creates a child task appended at the end of the parent's
// partition.
func (e *Executor) createSubtask(ctx context.Context, cfg domain.ActionConfig, evt *domain.EventContext) error {
	parent, err := e.store.GetTask(ctx, evt.TaskID)
	if err != nil {
		return err
	}
	if parent == nil {
		return fmt.Errorf("create subtask: %w", storage.ErrTaskNotFound)
	}
	parentID := parent.ID
	sub := &domain.Task{
		BoardID:    parent.BoardID,
		ColumnID:   parent.ColumnID,
		SwimlaneID: parent.SwimlaneID,
		Title:      cfg.SubtaskTitle,
		Status:     domain.StatusTodo,
		Priority:   parent.Priority,
		ParentID:   &parentID,
		CreatedBy:  evt.ActorID,
	}
	return e.store.CreateTask(ctx, sub)
}
