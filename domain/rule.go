package domain

import (
	"errors"
	"fmt"
	"time"
)

// TriggerType identifies the task-lifecycle or time-based condition that
// activates a rule.
type TriggerType string

const (
	TriggerTaskCreated        TriggerType = "TASK_CREATED"
	TriggerTaskMoved          TriggerType = "TASK_MOVED"
	TriggerTaskUpdated        TriggerType = "TASK_UPDATED"
	TriggerTaskCompleted      TriggerType = "TASK_COMPLETED"
	TriggerAssignedToUser     TriggerType = "ASSIGNED_TO_USER"
	TriggerPriorityChanged    TriggerType = "PRIORITY_CHANGED"
	TriggerDueDateApproaching TriggerType = "DUE_DATE_APPROACHING"
	TriggerTaskOverdue        TriggerType = "TASK_OVERDUE"
	TriggerTimeInColumn       TriggerType = "TIME_IN_COLUMN"
	TriggerWIPLimitExceeded   TriggerType = "WIP_LIMIT_EXCEEDED"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerTaskCreated, TriggerTaskMoved, TriggerTaskUpdated, TriggerTaskCompleted,
		TriggerAssignedToUser, TriggerPriorityChanged, TriggerDueDateApproaching,
		TriggerTaskOverdue, TriggerTimeInColumn, TriggerWIPLimitExceeded:
		return true
	}
	return false
}

// ActionType identifies the mutation or side effect a rule performs.
type ActionType string

const (
	ActionMoveTask         ActionType = "MOVE_TASK"
	ActionAssignUser       ActionType = "ASSIGN_USER"
	ActionSetPriority      ActionType = "SET_PRIORITY"
	ActionSetDueDate       ActionType = "SET_DUE_DATE"
	ActionAddLabel         ActionType = "ADD_LABEL"
	ActionRemoveLabel      ActionType = "REMOVE_LABEL"
	ActionSendNotification ActionType = "SEND_NOTIFICATION"
	ActionAddComment       ActionType = "ADD_COMMENT"
	ActionCreateSubtask    ActionType = "CREATE_SUBTASK"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionMoveTask, ActionAssignUser, ActionSetPriority, ActionSetDueDate,
		ActionAddLabel, ActionRemoveLabel, ActionSendNotification,
		ActionAddComment, ActionCreateSubtask:
		return true
	}
	return false
}

// Task snapshot fields a TASK_UPDATED trigger may watch.
const (
	FieldTitle    = "title"
	FieldStatus   = "status"
	FieldPriority = "priority"
	FieldColumn   = "columnId"
	FieldAssignee = "assigneeId"
	FieldDueDate  = "dueDate"
)

var errUnknownTrigger = errors.New("unknown trigger type")
var errUnknownAction = errors.New("unknown action type")

// TriggerConfig holds the per-trigger settings of a rule. Fields are
// interpreted per trigger type; unused fields must be empty. Configs are
// validated at rule create/update time, not at dispatch.
type TriggerConfig struct {
	FromColumnID string       `json:"fromColumnId,omitempty"`
	ToColumnID   string       `json:"toColumnId,omitempty"`
	Field        string       `json:"field,omitempty"`
	UserID       string       `json:"userId,omitempty"`
	Priority     TaskPriority `json:"priority,omitempty"`
	DaysBefore   int          `json:"daysBefore,omitempty"`
}

// Validate checks c against the requirements of trigger type t.
func (c TriggerConfig) Validate(t TriggerType) error {
	switch t {
	case TriggerTaskCreated, TriggerTaskCompleted, TriggerTaskOverdue,
		TriggerTimeInColumn, TriggerWIPLimitExceeded, TriggerTaskMoved,
		TriggerAssignedToUser:
		return nil
	case TriggerTaskUpdated:
		if c.Field == "" {
			return nil
		}
		switch c.Field {
		case FieldTitle, FieldStatus, FieldPriority, FieldColumn, FieldAssignee, FieldDueDate:
			return nil
		}
		return fmt.Errorf("unknown watched field %q", c.Field)
	case TriggerPriorityChanged:
		if c.Priority != "" && !c.Priority.Valid() {
			return fmt.Errorf("invalid priority %q", c.Priority)
		}
		return nil
	case TriggerDueDateApproaching:
		if c.DaysBefore < 0 {
			return fmt.Errorf("daysBefore must not be negative, got %d", c.DaysBefore)
		}
		return nil
	}
	return errUnknownTrigger
}

// ActionConfig holds the per-action settings of a rule. Fields are
// interpreted per action type.
type ActionConfig struct {
	ColumnID     string       `json:"columnId,omitempty"`
	SwimlaneID   string       `json:"swimlaneId,omitempty"`
	UserID       string       `json:"userId,omitempty"`
	Priority     TaskPriority `json:"priority,omitempty"`
	DueInDays    int          `json:"dueInDays,omitempty"`
	Label        string       `json:"label,omitempty"`
	Title        string       `json:"title,omitempty"`
	Message      string       `json:"message,omitempty"`
	Comment      string       `json:"comment,omitempty"`
	SubtaskTitle string       `json:"subtaskTitle,omitempty"`
}

// Validate checks c against the requirements of action type a.
func (c ActionConfig) Validate(a ActionType) error {
	switch a {
	case ActionMoveTask:
		if c.ColumnID == "" {
			return errors.New("moveTask requires columnId")
		}
	case ActionAssignUser:
		if c.UserID == "" {
			return errors.New("assignUser requires userId")
		}
	case ActionSetPriority:
		if !c.Priority.Valid() {
			return fmt.Errorf("invalid priority %q", c.Priority)
		}
	case ActionSetDueDate:
		if c.DueInDays < 0 {
			return fmt.Errorf("dueInDays must not be negative, got %d", c.DueInDays)
		}
	case ActionAddLabel, ActionRemoveLabel:
		if c.Label == "" {
			return errors.New("label actions require label")
		}
	case ActionSendNotification:
		if c.Message == "" {
			return errors.New("sendNotification requires message")
		}
	case ActionAddComment:
		if c.Comment == "" {
			return errors.New("addComment requires comment")
		}
	case ActionCreateSubtask:
		if c.SubtaskTitle == "" {
			return errors.New("createSubtask requires subtaskTitle")
		}
	default:
		return errUnknownAction
	}
	return nil
}

// AutomationRule is a persisted board-scoped automation definition.
type AutomationRule struct {
	ID             string        `json:"id"`
	BoardID        string        `json:"boardId"`
	Name           string        `json:"name"`
	TriggerType    TriggerType   `json:"triggerType"`
	TriggerConfig  TriggerConfig `json:"triggerConfig"`
	ActionType     ActionType    `json:"actionType"`
	ActionConfig   ActionConfig  `json:"actionConfig"`
	Active         bool          `json:"active"`
	ExecutionCount int           `json:"executionCount"`
	LastExecutedAt *time.Time    `json:"lastExecutedAt,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Validate checks the rule definition, including both configs.
func (r *AutomationRule) Validate() error {
	if r.BoardID == "" {
		return errors.New("rule requires boardId")
	}
	if r.Name == "" {
		return errors.New("rule requires name")
	}
	if !r.TriggerType.Valid() {
		return fmt.Errorf("invalid trigger type %q", r.TriggerType)
	}
	if !r.ActionType.Valid() {
		return fmt.Errorf("invalid action type %q", r.ActionType)
	}
	if err := r.TriggerConfig.Validate(r.TriggerType); err != nil {
		return fmt.Errorf("trigger config: %w", err)
	}
	if err := r.ActionConfig.Validate(r.ActionType); err != nil {
		return fmt.Errorf("action config: %w", err)
	}
	return nil
}
