package api

import (
	"context"
	"time"

	"boardflow-api/domain"
	"boardflow-api/storage"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	CreateTask(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTaskFields(ctx context.Context, id string, upd storage.TaskFieldUpdate) error
	MovePartition(ctx context.Context, taskID string, to domain.Partition, targetPos int) error
	BulkReorder(ctx context.Context, p domain.Partition, items []storage.ReorderItem) error
	Compact(ctx context.Context, p domain.Partition) error

	ListRules(ctx context.Context, boardID string) ([]domain.AutomationRule, error)
	GetRule(ctx context.Context, id string) (*domain.AutomationRule, error)
	ListExecutions(ctx context.Context, boardID string, limit int) ([]domain.Execution, error)

	Ping(ctx context.Context) error
}

// RuleWriter mutates rule definitions. Kept separate from Storage so the
// cache wrapper can sit in front of rule writes only.
type RuleWriter interface {
	CreateRule(ctx context.Context, r *domain.AutomationRule) error
	UpdateRule(ctx context.Context, r *domain.AutomationRule) error
	DeleteRule(ctx context.Context, id string) error
}

// Dispatcher receives task events after their mutation commits.
type Dispatcher interface {
	Dispatch(ctx context.Context, trigger domain.TriggerType, evt *domain.EventContext)
	ExecuteRuleOnce(ctx context.Context, rule *domain.AutomationRule, evt *domain.EventContext) domain.ExecutionStatus
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type createTaskRequest struct {
	BoardID    string     `json:"boardId"`
	ColumnID   string     `json:"columnId"`
	SwimlaneID *string    `json:"swimlaneId,omitempty"`
	Title      string     `json:"title"`
	Priority   string     `json:"priority,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
}

type updateTaskRequest struct {
	Title    *string `json:"title,omitempty"`
	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`

	// Empty string clears the field, nil leaves it unchanged.
	Assignee *string `json:"assigneeId,omitempty"`
	DueDate  *string `json:"dueDate,omitempty"`
}

type moveTaskRequest struct {
	ColumnID   string  `json:"columnId"`
	SwimlaneID *string `json:"swimlaneId,omitempty"`
	Position   int     `json:"position"`
}

type reorderRequest struct {
	ColumnID   string                `json:"columnId"`
	SwimlaneID *string               `json:"swimlaneId,omitempty"`
	Items      []storage.ReorderItem `json:"items"`
}

type ruleRequest struct {
	Name          string               `json:"name"`
	TriggerType   domain.TriggerType   `json:"triggerType"`
	TriggerConfig domain.TriggerConfig `json:"triggerConfig"`
	ActionType    domain.ActionType    `json:"actionType"`
	ActionConfig  domain.ActionConfig  `json:"actionConfig"`
	Active        *bool                `json:"active,omitempty"`
}

type executionsResponse struct {
	Executions []domain.Execution `json:"executions"`
}

type rulesResponse struct {
	Rules []domain.AutomationRule `json:"rules"`
}
