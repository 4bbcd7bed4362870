package automation

import (
	"context"
	"time"

	"boardflow-api/domain"
	"boardflow-api/storage"
)

// ActionStore abstracts the task mutations the action executor performs.
type ActionStore interface {
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	CreateTask(ctx context.Context, t *domain.Task) error
	UpdateTaskFields(ctx context.Context, id string, upd storage.TaskFieldUpdate) error
	MovePartition(ctx context.Context, taskID string, to domain.Partition, targetPos int) error
	CountPartition(ctx context.Context, p domain.Partition) (int, error)
	AddLabel(ctx context.Context, taskID, label string) error
	RemoveLabel(ctx context.Context, taskID, label string) error
	InsertComment(ctx context.Context, taskID, authorID, body string) error
}

// RuleSource loads the active rules considered during dispatch.
type RuleSource interface {
	ListActiveRulesForBoard(ctx context.Context, boardID string) ([]domain.AutomationRule, error)
}

// Recorder persists rule-firing outcomes.
type Recorder interface {
	IncrementRuleExecution(ctx context.Context, ruleID string, at time.Time) error
	InsertExecution(ctx context.Context, e *domain.Execution) error
}

// SweepStore provides the time-derived scans the sweeper runs.
type SweepStore interface {
	OverdueTasks(ctx context.Context, now time.Time) ([]domain.Task, error)
	DueSoonTasks(ctx context.Context, now time.Time, window time.Duration) ([]domain.Task, error)
	StaleTasks(ctx context.Context, cutoff time.Time) ([]domain.Task, error)
	WIPBreaches(ctx context.Context) ([]storage.WIPBreach, error)
}

// Notifier delivers notifications to users. Delivery is an external
// collaborator; implementations live outside the automation core.
type Notifier interface {
	Notify(ctx context.Context, userIDs []string, title, message string, metadata map[string]string) error
}

// Deduper suppresses duplicate synthetic sweep events across instances.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, boardID, key string) (bool, error)
	// Remove deletes a previously added key, used when dispatch fails so
	// the next sweep may retry.
	Remove(ctx context.Context, boardID, key string) error
}
