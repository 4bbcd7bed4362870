package domain

import "time"

// TaskStatus enumerates the lifecycle states a task can be in.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusInReview   TaskStatus = "IN_REVIEW"
	StatusDone       TaskStatus = "DONE"
	StatusBlocked    TaskStatus = "BLOCKED"
)

// Valid reports whether s is a known status value.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// TaskPriority enumerates task priorities.
type TaskPriority string

const (
	PriorityCritical TaskPriority = "CRITICAL"
	PriorityHigh     TaskPriority = "HIGH"
	PriorityMedium   TaskPriority = "MEDIUM"
	PriorityLow      TaskPriority = "LOW"
)

// Valid reports whether p is a known priority value.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Partition is the (column, optional swimlane) pair that scopes a
// contiguous zero-based position ordering.
type Partition struct {
	ColumnID   string
	SwimlaneID *string
}

// Task represents a single board item.
type Task struct {
	ID          string       `json:"id"`
	BoardID     string       `json:"boardId"`
	ColumnID    string       `json:"columnId"`
	SwimlaneID  *string      `json:"swimlaneId,omitempty"`
	Title       string       `json:"title"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	Position    int          `json:"position"`
	AssigneeID  *string      `json:"assigneeId,omitempty"`
	DueDate     *time.Time   `json:"dueDate,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	ParentID    *string      `json:"parentId,omitempty"`
	CreatedBy   string       `json:"createdBy"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Partition returns the ordering partition the task currently belongs to.
func (t *Task) Partition() Partition {
	return Partition{ColumnID: t.ColumnID, SwimlaneID: t.SwimlaneID}
}

// Snapshot captures the automation-relevant fields of a task at a point
// in time. Event contexts carry a previous and a current snapshot.
type Snapshot struct {
	Title      string       `json:"title"`
	Status     TaskStatus   `json:"status"`
	Priority   TaskPriority `json:"priority"`
	ColumnID   string       `json:"columnId"`
	SwimlaneID *string      `json:"swimlaneId,omitempty"`
	AssigneeID *string      `json:"assigneeId,omitempty"`
	DueDate    *time.Time   `json:"dueDate,omitempty"`
}

// Snapshot returns the task's current automation-relevant state.
func (t *Task) Snapshot() Snapshot {
	return Snapshot{
		Title:      t.Title,
		Status:     t.Status,
		Priority:   t.Priority,
		ColumnID:   t.ColumnID,
		SwimlaneID: t.SwimlaneID,
		AssigneeID: t.AssigneeID,
		DueDate:    t.DueDate,
	}
}

// Column represents a board column. A nil WIPLimit means unlimited.
type Column struct {
	ID       string `json:"id"`
	BoardID  string `json:"boardId"`
	Name     string `json:"name"`
	WIPLimit *int   `json:"wipLimit,omitempty"`
}
