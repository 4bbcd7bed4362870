package domain

import "time"

// ExecutionStatus is the recorded outcome of one rule-firing attempt.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionSkipped ExecutionStatus = "skipped"
	ExecutionFailed  ExecutionStatus = "failed"
)

// Execution is an immutable audit row written per rule considered during
// dispatch. TaskID is nil for board-wide events.
type Execution struct {
	ID        string          `json:"id"`
	RuleID    string          `json:"ruleId"`
	TaskID    *string         `json:"taskId,omitempty"`
	Status    ExecutionStatus `json:"status"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
