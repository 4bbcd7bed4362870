package automation

import (
	"math"
	"time"

	"boardflow-api/domain"
)

// Matches decides whether a rule's trigger fires for the given event
// context. It is a pure function: deterministic for identical inputs and
// free of side effects, so it can be exercised in isolation.
func Matches(t domain.TriggerType, cfg domain.TriggerConfig, evt *domain.EventContext, now time.Time) bool {
	switch t {
	case domain.TriggerTaskCreated:
		return true

	case domain.TriggerTaskCompleted:
		return evt.Current != nil && evt.Current.Status == domain.StatusDone

	case domain.TriggerTaskMoved:
		if evt.Previous == nil || evt.Current == nil {
			return false
		}
		if cfg.FromColumnID != "" && cfg.FromColumnID != evt.Previous.ColumnID {
			return false
		}
		if cfg.ToColumnID != "" && cfg.ToColumnID != evt.Current.ColumnID {
			return false
		}
		return true

	case domain.TriggerTaskUpdated:
		if cfg.Field != "" {
			return evt.FieldChanged(cfg.Field)
		}
		return evt.Changed()

	case domain.TriggerAssignedToUser:
		if evt.Current == nil || evt.Current.AssigneeID == nil {
			return false
		}
		if cfg.UserID != "" {
			return *evt.Current.AssigneeID == cfg.UserID
		}
		return evt.Previous == nil || evt.Previous.AssigneeID == nil

	case domain.TriggerPriorityChanged:
		if evt.Current == nil {
			return false
		}
		if evt.Previous != nil && evt.Previous.Priority == evt.Current.Priority {
			return false
		}
		if cfg.Priority != "" {
			return evt.Current.Priority == cfg.Priority
		}
		return true

	case domain.TriggerDueDateApproaching:
		if evt.Current == nil || evt.Current.DueDate == nil {
			return false
		}
		daysBefore := cfg.DaysBefore
		if daysBefore == 0 {
			daysBefore = 1
		}
		days := int(math.Ceil(evt.Current.DueDate.Sub(now).Hours() / 24))
		return days <= daysBefore

	case domain.TriggerTaskOverdue, domain.TriggerTimeInColumn, domain.TriggerWIPLimitExceeded:
		// Driven exclusively by the sweeper's synthesized contexts; the
		// scan that produced the event is the condition.
		return true
	}
	return false
}
