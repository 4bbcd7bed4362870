package domain

import "time"

// EventContext carries the state of one task mutation (or one synthetic
// sweeper finding) through rule dispatch. Contexts are constructed fresh
// per event and never shared between concurrent dispatches.
type EventContext struct {
	TaskID     string
	ActorID    string
	BoardID    string
	ColumnID   string
	SwimlaneID *string
	Previous   *Snapshot
	Current    *Snapshot
	Payload    map[string]any
}

// FieldChanged reports whether the named snapshot field differs between
// the previous and current snapshots. A missing snapshot counts as a
// change for every field.
func (e *EventContext) FieldChanged(field string) bool {
	if e.Previous == nil || e.Current == nil {
		return true
	}
	prev, cur := e.Previous, e.Current
	switch field {
	case FieldTitle:
		return prev.Title != cur.Title
	case FieldStatus:
		return prev.Status != cur.Status
	case FieldPriority:
		return prev.Priority != cur.Priority
	case FieldColumn:
		return prev.ColumnID != cur.ColumnID
	case FieldAssignee:
		return !strPtrEqual(prev.AssigneeID, cur.AssigneeID)
	case FieldDueDate:
		return !timePtrEqual(prev.DueDate, cur.DueDate)
	}
	return false
}

// Changed reports whether any snapshot field differs.
func (e *EventContext) Changed() bool {
	for _, f := range []string{FieldTitle, FieldStatus, FieldPriority, FieldColumn, FieldAssignee, FieldDueDate} {
		if e.FieldChanged(f) {
			return true
		}
	}
	return false
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
