package automation

import (
	"testing"
	"time"

	"boardflow-api/domain"
)

func strPtr(s string) *string       { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func snap(column string, mut ...func(*domain.Snapshot)) *domain.Snapshot {
	s := &domain.Snapshot{
		Title:    "t",
		Status:   domain.StatusTodo,
		Priority: domain.PriorityMedium,
		ColumnID: column,
	}
	for _, m := range mut {
		m(s)
	}
	return s
}

func TestMatches(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		trigger domain.TriggerType
		cfg     domain.TriggerConfig
		evt     *domain.EventContext
		want    bool
	}{
		{
			name:    "created always fires",
			trigger: domain.TriggerTaskCreated,
			evt:     &domain.EventContext{Current: snap("c1")},
			want:    true,
		},
		{
			name:    "completed fires on done status",
			trigger: domain.TriggerTaskCompleted,
			evt: &domain.EventContext{Current: snap("c1", func(s *domain.Snapshot) {
				s.Status = domain.StatusDone
			})},
			want: true,
		},
		{
			name:    "completed ignores other statuses",
			trigger: domain.TriggerTaskCompleted,
			evt:     &domain.EventContext{Current: snap("c1")},
			want:    false,
		},
		{
			name:    "moved without constraints",
			trigger: domain.TriggerTaskMoved,
			evt:     &domain.EventContext{Previous: snap("a"), Current: snap("b")},
			want:    true,
		},
		{
			name:    "moved matches destination",
			trigger: domain.TriggerTaskMoved,
			cfg:     domain.TriggerConfig{ToColumnID: "done-col"},
			evt:     &domain.EventContext{Previous: snap("a"), Current: snap("done-col")},
			want:    true,
		},
		{
			name:    "moved rejects wrong destination",
			trigger: domain.TriggerTaskMoved,
			cfg:     domain.TriggerConfig{ToColumnID: "done-col"},
			evt:     &domain.EventContext{Previous: snap("a"), Current: snap("b")},
			want:    false,
		},
		{
			name:    "moved matches source and destination",
			trigger: domain.TriggerTaskMoved,
			cfg:     domain.TriggerConfig{FromColumnID: "a", ToColumnID: "b"},
			evt:     &domain.EventContext{Previous: snap("a"), Current: snap("b")},
			want:    true,
		},
		{
			name:    "moved rejects wrong source",
			trigger: domain.TriggerTaskMoved,
			cfg:     domain.TriggerConfig{FromColumnID: "x"},
			evt:     &domain.EventContext{Previous: snap("a"), Current: snap("b")},
			want:    false,
		},
		{
			name:    "moved needs both snapshots",
			trigger: domain.TriggerTaskMoved,
			evt:     &domain.EventContext{Current: snap("b")},
			want:    false,
		},
		{
			name:    "updated on watched field",
			trigger: domain.TriggerTaskUpdated,
			cfg:     domain.TriggerConfig{Field: domain.FieldTitle},
			evt: &domain.EventContext{
				Previous: snap("c1"),
				Current:  snap("c1", func(s *domain.Snapshot) { s.Title = "renamed" }),
			},
			want: true,
		},
		{
			name:    "updated ignores unwatched field",
			trigger: domain.TriggerTaskUpdated,
			cfg:     domain.TriggerConfig{Field: domain.FieldStatus},
			evt: &domain.EventContext{
				Previous: snap("c1"),
				Current:  snap("c1", func(s *domain.Snapshot) { s.Title = "renamed" }),
			},
			want: false,
		},
		{
			name:    "updated without field fires on any change",
			trigger: domain.TriggerTaskUpdated,
			evt: &domain.EventContext{
				Previous: snap("c1"),
				Current:  snap("c1", func(s *domain.Snapshot) { s.Priority = domain.PriorityHigh }),
			},
			want: true,
		},
		{
			name:    "updated without change stays silent",
			trigger: domain.TriggerTaskUpdated,
			evt:     &domain.EventContext{Previous: snap("c1"), Current: snap("c1")},
			want:    false,
		},
		{
			name:    "assigned to specific user",
			trigger: domain.TriggerAssignedToUser,
			cfg:     domain.TriggerConfig{UserID: "u7"},
			evt: &domain.EventContext{
				Previous: snap("c1"),
				Current:  snap("c1", func(s *domain.Snapshot) { s.AssigneeID = strPtr("u7") }),
			},
			want: true,
		},
		{
			name:    "assigned to different user",
			trigger: domain.TriggerAssignedToUser,
			cfg:     domain.TriggerConfig{UserID: "u7"},
			evt: &domain.EventContext{
				Previous: snap("c1"),
				Current:  snap("c1", func(s *domain.Snapshot) { s.AssigneeID = strPtr("u9") }),
			},
			want: false,
		},
		{
			name:    "assigned without config fires on new assignment",
			trigger: domain.TriggerAssignedToUser,
			evt: &domain.EventContext{
				Previous: snap("c1"),
				Current:  snap("c1", func(s *domain.Snapshot) { s.AssigneeID = strPtr("u1") }),
			},
			want: true,
		},
		{
			name:    "unassigned task does not fire",
			trigger: domain.TriggerAssignedToUser,
			evt:     &domain.EventContext{Previous: snap("c1"), Current: snap("c1")},
			want:    false,
		},
		{
			name:    "priority changed",
			trigger: domain.TriggerPriorityChanged,
			evt: &domain.EventContext{
				Previous: snap("c1"),
				Current:  snap("c1", func(s *domain.Snapshot) { s.Priority = domain.PriorityCritical }),
			},
			want: true,
		},
		{
			name:    "priority changed to watched value",
			trigger: domain.TriggerPriorityChanged,
			cfg:     domain.TriggerConfig{Priority: domain.PriorityCritical},
			evt: &domain.EventContext{
				Previous: snap("c1"),
				Current:  snap("c1", func(s *domain.Snapshot) { s.Priority = domain.PriorityHigh }),
			},
			want: false,
		},
		{
			name:    "priority unchanged",
			trigger: domain.TriggerPriorityChanged,
			evt:     &domain.EventContext{Previous: snap("c1"), Current: snap("c1")},
			want:    false,
		},
		{
			name:    "due date within default window",
			trigger: domain.TriggerDueDateApproaching,
			evt: &domain.EventContext{Current: snap("c1", func(s *domain.Snapshot) {
				s.DueDate = timePtr(now.Add(20 * time.Hour))
			})},
			want: true,
		},
		{
			name:    "due date outside default window",
			trigger: domain.TriggerDueDateApproaching,
			evt: &domain.EventContext{Current: snap("c1", func(s *domain.Snapshot) {
				s.DueDate = timePtr(now.Add(48 * time.Hour))
			})},
			want: false,
		},
		{
			name:    "due date within configured window",
			trigger: domain.TriggerDueDateApproaching,
			cfg:     domain.TriggerConfig{DaysBefore: 3},
			evt: &domain.EventContext{Current: snap("c1", func(s *domain.Snapshot) {
				s.DueDate = timePtr(now.Add(60 * time.Hour))
			})},
			want: true,
		},
		{
			name:    "no due date",
			trigger: domain.TriggerDueDateApproaching,
			evt:     &domain.EventContext{Current: snap("c1")},
			want:    false,
		},
		{
			name:    "overdue trusts the sweep",
			trigger: domain.TriggerTaskOverdue,
			evt:     &domain.EventContext{Current: snap("c1")},
			want:    true,
		},
		{
			name:    "time in column trusts the sweep",
			trigger: domain.TriggerTimeInColumn,
			evt:     &domain.EventContext{Current: snap("c1")},
			want:    true,
		},
		{
			name:    "wip breach trusts the sweep",
			trigger: domain.TriggerWIPLimitExceeded,
			evt:     &domain.EventContext{Current: snap("c1")},
			want:    true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Matches(tc.trigger, tc.cfg, tc.evt, now); got != tc.want {
				t.Fatalf("Matches(%s) = %v, want %v", tc.trigger, got, tc.want)
			}
		})
	}
}

// Matching must not mutate the event context.
func TestMatchesLeavesEventUntouched(t *testing.T) {
	now := time.Now()
	evt := &domain.EventContext{
		TaskID:   "t1",
		Previous: snap("a"),
		Current:  snap("b"),
	}
	before := *evt.Previous
	for _, trigger := range []domain.TriggerType{
		domain.TriggerTaskCreated, domain.TriggerTaskMoved, domain.TriggerTaskUpdated,
		domain.TriggerPriorityChanged, domain.TriggerDueDateApproaching,
	} {
		Matches(trigger, domain.TriggerConfig{}, evt, now)
	}
	if *evt.Previous != before {
		t.Fatalf("event snapshot mutated: %+v", evt.Previous)
	}
}
