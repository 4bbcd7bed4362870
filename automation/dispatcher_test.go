package automation

import (
	"context"
	"strings"
	"testing"

	"boardflow-api/domain"
)

func moveEvent(t *testing.T, env *testEnv, taskID, toColumn string) *domain.EventContext {
	t.Helper()
	before := env.mustGetTask(t, taskID)
	prev := before.Snapshot()
	if err := env.store.MovePartition(context.Background(), taskID, domain.Partition{ColumnID: toColumn}, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	after := env.mustGetTask(t, taskID)
	evt := eventFor(after, &prev)
	return evt
}

// Moving a task into the configured column fires the rule and demotes the
// task's priority.
func TestDispatchFiresMatchingRule(t *testing.T) {
	env := newTestEnv(t)
	env.seedBoard(t, "b1", domain.Column{ID: "todo"}, domain.Column{ID: "done-col"})
	env.seedTask(t, &domain.Task{ID: "T1", BoardID: "b1", ColumnID: "todo", Priority: domain.PriorityHigh})
	rule := env.seedRule(t, &domain.AutomationRule{
		BoardID:       "b1",
		Name:          "demote done work",
		TriggerType:   domain.TriggerTaskMoved,
		TriggerConfig: domain.TriggerConfig{ToColumnID: "done-col"},
		ActionType:    domain.ActionSetPriority,
		ActionConfig:  domain.ActionConfig{Priority: domain.PriorityLow},
		Active:        true,
	})
	ctx := context.Background()

	evt := moveEvent(t, env, "T1", "done-col")
	env.dispatcher.Dispatch(ctx, domain.TriggerTaskMoved, evt)

	if got := env.mustGetTask(t, "T1"); got.Priority != domain.PriorityLow {
		t.Fatalf("priority = %s, want LOW", got.Priority)
	}

	execs := env.executions(t, "b1")
	if len(execs) != 1 {
		t.Fatalf("executions = %d, want 1", len(execs))
	}
	if execs[0].Status != domain.ExecutionSuccess {
		t.Fatalf("status = %s, want success", execs[0].Status)
	}
	if execs[0].TaskID == nil || *execs[0].TaskID != "T1" {
		t.Fatalf("execution task = %v, want T1", execs[0].TaskID)
	}

	stored, err := env.store.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if stored.ExecutionCount != 1 || stored.LastExecutedAt == nil {
		t.Fatalf("rule stats = %d, %v", stored.ExecutionCount, stored.LastExecutedAt)
	}
}

func TestDispatchRecordsSkippedRule(t *testing.T) {
	env := newTestEnv(t)
	env.seedBoard(t, "b1", domain.Column{ID: "todo"}, domain.Column{ID: "review"}, domain.Column{ID: "done-col"})
	env.seedTask(t, &domain.Task{ID: "T1", BoardID: "b1", ColumnID: "todo", Priority: domain.PriorityHigh})
	env.seedRule(t, &domain.AutomationRule{
		BoardID:       "b1",
		Name:          "demote done work",
		TriggerType:   domain.TriggerTaskMoved,
		TriggerConfig: domain.TriggerConfig{ToColumnID: "done-col"},
		ActionType:    domain.ActionSetPriority,
		ActionConfig:  domain.ActionConfig{Priority: domain.PriorityLow},
		Active:        true,
	})

	evt := moveEvent(t, env, "T1", "review")
	env.dispatcher.Dispatch(context.Background(), domain.TriggerTaskMoved, evt)

	if got := env.mustGetTask(t, "T1"); got.Priority != domain.PriorityHigh {
		t.Fatalf("priority changed on skipped rule: %s", got.Priority)
	}
	execs := env.executions(t, "b1")
	if len(execs) != 1 || execs[0].Status != domain.ExecutionSkipped {
		t.Fatalf("executions = %+v, want one skipped", execs)
	}
}

func TestDispatchIgnoresOtherTriggers(t *testing.T) {
	env := newTestEnv(t)
	env.seedBoard(t, "b1", domain.Column{ID: "todo"}, domain.Column{ID: "done-col"})
	env.seedTask(t, &domain.Task{ID: "T1", BoardID: "b1", ColumnID: "todo"})
	env.seedRule(t, &domain.AutomationRule{
		BoardID:      "b1",
		Name:         "on create",
		TriggerType:  domain.TriggerTaskCreated,
		ActionType:   domain.ActionAddLabel,
		ActionConfig: domain.ActionConfig{Label: "new"},
		Active:       true,
	})

	evt := moveEvent(t, env, "T1", "done-col")
	env.dispatcher.Dispatch(context.Background(), domain.TriggerTaskMoved, evt)

	if execs := env.executions(t, "b1"); len(execs) != 0 {
		t.Fatalf("rule with different trigger was considered: %+v", execs)
	}
}

// One failing rule must not prevent its siblings from running, and both
// outcomes are recorded.
func TestDispatchIsolatesFailingRule(t *testing.T) {
	env := newTestEnv(t)
	env.seedBoard(t, "b1", domain.Column{ID: "todo"}, domain.Column{ID: "done-col"})
	env.seedTask(t, &domain.Task{ID: "T1", BoardID: "b1", ColumnID: "todo", Priority: domain.PriorityHigh})
	env.seedRule(t, &domain.AutomationRule{
		BoardID:      "b1",
		Name:         "broken mover",
		TriggerType:  domain.TriggerTaskMoved,
		ActionType:   domain.ActionMoveTask,
		ActionConfig: domain.ActionConfig{ColumnID: "no-such-column"},
		Active:       true,
	})
	env.seedRule(t, &domain.AutomationRule{
		BoardID:      "b1",
		Name:         "demoter",
		TriggerType:  domain.TriggerTaskMoved,
		ActionType:   domain.ActionSetPriority,
		ActionConfig: domain.ActionConfig{Priority: domain.PriorityLow},
		Active:       true,
	})

	evt := moveEvent(t, env, "T1", "done-col")
	env.dispatcher.Dispatch(context.Background(), domain.TriggerTaskMoved, evt)

	if got := env.mustGetTask(t, "T1"); got.Priority != domain.PriorityLow {
		t.Fatalf("second rule did not run, priority = %s", got.Priority)
	}

	execs := env.executions(t, "b1")
	if len(execs) != 2 {
		t.Fatalf("executions = %d, want 2", len(execs))
	}
	var failed, succeeded int
	for _, e := range execs {
		switch e.Status {
		case domain.ExecutionFailed:
			failed++
			if e.Error == nil {
				t.Fatal("failed execution has no error message")
			}
		case domain.ExecutionSuccess:
			succeeded++
		}
	}
	if failed != 1 || succeeded != 1 {
		t.Fatalf("failed = %d, succeeded = %d, want 1 and 1", failed, succeeded)
	}
}

func TestDispatchRecoversPanickingAction(t *testing.T) {
	env := newTestEnv(t)
	env.seedBoard(t, "b1", domain.Column{ID: "todo"}, domain.Column{ID: "done-col"})
	env.seedTask(t, &domain.Task{ID: "T1", BoardID: "b1", ColumnID: "todo", Priority: domain.PriorityHigh})

	executor := NewExecutor(env.store, panicNotifier{}, env.logger)
	dispatcher := NewDispatcher(env.store, env.store, executor, env.logger)

	env.seedRule(t, &domain.AutomationRule{
		BoardID:      "b1",
		Name:         "exploding notifier",
		TriggerType:  domain.TriggerTaskMoved,
		ActionType:   domain.ActionSendNotification,
		ActionConfig: domain.ActionConfig{Message: "boom"},
		Active:       true,
	})
	env.seedRule(t, &domain.AutomationRule{
		BoardID:      "b1",
		Name:         "demoter",
		TriggerType:  domain.TriggerTaskMoved,
		ActionType:   domain.ActionSetPriority,
		ActionConfig: domain.ActionConfig{Priority: domain.PriorityLow},
		Active:       true,
	})

	evt := moveEvent(t, env, "T1", "done-col")
	dispatcher.Dispatch(context.Background(), domain.TriggerTaskMoved, evt)

	if got := env.mustGetTask(t, "T1"); got.Priority != domain.PriorityLow {
		t.Fatalf("sibling rule blocked by panic, priority = %s", got.Priority)
	}
	execs := env.executions(t, "b1")
	if len(execs) != 2 {
		t.Fatalf("executions = %d, want 2", len(execs))
	}
	var sawPanic bool
	for _, e := range execs {
		if e.Status == domain.ExecutionFailed && e.Error != nil && strings.Contains(*e.Error, "panicked") {
			sawPanic = true
		}
	}
	if !sawPanic {
		t.Fatalf("no panic record in %+v", execs)
	}
}

func TestDispatchSkipsInactiveRules(t *testing.T) {
	env := newTestEnv(t)
	env.seedBoard(t, "b1", domain.Column{ID: "todo"}, domain.Column{ID: "done-col"})
	env.seedTask(t, &domain.Task{ID: "T1", BoardID: "b1", ColumnID: "todo", Priority: domain.PriorityHigh})
	env.seedRule(t, &domain.AutomationRule{
		BoardID:      "b1",
		Name:         "disabled",
		TriggerType:  domain.TriggerTaskMoved,
		ActionType:   domain.ActionSetPriority,
		ActionConfig: domain.ActionConfig{Priority: domain.PriorityLow},
		Active:       false,
	})

	evt := moveEvent(t, env, "T1", "done-col")
	env.dispatcher.Dispatch(context.Background(), domain.TriggerTaskMoved, evt)

	if got := env.mustGetTask(t, "T1"); got.Priority != domain.PriorityHigh {
		t.Fatalf("inactive rule ran, priority = %s", got.Priority)
	}
	if execs := env.executions(t, "b1"); len(execs) != 0 {
		t.Fatalf("executions = %+v, want none", execs)
	}
}

// ExecuteRuleOnce drives a single rule regardless of its stored state, so
// a rule can be tried out before activation.
func TestExecuteRuleOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seedBoard(t, "b1", domain.Column{ID: "todo"}, domain.Column{ID: "done-col"})
	env.seedTask(t, &domain.Task{ID: "T1", BoardID: "b1", ColumnID: "todo", Priority: domain.PriorityHigh})
	rule := env.seedRule(t, &domain.AutomationRule{
		BoardID:       "b1",
		Name:          "try me",
		TriggerType:   domain.TriggerTaskMoved,
		TriggerConfig: domain.TriggerConfig{ToColumnID: "done-col"},
		ActionType:    domain.ActionSetPriority,
		ActionConfig:  domain.ActionConfig{Priority: domain.PriorityLow},
		Active:        false,
	})
	ctx := context.Background()

	task := env.mustGetTask(t, "T1")
	prev := task.Snapshot()
	noMatch := eventFor(task, &prev)
	if status := env.dispatcher.ExecuteRuleOnce(ctx, rule, noMatch); status != domain.ExecutionSkipped {
		t.Fatalf("status = %s, want skipped", status)
	}

	evt := moveEvent(t, env, "T1", "done-col")
	if status := env.dispatcher.ExecuteRuleOnce(ctx, rule, evt); status != domain.ExecutionSuccess {
		t.Fatalf("status = %s, want success", status)
	}
	if got := env.mustGetTask(t, "T1"); got.Priority != domain.PriorityLow {
		t.Fatalf("priority = %s, want LOW", got.Priority)
	}
	if execs := env.executions(t, "b1"); len(execs) != 2 {
		t.Fatalf("executions = %d, want 2", len(execs))
	}
}
