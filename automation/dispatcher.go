package automation

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"boardflow-api/domain"
)

// Dispatcher fans a task event out to the board's matching active rules.
// All rule failures are absorbed here; Dispatch never returns an error to
// the task-mutation call site.
type Dispatcher struct {
	rules    RuleSource
	recorder Recorder
	executor *Executor
	logger   *log.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(rules RuleSource, recorder Recorder, executor *Executor, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		rules:    rules,
		recorder: recorder,
		executor: executor,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch evaluates every active rule of the event's board whose trigger
// type matches, executes the matched ones, and records one execution row
// per rule considered. One rule's failure never prevents evaluation of
// the next.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger domain.TriggerType, evt *domain.EventContext) {
	metrics, spanCtx := newDispatchMetrics(ctx, d.logger, trigger, evt.BoardID)
	if spanCtx != nil {
		ctx = spanCtx
	}
	defer metrics.End()

	rules, err := d.rules.ListActiveRulesForBoard(ctx, evt.BoardID)
	if err != nil {
		metrics.SetError(err)
		d.logger.WithFields(log.Fields{"board": evt.BoardID, "trigger": trigger}).
			Errorf("load rules: %v", err)
		return
	}

	for i := range rules {
		rule := &rules[i]
		if rule.TriggerType != trigger {
			continue
		}
		metrics.RuleConsidered()
		status := d.runRule(ctx, rule, evt)
		switch status {
		case domain.ExecutionSuccess:
			metrics.RuleFired()
		case domain.ExecutionFailed:
			metrics.RuleFailed()
		}
	}
}

// ExecuteRuleOnce evaluates and executes a single rule against the given
// context, recording the outcome. It is the public entry point used by
// the rule-test endpoint.
func (d *Dispatcher) ExecuteRuleOnce(ctx context.Context, rule *domain.AutomationRule, evt *domain.EventContext) domain.ExecutionStatus {
	return d.runRule(ctx, rule, evt)
}

// runRule drives evaluate → execute → record for one rule. Panics from a
// misbehaving action are recovered and converted into failed records as
// defense-in-depth on top of the executor's own error handling.
func (d *Dispatcher) runRule(ctx context.Context, rule *domain.AutomationRule, evt *domain.EventContext) (status domain.ExecutionStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = domain.ExecutionFailed
			err := fmt.Errorf("rule panicked: %v", r)
			d.logger.WithField("rule", rule.ID).Error(err)
			d.record(ctx, rule, evt, domain.ExecutionFailed, err)
		}
	}()

	if !Matches(rule.TriggerType, rule.TriggerConfig, evt, d.now()) {
		d.record(ctx, rule, evt, domain.ExecutionSkipped, nil)
		return domain.ExecutionSkipped
	}

	if err := d.executor.Apply(ctx, rule.ActionType, rule.ActionConfig, evt); err != nil {
		d.logger.WithFields(log.Fields{"rule": rule.ID, "task": evt.TaskID, "action": rule.ActionType}).
			Errorf("action failed: %v", err)
		d.record(ctx, rule, evt, domain.ExecutionFailed, err)
		return domain.ExecutionFailed
	}

	if err := d.recorder.IncrementRuleExecution(ctx, rule.ID, d.now()); err != nil {
		d.logger.WithField("rule", rule.ID).Errorf("increment execution counter: %v", err)
	}
	d.record(ctx, rule, evt, domain.ExecutionSuccess, nil)
	return domain.ExecutionSuccess
}

func (d *Dispatcher) record(ctx context.Context, rule *domain.AutomationRule, evt *domain.EventContext, status domain.ExecutionStatus, execErr error) {
	e := &domain.Execution{RuleID: rule.ID, Status: status}
	if evt.TaskID != "" {
		taskID := evt.TaskID
		e.TaskID = &taskID
	}
	if execErr != nil {
		msg := execErr.Error()
		e.Error = &msg
	}
	if err := d.recorder.InsertExecution(ctx, e); err != nil {
		d.logger.WithField("rule", rule.ID).Errorf("record execution: %v", err)
	}
}
