package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"boardflow-api/domain"
)

// MaxExecutionPageSize caps how many execution records one board query
// may return.
const MaxExecutionPageSize = 50

const ruleColumns = `id, board_id, name, trigger_type, trigger_config, action_type, action_config,
	active, execution_count, last_executed_at, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*domain.AutomationRule, error) {
	r := &domain.AutomationRule{}
	var triggerCfg, actionCfg string
	var lastExec sql.NullTime
	err := row.Scan(
		&r.ID, &r.BoardID, &r.Name, &r.TriggerType, &triggerCfg, &r.ActionType, &actionCfg,
		&r.Active, &r.ExecutionCount, &lastExec, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(triggerCfg), &r.TriggerConfig); err != nil {
		return nil, fmt.Errorf("decode trigger config of rule %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(actionCfg), &r.ActionConfig); err != nil {
		return nil, fmt.Errorf("decode action config of rule %s: %w", r.ID, err)
	}
	if lastExec.Valid {
		t := lastExec.Time
		r.LastExecutedAt = &t
	}
	return r, nil
}

// CreateRule validates and persists a new automation rule. Config
// validation happens here, once, so dispatch never sees a malformed rule.
func (s *Storage) CreateRule(ctx context.Context, r *domain.AutomationRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	triggerCfg, err := json.Marshal(r.TriggerConfig)
	if err != nil {
		return err
	}
	actionCfg, err := json.Marshal(r.ActionConfig)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automation_rules
			(id, board_id, name, trigger_type, trigger_config, action_type, action_config, active, execution_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		r.ID, r.BoardID, r.Name, r.TriggerType, string(triggerCfg), r.ActionType, string(actionCfg),
		r.Active, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// UpdateRule replaces the mutable fields of an existing rule after
// re-validating its configuration.
func (s *Storage) UpdateRule(ctx context.Context, r *domain.AutomationRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	triggerCfg, err := json.Marshal(r.TriggerConfig)
	if err != nil {
		return err
	}
	actionCfg, err := json.Marshal(r.ActionConfig)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET name = ?, trigger_type = ?, trigger_config = ?, action_type = ?, action_config = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.TriggerType, string(triggerCfg), r.ActionType, string(actionCfg), r.Active,
		time.Now().UTC(), r.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ErrRuleNotFound is returned when a rule operation references an unknown rule.
var ErrRuleNotFound = fmt.Errorf("rule not found")

// DeleteRule removes a rule and, via cascade, its execution history.
func (s *Storage) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// GetRule retrieves a rule by ID, returning nil when it does not exist.
func (s *Storage) GetRule(ctx context.Context, id string) (*domain.AutomationRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

// ListRules returns all rules of a board.
func (s *Storage) ListRules(ctx context.Context, boardID string) ([]domain.AutomationRule, error) {
	return s.queryRules(ctx, `
		SELECT `+ruleColumns+` FROM automation_rules
		WHERE board_id = ? ORDER BY created_at`, boardID)
}

// ListActiveRulesForBoard returns the active rules of a board across all
// trigger types. The dispatch path filters by trigger in memory, which
// lets the cache hold one entry per board.
func (s *Storage) ListActiveRulesForBoard(ctx context.Context, boardID string) ([]domain.AutomationRule, error) {
	return s.queryRules(ctx, `
		SELECT `+ruleColumns+` FROM automation_rules
		WHERE board_id = ? AND active = 1 ORDER BY created_at`, boardID)
}

func (s *Storage) queryRules(ctx context.Context, query string, args ...any) ([]domain.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.AutomationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// IncrementRuleExecution bumps the execution counter and last-executed
// timestamp with a single atomic statement so concurrent firings of the
// same rule cannot lose updates.
func (s *Storage) IncrementRuleExecution(ctx context.Context, ruleID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET execution_count = execution_count + 1, last_executed_at = ?
		WHERE id = ?`, at.UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("increment rule execution: %w", err)
	}
	return nil
}

// InsertExecution appends one immutable audit row for a rule-firing attempt.
func (s *Storage) InsertExecution(ctx context.Context, e *domain.Execution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_executions (id, rule_id, task_id, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.RuleID, e.TaskID, e.Status, e.Error, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// ListExecutions returns a board's execution history, most recent first,
// capped at MaxExecutionPageSize records.
func (s *Storage) ListExecutions(ctx context.Context, boardID string, limit int) ([]domain.Execution, error) {
	if limit <= 0 || limit > MaxExecutionPageSize {
		limit = MaxExecutionPageSize
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.rule_id, e.task_id, e.status, e.error, e.created_at
		FROM automation_executions e
		JOIN automation_rules r ON r.id = e.rule_id
		WHERE r.board_id = ?
		ORDER BY e.created_at DESC
		LIMIT ?`, boardID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []domain.Execution
	for rows.Next() {
		var e domain.Execution
		var taskID, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.RuleID, &taskID, &e.Status, &errMsg, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if taskID.Valid {
			e.TaskID = &taskID.String
		}
		if errMsg.Valid {
			e.Error = &errMsg.String
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}
