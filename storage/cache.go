package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"boardflow-api/domain"
)

type ruleBackend interface {
	CreateRule(ctx context.Context, r *domain.AutomationRule) error
	UpdateRule(ctx context.Context, r *domain.AutomationRule) error
	DeleteRule(ctx context.Context, id string) error
	GetRule(ctx context.Context, id string) (*domain.AutomationRule, error)
	ListActiveRulesForBoard(ctx context.Context, boardID string) ([]domain.AutomationRule, error)
}

// RuleCache wraps rule persistence with Redis-backed caching of each
// board's active rule set. Dispatch reads rules on every firing, so this
// is the read-mostly hot path; mutations evict the board entry.
type RuleCache struct {
	base  ruleBackend
	redis *redis.Client
	ttl   time.Duration
}

// NewRuleCache creates a caching wrapper using the provided Redis client
// and TTL. A nil client disables caching and passes every call through.
func NewRuleCache(base ruleBackend, client *redis.Client, ttl time.Duration) *RuleCache {
	if base == nil {
		panic("storage.NewRuleCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RuleCache{base: base, redis: client, ttl: ttl}
}

func rulesCacheKey(boardID string) string { return "rules:" + boardID }

// ListActiveRulesForBoard serves from cache when possible.
func (c *RuleCache) ListActiveRulesForBoard(ctx context.Context, boardID string) ([]domain.AutomationRule, error) {
	if rules, ok := c.loadFromCache(ctx, boardID); ok {
		return rules, nil
	}
	rules, err := c.base.ListActiveRulesForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, boardID, rules)
	return rules, nil
}

func (c *RuleCache) CreateRule(ctx context.Context, r *domain.AutomationRule) error {
	if err := c.base.CreateRule(ctx, r); err != nil {
		return err
	}
	c.evict(ctx, r.BoardID)
	return nil
}

func (c *RuleCache) UpdateRule(ctx context.Context, r *domain.AutomationRule) error {
	if err := c.base.UpdateRule(ctx, r); err != nil {
		return err
	}
	c.evict(ctx, r.BoardID)
	return nil
}

func (c *RuleCache) DeleteRule(ctx context.Context, id string) error {
	rule, err := c.base.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := c.base.DeleteRule(ctx, id); err != nil {
		return err
	}
	if rule != nil {
		c.evict(ctx, rule.BoardID)
	}
	return nil
}

func (c *RuleCache) loadFromCache(ctx context.Context, boardID string) ([]domain.AutomationRule, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, rulesCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, rulesCacheKey(boardID)).Err()
		}
		return nil, false
	}
	var rules []domain.AutomationRule
	if err := json.Unmarshal(data, &rules); err != nil {
		_ = c.redis.Del(ctx, rulesCacheKey(boardID)).Err()
		return nil, false
	}
	return rules, true
}

func (c *RuleCache) store(ctx context.Context, boardID string, rules []domain.AutomationRule) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, rulesCacheKey(boardID), data, c.ttl).Err()
}

func (c *RuleCache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, rulesCacheKey(boardID)).Err()
}
