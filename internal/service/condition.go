package service

import (
	"fmt"

	"agentforms-webhooks/internal/core/domain"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultConditionCacheSize bounds the number of compiled conditions kept in memory.
const DefaultConditionCacheSize = 256

// ConditionEvaluator compiles and evaluates subscriber conditions.
// Compiled programs are cached by expression text.
type ConditionEvaluator struct {
	programs *lru.Cache[string, *vm.Program]
}

// NewConditionEvaluator creates an evaluator with an LRU of the given size.
func NewConditionEvaluator(size int) (*ConditionEvaluator, error) {
	if size <= 0 {
		size = DefaultConditionCacheSize
	}
	cache, err := lru.New[string, *vm.Program](size)
	if err != nil {
		return nil, fmt.Errorf("creating condition cache: %w", err)
	}
	return &ConditionEvaluator{programs: cache}, nil
}

// ConditionEnv exposes an event to condition expressions as
// event, timestamp, agent_id, session and agent.
func ConditionEnv(envelope domain.Envelope, agentID *string) map[string]any {
	env := map[string]any{
		"event":     envelope.Event,
		"timestamp": envelope.Timestamp,
		"session":   envelope.Data.Session,
		"agent":     envelope.Data.Agent,
		"agent_id":  "",
	}
	if envelope.Data.Agent == nil {
		env["agent"] = map[string]any{}
	}
	if agentID != nil {
		env["agent_id"] = *agentID
	}
	return env
}

// Evaluate reports whether condition holds for env. An empty condition always holds.
func (c *ConditionEvaluator) Evaluate(condition string, env map[string]any) (bool, error) {
	if condition == "" {
		return true, nil
	}

	prog, ok := c.programs.Get(condition)
	if !ok {
		compiled, err := expr.Compile(condition, expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("compile condition: %w", err)
		}
		c.programs.Add(condition, compiled)
		prog = compiled
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return bool")
	}
	return b, nil
}

// Cached returns the number of compiled programs held.
func (c *ConditionEvaluator) Cached() int {
	return c.programs.Len()
}
