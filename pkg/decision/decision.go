// Package decision implements the two-layer routing policy: a deterministic
// rule table evaluated first, and a model reasoning step only when no rule
// matches. Rule decisions never fail; the reasoning step degrades to a safe
// fallback on any provider or parse trouble.
package decision

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/codeready-toolchain/baton/pkg/llm"
	"github.com/codeready-toolchain/baton/pkg/metrics"
	"github.com/codeready-toolchain/baton/pkg/models"
)

//go:embed routing_decision_schema.json
var routingDecisionSchema []byte

// Engine decides the next workflow step.
type Engine struct {
	rules    []Rule
	provider llm.Provider
	schema   *jsonschema.Schema
}

// NewEngine builds the engine with the seed rule table. provider may be
// nil, in which case unmatched contexts get the safe fallback decision
// without a model call.
func NewEngine(provider llm.Provider) (*Engine, error) {
	schema, err := compileDecisionSchema()
	if err != nil {
		return nil, err
	}
	rules := seedRules()
	slices.SortStableFunc(rules, func(a, b Rule) int { return a.Priority - b.Priority })
	return &Engine{rules: rules, provider: provider, schema: schema}, nil
}

// Rules returns the active table in evaluation order.
func (e *Engine) Rules() []Rule {
	return slices.Clone(e.rules)
}

// Decide returns the next step for the workflow state. The auth context
// gates the call; it is never embedded in any model prompt.
// The only errors out of Decide are security rejections and cancellation.
func (e *Engine) Decide(ctx context.Context, auth models.AuthContext, dctx models.DecisionContext) (models.RoutingDecision, error) {
	if err := auth.Validate(time.Now()); err != nil {
		return models.RoutingDecision{}, err
	}
	for _, rule := range e.rules {
		if rule.Condition(dctx) {
			metrics.DecisionRuleHits.WithLabelValues(rule.ID).Inc()
			return rule.decision(), nil
		}
	}
	return e.reason(ctx, dctx)
}

func compileDecisionSchema() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(routingDecisionSchema, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode routing decision schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("routing-decision.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add routing decision schema: %w", err)
	}
	schema, err := compiler.Compile("routing-decision.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile routing decision schema: %w", err)
	}
	return schema, nil
}
