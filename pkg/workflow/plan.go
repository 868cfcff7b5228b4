package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/graph"
	"github.com/codeready-toolchain/baton/pkg/llm"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/redact"
)

// executionPlan is the ordered view of a planner breakdown.
type executionPlan struct {
	Order    []string
	Groups   [][]string
	Critical []string
}

// recordPlan orders the planner's breakdown and surfaces the execution
// plan as an activity event. Routing stays with the decision rules either
// way; a breakdown that does not parse or order cleanly is reported and
// otherwise ignored.
func (e *Engine) recordPlan(ctx context.Context, out *models.AgentOutput) {
	plan, err := buildPlan(out)
	if err != nil {
		e.emit(ctx, models.ActivityEvent{
			Type:     models.ActivitySystemInfo,
			Severity: models.SeverityWarning,
			AgentID:  string(out.Agent),
			Title:    "planner breakdown unusable",
			Details:  map[string]any{"error": redact.Error(err)},
		})
		return
	}
	e.emit(ctx, models.ActivityEvent{
		Type:    models.ActivitySystemInfo,
		AgentID: string(out.Agent),
		Title:   "execution plan ready",
		Details: map[string]any{
			"tasks":           plan.Order,
			"parallel_groups": plan.Groups,
			"critical_path":   plan.Critical,
		},
	})
}

func buildPlan(out *models.AgentOutput) (*executionPlan, error) {
	breakdown, err := parseBreakdown(out)
	if err != nil {
		return nil, err
	}
	g, err := graph.FromBreakdown(breakdown)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	groups, err := g.ParallelGroups()
	if err != nil {
		return nil, err
	}
	critical, err := g.CriticalPath()
	if err != nil {
		return nil, err
	}
	return &executionPlan{Order: order, Groups: groups, Critical: critical}, nil
}

// parseBreakdown decodes the breakdown JSON from a planner output,
// tolerating fenced blocks and surrounding prose.
func parseBreakdown(out *models.AgentOutput) (*models.WorkBreakdown, error) {
	content, ok := out.Result["content"].(string)
	if !ok || content == "" {
		return nil, faults.New(faults.CodeValidation, "planner result carries no content")
	}
	raw, err := llm.ExtractJSONObject(content)
	if err != nil {
		return nil, err
	}
	var breakdown models.WorkBreakdown
	if err := json.Unmarshal(raw, &breakdown); err != nil {
		return nil, fmt.Errorf("failed to decode breakdown: %w", err)
	}
	if err := breakdown.Validate(); err != nil {
		return nil, err
	}
	return &breakdown, nil
}
