package workflow

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/baton/pkg/agent"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

const artifactTypeStylePackage = "style_package"

// runCompetition fans out parallel designer executions and pauses for the
// user to pick a winner. done reports that the loop must stop and return
// res; otherwise the round degraded to a plain execution (or a failure)
// and the loop continues.
func (e *Engine) runCompetition(ctx context.Context) (res *Result, done bool, err error) {
	e.mu.Lock()
	count := e.settings.ParallelDesignerCount
	inputs := make([]agent.ExecutionInput, count)
	previous := e.st.previousOutputs()
	feedback := e.st.feedback
	e.st.feedback = ""
	for i := range inputs {
		inputs[i] = agent.ExecutionInput{
			Agent:    models.AgentUIDesigner,
			Task:     e.st.task,
			Auth:     e.st.auth,
			Previous: previous,
			Feedback: feedback,
		}
		inputs[i].Task.CompletedAgents = slices.Clone(e.st.task.CompletedAgents)
	}
	e.st.markRunning(models.AgentUIDesigner, feedback)
	e.mu.Unlock()

	execCtx, cancel := context.WithTimeout(ctx, e.settings.ProviderTimeout())
	outs, parErr := e.router.ExecuteParallel(execCtx, inputs)
	cancel()
	if parErr != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("style competition interrupted: %w", parErr)
		}
		out := failureOutput(models.AgentUIDesigner, parErr)
		e.mu.Lock()
		e.st.recordOutput(out)
		e.mu.Unlock()
		e.checkpoint(ctx, models.TriggerAgentComplete, "style competition round failed")
		res, done = e.afterExecution(ctx, out)
		return res, done, nil
	}

	// Every execution counts toward tokens and attempts; only a winner
	// will join the transcript later.
	var candidates []*models.AgentOutput
	var firstSuccess, firstFailure *models.AgentOutput
	e.mu.Lock()
	limit := e.settings.StylePackageCount
	for _, out := range outs {
		if out == nil {
			continue
		}
		e.st.tokens.Add(out.TokensUsed)
		e.st.noteExecution(out)
		if !out.Success {
			if firstFailure == nil {
				firstFailure = out
			}
			continue
		}
		if firstSuccess == nil {
			firstSuccess = out
		}
		if len(candidates) < limit && styleArtifact(out) != nil {
			candidates = append(candidates, out)
		}
	}
	e.mu.Unlock()

	if len(candidates) == 0 {
		if firstSuccess != nil {
			// No style packages came back; fall through to the normal
			// single-designer path with the first successful output.
			e.mu.Lock()
			e.st.outputs = append(e.st.outputs, firstSuccess)
			e.mu.Unlock()
			e.checkpoint(ctx, models.TriggerAgentComplete, "design round completed without style packages")
			res, done = e.afterExecution(ctx, firstSuccess)
			return res, done, nil
		}
		if firstFailure == nil {
			firstFailure = failureOutput(models.AgentUIDesigner,
				faults.New(faults.CodeUpstream, "style competition produced no outputs"))
			e.mu.Lock()
			e.st.noteExecution(firstFailure)
			e.mu.Unlock()
		}
		e.mu.Lock()
		e.st.outputs = append(e.st.outputs, firstFailure)
		e.mu.Unlock()
		e.checkpoint(ctx, models.TriggerAgentComplete, "style competition round failed")
		res, done = e.afterExecution(ctx, firstFailure)
		return res, done, nil
	}

	options, payload := competitionOptions(candidates)
	e.mu.Lock()
	e.st.competition = candidates
	req := &models.ApprovalRequest{
		ID:          uuid.NewString(),
		WorkflowID:  e.st.task.ID,
		Agent:       models.AgentUIDesigner,
		Title:       "select a style package",
		Description: fmt.Sprintf("%d style packages are ready for review", len(candidates)),
		Options:     options,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	e.mu.Unlock()
	e.checkpoint(ctx, models.TriggerAgentComplete, "style competition round finished")
	res, _ = e.pause(ctx, req, false, "style competition awaiting selection")
	return res, true, nil
}

// pickWinner resolves a selected option back to its candidate output. An
// empty selection takes the first option.
func pickWinner(options []string, candidates []*models.AgentOutput, selected string) (*models.AgentOutput, error) {
	if len(candidates) == 0 {
		return nil, faults.New(faults.CodeInvariant, "no style candidates to select from")
	}
	if selected == "" {
		return candidates[0], nil
	}
	idx := slices.Index(options, selected)
	if idx < 0 || idx >= len(candidates) {
		return nil, faults.Newf(faults.CodeValidation, "unknown style option %q", selected)
	}
	return candidates[idx], nil
}

func styleArtifact(out *models.AgentOutput) *models.Artifact {
	for i := range out.Artifacts {
		if out.Artifacts[i].Type == artifactTypeStylePackage {
			return &out.Artifacts[i]
		}
	}
	return nil
}

// competitionOptions names each candidate after its style package
// artifact and summarizes it for the approval payload.
func competitionOptions(candidates []*models.AgentOutput) ([]string, map[string]any) {
	options := make([]string, 0, len(candidates))
	summaries := make(map[string]any, len(candidates))
	for i, candidate := range candidates {
		art := styleArtifact(candidate)
		name := fmt.Sprintf("style-%d", i+1)
		if art != nil && art.ID != "" && !slices.Contains(options, art.ID) {
			name = art.ID
		}
		options = append(options, name)
		summary := map[string]any{
			"tokens_used": candidate.TokensUsed.Total(),
			"duration_ms": candidate.DurationMs,
		}
		if art != nil && art.Path != "" {
			summary["path"] = art.Path
		}
		summaries[name] = summary
	}
	return options, map[string]any{"candidates": summaries}
}
