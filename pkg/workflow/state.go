package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/codeready-toolchain/baton/pkg/checkpoint"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// maxHistoryEntries caps the retained phase transition history. The
// history is most-recent-first; older transitions fall off the end.
const maxHistoryEntries = 100

// workflowState is the mutable per-run state. All access goes through the
// engine's mutex; nothing here locks.
type workflowState struct {
	task    models.Task
	auth    models.AuthContext
	outputs []*models.AgentOutput
	agents  map[string]models.AgentState
	history []models.StateTransition
	tokens  models.TokenUsage
	flags   models.WorkflowFlags

	// checksums maps artifact paths to content checksums; lessons collects
	// the lesson strings agents report in their results.
	checksums map[string]string
	lessons   []string

	approval    *models.ApprovalRequest
	competition []*models.AgentOutput
	rejections  map[models.AgentType]int

	// feedback is attached to the next routed request, then cleared.
	// forced overrides the next decision with a direct route.
	feedback string
	forced   *models.AgentType

	// resumePhase is the phase a lifted pause returns to.
	resumePhase models.Phase
	lastReason  string
}

func newWorkflowState(in Input) *workflowState {
	now := time.Now().UTC()
	return &workflowState{
		task: models.Task{
			ID:        in.TaskID,
			TenantID:  in.TenantID,
			ProjectID: in.ProjectID,
			Prompt:    in.Prompt,
			Phase:     models.PhaseAnalyzing,
			CreatedAt: now,
			UpdatedAt: now,
		},
		auth:       in.Auth,
		agents:     make(map[string]models.AgentState),
		checksums:  make(map[string]string),
		rejections: make(map[models.AgentType]int),
	}
}

func (st *workflowState) lastOutput() *models.AgentOutput {
	if len(st.outputs) == 0 {
		return nil
	}
	return st.outputs[len(st.outputs)-1]
}

// previousOutputs copies the output record for a routed request.
func (st *workflowState) previousOutputs() []models.AgentOutput {
	prev := make([]models.AgentOutput, 0, len(st.outputs))
	for _, out := range st.outputs {
		prev = append(prev, *out)
	}
	return prev
}

func (st *workflowState) markRunning(agt models.AgentType, feedback string) {
	key := string(agt)
	state := st.agents[key]
	state.Status = models.AgentRunRunning
	input := map[string]any{"task_id": st.task.ID}
	if feedback != "" {
		input["feedback"] = feedback
	}
	state.Input = input
	st.agents[key] = state
}

// recordOutput appends one execution to the workflow record and updates
// the per-agent snapshot and token accounting.
func (st *workflowState) recordOutput(out *models.AgentOutput) {
	st.outputs = append(st.outputs, out)
	st.tokens.Add(out.TokensUsed)
	st.noteExecution(out)
}

// noteExecution updates the per-agent snapshot without appending to the
// output record. Style competition uses it for candidate executions whose
// winner is appended later.
func (st *workflowState) noteExecution(out *models.AgentOutput) {
	key := string(out.Agent)
	state := st.agents[key]
	state.Attempts++
	state.TokensUsed += out.TokensUsed.Total()
	state.Output = out.Result
	if out.Success {
		state.Status = models.AgentRunComplete
	} else {
		state.Status = models.AgentRunFailed
	}
	st.agents[key] = state

	for _, artifact := range out.Artifacts {
		if artifact.Path == "" {
			continue
		}
		st.checksums[artifact.Path] = contentChecksum(artifact.Content)
	}
	if raw, ok := out.Result["lessons"].([]any); ok {
		for _, entry := range raw {
			if lesson, ok := entry.(string); ok && lesson != "" {
				st.lessons = append(st.lessons, lesson)
			}
		}
	}
}

// applySuccess is the bookkeeping for a routed agent that succeeded:
// completion order, retry reset, and the flags the next decision reads.
func (st *workflowState) applySuccess(out *models.AgentOutput) {
	if !st.task.HasCompleted(out.Agent) {
		st.task.CompletedAgents = append(st.task.CompletedAgents, out.Agent)
	}
	st.task.RetryCount = 0
	st.flags.HasFailures = out.Routing.HasFailures
	st.flags.NeedsApproval = out.Routing.NeedsApproval
	if out.Agent == models.AgentCompliance {
		st.flags.SecurityConcern = false
	} else if flagged, ok := out.Result["security_concern"].(bool); ok && flagged {
		st.flags.SecurityConcern = true
	}
}

// transition moves the state machine and prepends the history entry.
// Returns the prior phase and whether anything changed.
func (st *workflowState) transition(to models.Phase, reason string) (models.Phase, bool) {
	from := st.task.Phase
	if from == to {
		return from, false
	}
	now := time.Now().UTC()
	st.task.Phase = to
	st.task.UpdatedAt = now
	st.history = append([]models.StateTransition{{From: from, To: to, At: now, Reason: reason}}, st.history...)
	if len(st.history) > maxHistoryEntries {
		st.history = st.history[:maxHistoryEntries]
	}
	return from, true
}

func (st *workflowState) decisionContext() models.DecisionContext {
	return models.DecisionContext{
		Classification:  st.task.Classification,
		Phase:           st.task.Phase,
		HasFailures:     st.flags.HasFailures,
		FailureCount:    st.task.RetryCount,
		NeedsApproval:   st.flags.NeedsApproval,
		SecurityConcern: st.flags.SecurityConcern,
		CompletedAgents: slices.Clone(st.task.CompletedAgents),
		TotalTokensUsed: st.tokens.Total(),
	}
}

// snapshot captures the four checkpoint sections.
func (st *workflowState) snapshot() checkpoint.Snapshot {
	task := st.task
	task.CompletedAgents = slices.Clone(st.task.CompletedAgents)

	wf := models.WorkflowSnapshot{
		CurrentState: st.task.Phase,
		History:      slices.Clone(st.history),
		Task:         &task,
		Approval:     st.approval,
		Feedback:     st.feedback,
		TokensUsed:   st.tokens,
		Flags:        st.flags,
	}
	if len(st.history) > 0 {
		wf.PreviousState = st.history[0].From
	}
	if len(st.rejections) > 0 {
		wf.Rejections = make(map[string]int, len(st.rejections))
		for agt, count := range st.rejections {
			wf.Rejections[string(agt)] = count
		}
	}

	created := make([]string, 0, len(st.checksums))
	for path := range st.checksums {
		created = append(created, path)
	}
	sort.Strings(created)

	return checkpoint.Snapshot{
		Workflow: wf,
		Agents:   maps.Clone(st.agents),
		Context: models.ContextSnapshot{
			TaskDescription:   st.task.Prompt,
			ArtifactChecksums: maps.Clone(st.checksums),
			Lessons:           slices.Clone(st.lessons),
		},
		Filesystem: models.FilesystemSnapshot{Created: created},
	}
}

// restoreState rebuilds run state from a checkpoint. Previous outputs are
// reconstructed from the per-agent snapshots in completion order; artifact
// contents and per-execution history beyond each agent's last attempt are
// not restored.
func restoreState(cp *models.Checkpoint, auth models.AuthContext) *workflowState {
	st := &workflowState{
		task:       *cp.Workflow.Task,
		auth:       auth,
		agents:     maps.Clone(cp.Agents),
		history:    slices.Clone(cp.Workflow.History),
		tokens:     cp.Workflow.TokensUsed,
		flags:      cp.Workflow.Flags,
		checksums:  maps.Clone(cp.Context.ArtifactChecksums),
		lessons:    slices.Clone(cp.Context.Lessons),
		approval:   cp.Workflow.Approval,
		feedback:   cp.Workflow.Feedback,
		rejections: make(map[models.AgentType]int, len(cp.Workflow.Rejections)),
	}
	st.task.CompletedAgents = slices.Clone(cp.Workflow.Task.CompletedAgents)
	if st.agents == nil {
		st.agents = make(map[string]models.AgentState)
	}
	if st.checksums == nil {
		st.checksums = make(map[string]string)
	}
	for key, count := range cp.Workflow.Rejections {
		st.rejections[models.AgentType(key)] = count
	}
	for _, agt := range st.task.CompletedAgents {
		state, ok := st.agents[string(agt)]
		if !ok {
			continue
		}
		st.outputs = append(st.outputs, &models.AgentOutput{
			Agent:   agt,
			Success: true,
			Result:  state.Output,
		})
	}
	return st
}

// structuralAgents lists the agents that must complete before
// implementation can start for this classification.
func structuralAgents(c models.TaskClassification) []models.AgentType {
	var need []models.AgentType
	if c.Complexity == models.ComplexityEpic {
		need = append(need, models.AgentPlanner)
	}
	if c.RequiresArchitecture {
		need = append(need, models.AgentArchitect)
	}
	if c.RequiresDesign {
		need = append(need, models.AgentUIDesigner)
	}
	if c.RequiresCompliance {
		need = append(need, models.AgentCompliance)
	}
	return need
}

// derivePhase maps the classification and completion history onto the
// phase the decision rules expect. Implementation completing moves the
// workflow forward even when not every dev agent ran; the rule table
// decides who actually runs.
func derivePhase(c models.TaskClassification, task *models.Task) models.Phase {
	switch {
	case task.HasCompleted(models.AgentTester) || task.HasCompleted(models.AgentReviewer):
		return models.PhaseReviewing
	case task.HasCompleted(models.AgentFrontendDev) || task.HasCompleted(models.AgentBackendDev):
		return models.PhaseTesting
	}
	for _, agt := range structuralAgents(c) {
		if !task.HasCompleted(agt) {
			if agt == models.AgentPlanner {
				return models.PhasePlanning
			}
			return models.PhaseDesigning
		}
	}
	return models.PhaseBuilding
}

// contentChecksum is the first 16 hex characters of the SHA-256 of the
// artifact content, matching the checkpoint store's convention.
func contentChecksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
