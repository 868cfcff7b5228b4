package queue

import (
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/workflow"
)

// Run is the queue's record of one workflow run: identity, lifecycle state
// and the latest engine-reported facts. While an engine is attached, reads
// overlay its live phase and token figures.
type Run struct {
	ID               string                  `json:"id"`
	TenantID         string                  `json:"tenant_id"`
	ProjectID        string                  `json:"project_id"`
	Prompt           string                  `json:"prompt"`
	State            RunState                `json:"state"`
	Phase            models.Phase            `json:"phase,omitempty"`
	Outcome          *models.Outcome         `json:"outcome,omitempty"`
	Reason           string                  `json:"reason,omitempty"`
	Error            string                  `json:"error,omitempty"`
	Approval         *models.ApprovalRequest `json:"approval,omitempty"`
	TokensUsed       models.TokenUsage       `json:"tokens_used"`
	Executions       int                     `json:"executions"`
	SlackFingerprint string                  `json:"slack_fingerprint,omitempty"`
	EnqueuedAt       time.Time               `json:"enqueued_at"`
	StartedAt        *time.Time              `json:"started_at,omitempty"`
	CompletedAt      *time.Time              `json:"completed_at,omitempty"`
}

// clone returns a copy safe to hand outside the store.
func (r Run) clone() Run {
	out := r
	if r.Outcome != nil {
		outcome := *r.Outcome
		out.Outcome = &outcome
	}
	if r.Approval != nil {
		out.Approval = cloneApproval(r.Approval)
	}
	if r.StartedAt != nil {
		at := *r.StartedAt
		out.StartedAt = &at
	}
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

func cloneApproval(req *models.ApprovalRequest) *models.ApprovalRequest {
	out := *req
	out.Options = slices.Clone(req.Options)
	out.Payload = maps.Clone(req.Payload)
	return &out
}

// runEntry couples the public record with the live engine and queue
// bookkeeping. The store mutex guards every field.
type runEntry struct {
	run      Run
	input    workflow.Input
	engine   *workflow.Engine
	threadTS string
}

// RunStore is the in-memory registry of workflow runs, shared by the pool,
// its workers and the executor. Records live for the process lifetime;
// terminal entries are replaced when their id is resubmitted.
type RunStore struct {
	mu      sync.RWMutex
	entries map[string]*runEntry
}

// NewRunStore creates an empty run registry.
func NewRunStore() *RunStore {
	return &RunStore{entries: make(map[string]*runEntry)}
}

// Get returns the run record, overlaid with live engine state when the run
// is in flight.
func (s *RunStore) Get(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return s.view(entry), nil
}

// List returns the runs for a tenant, most recently enqueued first. An
// empty tenant id matches all tenants.
func (s *RunStore) List(tenantID string) []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.entries))
	for _, entry := range s.entries {
		if tenantID != "" && entry.run.TenantID != tenantID {
			continue
		}
		out = append(out, s.view(entry))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnqueuedAt.After(out[j].EnqueuedAt)
	})
	return out
}

// view overlays the stored record with the attached engine's live status.
func (s *RunStore) view(entry *runEntry) Run {
	run := entry.run.clone()
	if entry.engine == nil {
		return run
	}
	status, ok := entry.engine.Status()
	if !ok {
		return run
	}
	run.Phase = status.Task.Phase
	run.TokensUsed = status.TokensUsed
	run.Executions = status.Executions
	if status.Task.Outcome != nil {
		outcome := *status.Task.Outcome
		run.Outcome = &outcome
	}
	if status.Approval != nil {
		run.Approval = cloneApproval(status.Approval)
	}
	return run
}

// insert registers a fresh run. An id still queued, executing or suspended
// is refused; a terminal entry is replaced.
func (s *RunStore) insert(in workflow.Input, fingerprint string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[in.TaskID]; ok && !existing.run.State.Terminal() {
		return Run{}, ErrRunActive
	}
	entry := &runEntry{
		run: Run{
			ID:               in.TaskID,
			TenantID:         in.TenantID,
			ProjectID:        in.ProjectID,
			Prompt:           in.Prompt,
			State:            RunQueued,
			SlackFingerprint: fingerprint,
			EnqueuedAt:       time.Now().UTC(),
		},
		input: in,
	}
	s.entries[in.TaskID] = entry
	return entry.run.clone(), nil
}

// remove deletes the entry, undoing an insert whose enqueue failed.
func (s *RunStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// markRunning claims a queued run for a worker. It reports false when the
// run vanished or left the queued state, in which case the dispatch must be
// dropped.
func (s *RunStore) markRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || entry.run.State != RunQueued {
		return false
	}
	entry.run.State = RunRunning
	if entry.run.StartedAt == nil {
		now := time.Now().UTC()
		entry.run.StartedAt = &now
	}
	return true
}

// markSuspended parks the run awaiting user input. The engine stays
// attached so an approval dispatch can resume it.
func (s *RunStore) markSuspended(id string, approval *models.ApprovalRequest, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return
	}
	s.persistEngineState(entry)
	entry.run.State = RunAwaitingApproval
	entry.run.Reason = reason
	entry.run.Approval = nil
	if approval != nil {
		entry.run.Approval = cloneApproval(approval)
	}
}

// markTerminal records the final state and detaches the engine. The last
// engine status is persisted first so the record keeps its phase, outcome
// and token figures.
func (s *RunStore) markTerminal(id string, state RunState, reason, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return
	}
	s.persistEngineState(entry)
	entry.run.State = state
	entry.run.Reason = reason
	entry.run.Error = errMsg
	entry.run.Approval = nil
	now := time.Now().UTC()
	entry.run.CompletedAt = &now
	entry.engine = nil
}

// persistEngineState copies the attached engine's status into the record.
// Caller holds the store lock.
func (s *RunStore) persistEngineState(entry *runEntry) {
	if entry.engine == nil {
		return
	}
	status, ok := entry.engine.Status()
	if !ok {
		return
	}
	entry.run.Phase = status.Task.Phase
	entry.run.TokensUsed = status.TokensUsed
	entry.run.Executions = status.Executions
	entry.run.Outcome = nil
	if status.Task.Outcome != nil {
		outcome := *status.Task.Outcome
		entry.run.Outcome = &outcome
	}
}

// beginApproval moves a suspended run back onto the queue for its approval
// dispatch.
func (s *RunStore) beginApproval(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrRunNotFound
	}
	if entry.run.State != RunAwaitingApproval {
		return ErrNoApprovalPending
	}
	entry.run.State = RunQueued
	return nil
}

// revertApproval undoes beginApproval when the enqueue failed.
func (s *RunStore) revertApproval(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if ok && entry.run.State == RunQueued {
		entry.run.State = RunAwaitingApproval
	}
}

// cancelIdle cancels a run that is not executing: a queued run just flips
// state, a suspended run's engine is finalized first. Executing runs are
// refused; their registered context cancel is the cancellation path.
func (s *RunStore) cancelIdle(id string) error {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return ErrRunNotFound
	}
	switch {
	case entry.run.State.Terminal():
		s.mu.Unlock()
		return ErrRunTerminal
	case entry.run.State == RunRunning:
		s.mu.Unlock()
		return ErrRunActive
	}
	engine := entry.engine
	s.mu.Unlock()

	if engine != nil {
		engine.Cancel()
	}

	// Recheck: a worker may have claimed the run while the engine was
	// finalizing. If so the worker records the terminal state.
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok = s.entries[id]
	if !ok || entry.run.State.Terminal() || entry.run.State == RunRunning {
		return nil
	}
	s.persistEngineState(entry)
	entry.run.State = RunCancelled
	entry.run.Reason = "cancelled by user"
	entry.run.Approval = nil
	now := time.Now().UTC()
	entry.run.CompletedAt = &now
	entry.engine = nil
	return nil
}

// attachEngine binds a live engine to the run for status overlay and
// approval continuation.
func (s *RunStore) attachEngine(id string, engine *workflow.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		entry.engine = engine
	}
}

// engineFor returns the attached engine, or nil.
func (s *RunStore) engineFor(id string) *workflow.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.entries[id]; ok {
		return entry.engine
	}
	return nil
}

// inputFor returns the submitted workflow input.
func (s *RunStore) inputFor(id string) (workflow.Input, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.entries[id]; ok {
		return entry.input, true
	}
	return workflow.Input{}, false
}

// setThreadTS caches the Slack thread resolved by the start notification.
func (s *RunStore) setThreadTS(id, threadTS string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		entry.threadTS = threadTS
	}
}

// threadTS returns the cached Slack thread, or empty.
func (s *RunStore) threadTS(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.entries[id]; ok {
		return entry.threadTS
	}
	return ""
}
