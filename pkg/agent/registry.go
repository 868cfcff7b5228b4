package agent

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// AgentState is the registry's view of one agent's lifecycle.
type AgentState string

const (
	StateIdle    AgentState = "idle"
	StateRunning AgentState = "running"
	StateFailed  AgentState = "failed"
)

// Status is the per-agent execution record the registry maintains.
type Status struct {
	State               AgentState `json:"state"`
	LastExecution       *time.Time `json:"last_execution,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

// Constructor builds the concrete agent on first use.
type Constructor func() (Agent, error)

type registration struct {
	meta   Metadata
	ctor   Constructor
	agent  Agent
	status Status
}

// Registry holds the agent roster. Lifecycle: register everything at
// startup, Seal, then serve lookups concurrently. Agents are instantiated
// lazily on first GetAgent.
type Registry struct {
	mu     sync.RWMutex
	sealed bool
	regs   map[models.AgentType]*registration
}

// NewRegistry creates an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{regs: make(map[models.AgentType]*registration)}
}

// Register adds an agent under its metadata type. Registering after Seal is
// a programmer error and fails with InvariantViolation.
func (r *Registry) Register(meta Metadata, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return faults.Newf(faults.CodeInvariant, "registry is sealed, cannot register %q", meta.Type)
	}
	if !meta.Type.IsValid() {
		return faults.Newf(faults.CodeValidation, "unknown agent type %q", meta.Type)
	}
	if ctor == nil {
		return faults.Newf(faults.CodeValidation, "agent %q requires a constructor", meta.Type)
	}
	if _, exists := r.regs[meta.Type]; exists {
		return faults.Newf(faults.CodeConflict, "agent %q is already registered", meta.Type)
	}
	r.regs[meta.Type] = &registration{
		meta:   meta,
		ctor:   ctor,
		status: Status{State: StateIdle},
	}
	return nil
}

// Seal closes the registry for registration. Idempotent.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether registration is closed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// GetAgent returns the agent instance for the type, constructing it on
// first access.
func (r *Registry) GetAgent(t models.AgentType) (Agent, error) {
	r.mu.RLock()
	reg, ok := r.regs[t]
	if ok && reg.agent != nil {
		r.mu.RUnlock()
		return reg.agent, nil
	}
	r.mu.RUnlock()
	if !ok {
		return nil, faults.Newf(faults.CodeNotFound, "agent %q is not registered", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if reg.agent != nil {
		return reg.agent, nil
	}
	agent, err := reg.ctor()
	if err != nil {
		return nil, fmt.Errorf("failed to construct agent %q: %w", t, err)
	}
	if agent == nil {
		return nil, faults.Newf(faults.CodeInvariant, "constructor for agent %q returned nil", t)
	}
	reg.agent = agent
	return agent, nil
}

// Metadata returns the registered metadata for the type.
func (r *Registry) Metadata(t models.AgentType) (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[t]
	if !ok {
		return Metadata{}, faults.Newf(faults.CodeNotFound, "agent %q is not registered", t)
	}
	return reg.meta, nil
}

// List returns every registered metadata, sorted by agent type.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, reg.meta)
	}
	slices.SortFunc(out, func(a, b Metadata) int {
		return strings.Compare(string(a.Type), string(b.Type))
	})
	return out
}

// FindByCapability returns the types of every agent advertising the named
// capability, sorted.
func (r *Registry) FindByCapability(name string) []models.AgentType {
	return r.findBy(func(meta Metadata) bool {
		for _, c := range meta.Capabilities {
			if c.Name == name {
				return true
			}
		}
		return false
	})
}

// FindByInputType returns the types of every agent with a capability that
// consumes the given data type, sorted.
func (r *Registry) FindByInputType(dataType string) []models.AgentType {
	return r.findBy(func(meta Metadata) bool {
		for _, c := range meta.Capabilities {
			if slices.Contains(c.InputTypes, dataType) {
				return true
			}
		}
		return false
	})
}

// FindByOutputType returns the types of every agent with a capability that
// produces the given data type, sorted.
func (r *Registry) FindByOutputType(dataType string) []models.AgentType {
	return r.findBy(func(meta Metadata) bool {
		for _, c := range meta.Capabilities {
			if slices.Contains(c.OutputTypes, dataType) {
				return true
			}
		}
		return false
	})
}

func (r *Registry) findBy(match func(Metadata) bool) []models.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.AgentType
	for t, reg := range r.regs {
		if match(reg.meta) {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

// Status returns the execution record for the type.
func (r *Registry) Status(t models.AgentType) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[t]
	if !ok {
		return Status{}, faults.Newf(faults.CodeNotFound, "agent %q is not registered", t)
	}
	return reg.status, nil
}

// markRunning flags the agent as executing. No-op for unknown types; the
// router resolves the agent before marking.
func (r *Registry) markRunning(t models.AgentType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.regs[t]; ok {
		reg.status.State = StateRunning
	}
}

// recordResult stamps the execution outcome: success resets the failure
// streak, failure extends it.
func (r *Registry) recordResult(t models.AgentType, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[t]
	if !ok {
		return
	}
	now := time.Now().UTC()
	reg.status.LastExecution = &now
	if success {
		reg.status.State = StateIdle
		reg.status.ConsecutiveFailures = 0
	} else {
		reg.status.State = StateFailed
		reg.status.ConsecutiveFailures++
	}
}
