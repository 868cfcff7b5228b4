// Package agent provides the agent framework for baton: the capability
// registry, the tenant-isolated execution router, and the contract roster of
// specialized agents backed by an LLM provider.
package agent

import (
	"context"

	"github.com/codeready-toolchain/baton/pkg/models"
)

// Agent is one specialized executor in the roster.
// Agents are registered once and shared across workflows; implementations
// must be safe for concurrent Execute calls.
type Agent interface {
	// Metadata describes the agent's capabilities and context needs.
	Metadata() Metadata

	// Execute runs one task under the request's auth context.
	//
	// Returns (*AgentOutput, nil) on completion — check Output.Success and
	// Output.Error for agent-level failures (e.g., provider errors, rejected
	// results). Returns (nil, error) only for infrastructure failures where
	// no meaningful output exists (e.g., context cancelled before the agent
	// produced anything).
	Execute(ctx context.Context, req *Request) (*models.AgentOutput, error)
}

// Capability is one named operation an agent advertises, with the data
// types it consumes and produces.
type Capability struct {
	Name        string   `json:"name"`
	InputTypes  []string `json:"input_types,omitempty"`
	OutputTypes []string `json:"output_types,omitempty"`
}

// Metadata declares what an agent is and needs. It is registered alongside
// the constructor and queryable without instantiating the agent.
type Metadata struct {
	Type            models.AgentType            `json:"type"`
	Name            string                      `json:"name"`
	Capabilities    []Capability                `json:"capabilities,omitempty"`
	RequiredContext []models.ContextRequirement `json:"required_context,omitempty"`
	OutputSchemaID  string                      `json:"output_schema_id,omitempty"`
}

// Request is one routed execution handed to an agent.
type Request struct {
	ExecutionID string           `json:"execution_id"`
	Agent       models.AgentType `json:"agent"`
	Task        models.Task      `json:"task"`
	Context     RequestContext   `json:"context"`
}

// RequestContext is everything an agent may draw on during execution.
type RequestContext struct {
	TenantID        string                `json:"tenant_id"`
	Curated         models.CuratedContext `json:"curated"`
	PreviousOutputs []models.AgentOutput  `json:"previous_outputs,omitempty"`
	Constraints     map[string]any        `json:"constraints,omitempty"`
	Auth            models.AuthContext    `json:"auth"`

	// Feedback carries the user's rejection feedback when a previously
	// paused workflow re-routes to the originating agent.
	Feedback string `json:"feedback,omitempty"`
}
