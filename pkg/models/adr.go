package models

import "time"

// ADRStatus is the lifecycle state of an architecture decision record
type ADRStatus string

const (
	ADRProposed   ADRStatus = "proposed"
	ADRAccepted   ADRStatus = "accepted"
	ADRSuperseded ADRStatus = "superseded"
)

// ADR is an architecture decision record produced by the architect agent
// and carried in the workflow's context snapshot.
type ADR struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Status       ADRStatus `json:"status"`
	Context      string    `json:"context,omitempty"`
	Decision     string    `json:"decision"`
	Consequences string    `json:"consequences,omitempty"`
	DecidedBy    AgentType `json:"decided_by,omitempty"`
	Supersedes   string    `json:"supersedes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
