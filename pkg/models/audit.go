package models

import "time"

// AuditActorType identifies who performed an audited action
type AuditActorType string

const (
	ActorUser     AuditActorType = "user"
	ActorAgent    AuditActorType = "agent"
	ActorSystem   AuditActorType = "system"
	ActorExternal AuditActorType = "external"
)

// IsValid checks if the actor type is valid
func (t AuditActorType) IsValid() bool {
	return t == ActorUser || t == ActorAgent || t == ActorSystem || t == ActorExternal
}

// AuditCategory groups audit events for compliance reporting
type AuditCategory string

const (
	AuditAuthentication   AuditCategory = "authentication"
	AuditAuthorization    AuditCategory = "authorization"
	AuditDataAccess       AuditCategory = "data_access"
	AuditDataModification AuditCategory = "data_modification"
	AuditWorkflow         AuditCategory = "workflow"
	AuditAgentExecution   AuditCategory = "agent_execution"
	AuditSecurity         AuditCategory = "security"
	AuditConfiguration    AuditCategory = "configuration"
	AuditSystem           AuditCategory = "system"
)

// AuditOutcome records whether the audited action succeeded
type AuditOutcome string

const (
	OutcomeOK      AuditOutcome = "success"
	OutcomeFailure AuditOutcome = "failure"
	OutcomeDenied  AuditOutcome = "denied"
)

// AuditActor is the principal behind an audited action
type AuditActor struct {
	Type AuditActorType `json:"type"`
	ID   string         `json:"id"`
}

// AuditTarget is the optional object an audited action touched
type AuditTarget struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// MaxAuditDescriptionLength caps the free-text description of an audit event.
const MaxAuditDescriptionLength = 10_000

// MaxAuditEventSize caps the serialized size of a single audit event (1 MiB).
const MaxAuditEventSize = 1 * 1024 * 1024

// AuditEvent is one hash-chained entry in the audit log.
//
// Hash discipline: Hash = SHA-256(PreviousHash || canonical JSON of the
// event with the hash fields removed), hex-encoded. The first event's
// PreviousHash is sixty-four zeros. Events are append-only; update and
// delete are invariant violations.
type AuditEvent struct {
	ID           string         `json:"id"`
	Sequence     int64          `json:"sequence"`
	Timestamp    time.Time      `json:"timestamp"`
	Category     AuditCategory  `json:"category"`
	Action       string         `json:"action"`
	Severity     Severity       `json:"severity"`
	Outcome      AuditOutcome   `json:"outcome"`
	Actor        AuditActor     `json:"actor"`
	Target       *AuditTarget   `json:"target,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	ProjectID    string         `json:"project_id,omitempty"`
	Description  string         `json:"description"`
	Details      map[string]any `json:"details,omitempty"`
	Error        string         `json:"error,omitempty"`
	PreviousHash string         `json:"previous_hash"`
	Hash         string         `json:"hash"`
}
