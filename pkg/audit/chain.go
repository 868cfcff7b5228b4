// Package audit maintains an append-only, hash-chained record of
// security-relevant actions. Every event links to its predecessor through
// a SHA-256 chain, so any in-place edit of history is detectable.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/redact"
)

// GenesisHash anchors the chain: the first event's previous hash.
var GenesisHash = strings.Repeat("0", 64)

// Sink persists audit events as they are appended to the chain.
type Sink interface {
	Write(ctx context.Context, event models.AuditEvent) error
}

// Entry is the caller-supplied part of an audit event. The log assigns
// id, sequence, timestamp and the hash fields itself.
type Entry struct {
	Category    models.AuditCategory
	Action      string
	Severity    models.Severity
	Outcome     models.AuditOutcome
	Actor       models.AuditActor
	Target      *models.AuditTarget
	SessionID   string
	ProjectID   string
	Description string
	Details     map[string]any
	Error       string
}

// Log is the append-only audit chain. All writes serialize through one
// lock; concurrent callers queue and are served in arrival order. Reads
// work on copies and never block writers for long.
type Log struct {
	mu       sync.Mutex
	events   []models.AuditEvent
	lastHash string
	nextSeq  int64
	sink     Sink
}

// NewLog creates an empty audit log. A nil sink keeps events in memory
// only.
func NewLog(sink Sink) *Log {
	return &Log{
		lastHash: GenesisHash,
		sink:     sink,
	}
}

// hashEvent computes SHA-256(previousHash || canonicalJSON(event)) where
// the event is serialized with both hash fields removed. The chain
// linkage lives entirely in the prefix.
func hashEvent(previousHash string, event models.AuditEvent) (string, error) {
	event.PreviousHash = ""
	event.Hash = ""

	raw, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to serialize audit event: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("failed to decode audit event: %w", err)
	}
	delete(generic, "previous_hash")
	delete(generic, "hash")

	canonical, err := canonicalJSON(generic)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Append adds an entry to the chain and returns the completed event.
// Details and error text are redacted before anything is hashed or
// persisted, so secrets never become part of the permanent record.
func (l *Log) Append(ctx context.Context, entry Entry) (models.AuditEvent, error) {
	if entry.Action == "" {
		return models.AuditEvent{}, faults.New(faults.CodeValidation, "audit entry requires an action")
	}
	if !entry.Actor.Type.IsValid() {
		return models.AuditEvent{}, faults.Newf(faults.CodeValidation,
			"audit entry has unknown actor type %q", entry.Actor.Type)
	}
	if len(entry.Description) > models.MaxAuditDescriptionLength {
		return models.AuditEvent{}, faults.Newf(faults.CodeValidation,
			"audit description exceeds %d characters", models.MaxAuditDescriptionLength)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event := models.AuditEvent{
		ID:           uuid.NewString(),
		Sequence:     l.nextSeq,
		Timestamp:    time.Now().UTC(),
		Category:     entry.Category,
		Action:       entry.Action,
		Severity:     entry.Severity,
		Outcome:      entry.Outcome,
		Actor:        entry.Actor,
		Target:       entry.Target,
		SessionID:    entry.SessionID,
		ProjectID:    entry.ProjectID,
		Description:  entry.Description,
		Details:      redact.Map(entry.Details),
		Error:        redact.String(entry.Error),
		PreviousHash: l.lastHash,
	}
	if event.Severity == "" {
		event.Severity = models.SeverityInfo
	}

	hash, err := hashEvent(event.PreviousHash, event)
	if err != nil {
		return models.AuditEvent{}, err
	}
	event.Hash = hash

	if size, err := serializedSize(event); err != nil {
		return models.AuditEvent{}, err
	} else if size > models.MaxAuditEventSize {
		return models.AuditEvent{}, faults.Newf(faults.CodeValidation,
			"audit event size %d exceeds %d bytes", size, models.MaxAuditEventSize)
	}

	if l.sink != nil {
		if err := l.sink.Write(ctx, event); err != nil {
			// The chain must not advance past an unpersisted event.
			return models.AuditEvent{}, fmt.Errorf("failed to persist audit event: %w", err)
		}
	}

	l.events = append(l.events, event)
	l.lastHash = event.Hash
	l.nextSeq++

	slog.Debug("Audit event recorded",
		"sequence", event.Sequence,
		"category", event.Category,
		"action", event.Action,
		"outcome", event.Outcome)
	return event, nil
}

func serializedSize(event models.AuditEvent) (int, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to size audit event: %w", err)
	}
	return len(raw), nil
}

// Update always fails: audit events are immutable once appended.
func (l *Log) Update(sequence int64) error {
	return faults.Newf(faults.CodeInvariant,
		"audit events are append-only; update of sequence %d refused", sequence)
}

// Delete always fails: audit events are immutable once appended.
func (l *Log) Delete(sequence int64) error {
	return faults.Newf(faults.CodeInvariant,
		"audit events are append-only; delete of sequence %d refused", sequence)
}

// Len returns the number of events in the chain
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Events returns a copy of the whole chain in sequence order
func (l *Log) Events() []models.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.AuditEvent(nil), l.events...)
}

// QueryOptions filter and paginate audit queries. Zero values leave the
// corresponding dimension unconstrained.
type QueryOptions struct {
	From        *time.Time
	To          *time.Time
	Categories  []models.AuditCategory
	MinSeverity models.Severity
	MaxSeverity models.Severity
	Outcomes    []models.AuditOutcome
	ActorID     string
	TargetID    string
	SessionID   string
	ProjectID   string
	Limit       int
	Offset      int
}

// Query returns matching events in ascending sequence order
func (l *Log) Query(opts QueryOptions) []models.AuditEvent {
	events := l.Events()

	var out []models.AuditEvent
	for _, e := range events {
		if !matches(e, opts) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func matches(e models.AuditEvent, opts QueryOptions) bool {
	if opts.From != nil && e.Timestamp.Before(*opts.From) {
		return false
	}
	if opts.To != nil && e.Timestamp.After(*opts.To) {
		return false
	}
	if len(opts.Categories) > 0 && !containsCategory(opts.Categories, e.Category) {
		return false
	}
	if opts.MinSeverity != "" && !e.Severity.AtLeast(opts.MinSeverity) {
		return false
	}
	if opts.MaxSeverity != "" && e.Severity.Rank() > opts.MaxSeverity.Rank() {
		return false
	}
	if len(opts.Outcomes) > 0 && !containsOutcome(opts.Outcomes, e.Outcome) {
		return false
	}
	if opts.ActorID != "" && e.Actor.ID != opts.ActorID {
		return false
	}
	if opts.TargetID != "" && (e.Target == nil || e.Target.ID != opts.TargetID) {
		return false
	}
	if opts.SessionID != "" && e.SessionID != opts.SessionID {
		return false
	}
	if opts.ProjectID != "" && e.ProjectID != opts.ProjectID {
		return false
	}
	return true
}

func containsCategory(set []models.AuditCategory, c models.AuditCategory) bool {
	for _, s := range set {
		if s == c {
			return true
		}
	}
	return false
}

func containsOutcome(set []models.AuditOutcome, o models.AuditOutcome) bool {
	for _, s := range set {
		if s == o {
			return true
		}
	}
	return false
}

// IntegrityReport is the result of re-walking the hash chain
type IntegrityReport struct {
	Valid           bool    `json:"valid"`
	CheckedEvents   int     `json:"checked_events"`
	InvalidEvents   []int64 `json:"invalid_events,omitempty"`
	ChainBroken     bool    `json:"chain_broken"`
	ChainBreakPoint *int64  `json:"chain_break_point,omitempty"`
}

// VerifyIntegrity re-walks the entire chain
func (l *Log) VerifyIntegrity() (*IntegrityReport, error) {
	return VerifyEvents(l.Events())
}

// VerifyIntegrityRange re-walks the chain between two sequences inclusive
func (l *Log) VerifyIntegrityRange(fromSeq, toSeq int64) (*IntegrityReport, error) {
	var slice []models.AuditEvent
	for _, e := range l.Events() {
		if e.Sequence >= fromSeq && e.Sequence <= toSeq {
			slice = append(slice, e)
		}
	}
	return verifyEvents(slice, fromSeq == 0)
}

// VerifyEvents checks an event sequence loaded from any source. The
// first event is expected to carry the genesis previous hash.
func VerifyEvents(events []models.AuditEvent) (*IntegrityReport, error) {
	return verifyEvents(events, true)
}

func verifyEvents(events []models.AuditEvent, fromGenesis bool) (*IntegrityReport, error) {
	report := &IntegrityReport{Valid: true}

	prevHash := GenesisHash
	for i, e := range events {
		report.CheckedEvents++

		// An event's own hash must be reproducible from its recorded
		// previous hash and its canonical serialization.
		recomputed, err := hashEvent(e.PreviousHash, e)
		if err != nil {
			return nil, err
		}
		if recomputed != e.Hash {
			report.Valid = false
			report.InvalidEvents = append(report.InvalidEvents, e.Sequence)
		}

		// Linkage: each previous hash must equal the predecessor's hash.
		if i > 0 || fromGenesis {
			if e.PreviousHash != prevHash && !report.ChainBroken {
				report.Valid = false
				report.ChainBroken = true
				seq := e.Sequence
				report.ChainBreakPoint = &seq
			}
		}
		prevHash = e.Hash
	}
	return report, nil
}
