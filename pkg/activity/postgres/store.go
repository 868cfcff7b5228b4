// Package postgres persists activity events in PostgreSQL through the shared
// database client. It implements activity.Persistence.
package postgres

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/database"
	"github.com/codeready-toolchain/baton/pkg/models"
)

var _ activity.Persistence = (*Store)(nil)

const eventColumns = `id, session_id, sequence, occurred_at, type, category, severity,
	workflow_id, agent_id, title, message, details, progress, duration_ms,
	parent_id, correlation_id`

// Store reads and writes activity events in the activity_events table.
type Store struct {
	db *stdsql.DB
}

// NewStore creates a store backed by the shared database client.
func NewStore(client *database.Client) *Store {
	return &Store{db: client.DB()}
}

// NewStoreFromDB wraps a raw connection (useful for testing).
func NewStoreFromDB(db *stdsql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one event. The (session_id, sequence) pair is unique, so
// replaying an already-persisted event fails rather than duplicating it.
func (s *Store) Append(ctx context.Context, event models.ActivityEvent) error {
	var details, progress any
	if event.Details != nil {
		encoded, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to encode activity details: %w", err)
		}
		details = encoded
	}
	if event.Progress != nil {
		encoded, err := json.Marshal(event.Progress)
		if err != nil {
			return fmt.Errorf("failed to encode activity progress: %w", err)
		}
		progress = encoded
	}
	var durationMs any
	if event.DurationMs != nil {
		durationMs = *event.DurationMs
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		event.ID, event.SessionID, event.Sequence, event.Timestamp,
		string(event.Type), string(event.Category), string(event.Severity),
		event.WorkflowID, event.AgentID, event.Title, event.Message,
		details, progress, durationMs, event.ParentID, event.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity event: %w", err)
	}
	return nil
}

// Query loads events matching the options, ascending by sequence.
func (s *Store) Query(ctx context.Context, opts activity.QueryOptions) ([]models.ActivityEvent, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if opts.SessionID != "" {
		add("session_id = $%d", opts.SessionID)
	}
	if opts.From != nil {
		add("occurred_at >= $%d", *opts.From)
	}
	if opts.To != nil {
		add("occurred_at <= $%d", *opts.To)
	}
	if opts.Filter.WorkflowID != "" {
		add("workflow_id = $%d", opts.Filter.WorkflowID)
	}
	where = appendIn(where, &args, "type", opts.Filter.Types)
	where = appendIn(where, &args, "category", opts.Filter.Categories)
	where = appendIn(where, &args, "severity", opts.Filter.Severities)
	where = appendIn(where, &args, "agent_id", opts.Filter.AgentIDs)

	query := `SELECT ` + eventColumns + ` FROM activity_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sequence ASC, occurred_at ASC, session_id ASC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

// Search performs full-text search over event titles and messages, most
// recent first. An empty sessionID searches all sessions.
func (s *Store) Search(ctx context.Context, text, sessionID string, limit int) ([]models.ActivityEvent, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + eventColumns + ` FROM activity_events
		WHERE to_tsvector('english', title || ' ' || message) @@ plainto_tsquery('english', $1)`
	args := []any{text}
	if sessionID != "" {
		args = append(args, sessionID)
		query += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search activity events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

func appendIn[T ~string](where []string, args *[]any, column string, values []T) []string {
	if len(values) == 0 {
		return where
	}
	placeholders := make([]string, len(values))
	for i, value := range values {
		*args = append(*args, string(value))
		placeholders[i] = fmt.Sprintf("$%d", len(*args))
	}
	return append(where, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
}

func scanEvents(rows *stdsql.Rows) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent
	for rows.Next() {
		var (
			event      models.ActivityEvent
			details    []byte
			progress   []byte
			durationMs stdsql.NullInt64
		)
		err := rows.Scan(
			&event.ID, &event.SessionID, &event.Sequence, &event.Timestamp,
			&event.Type, &event.Category, &event.Severity,
			&event.WorkflowID, &event.AgentID, &event.Title, &event.Message,
			&details, &progress, &durationMs,
			&event.ParentID, &event.CorrelationID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		event.Timestamp = event.Timestamp.UTC()
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("failed to decode activity details: %w", err)
			}
		}
		if len(progress) > 0 {
			var p models.Progress
			if err := json.Unmarshal(progress, &p); err != nil {
				return nil, fmt.Errorf("failed to decode activity progress: %w", err)
			}
			event.Progress = &p
		}
		if durationMs.Valid {
			v := durationMs.Int64
			event.DurationMs = &v
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activity events: %w", err)
	}
	return events, nil
}
