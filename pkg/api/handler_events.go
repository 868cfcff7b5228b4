package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// queryEventsHandler handles GET /api/v1/events.
// Filters: session_id, workflow_id, type, category, severity, agent_id
// (comma-separated), from, to (RFC3339), limit. Reads the persisted
// store when one is configured, otherwise the in-memory ring, which
// only reaches back as far as its capacity.
func (s *Server) queryEventsHandler(c *gin.Context) {
	var filter activity.Filter

	for _, raw := range splitParam(c.Query("type")) {
		eventType := models.ActivityType(raw)
		if !eventType.IsValid() {
			respondError(c, faults.Newf(faults.CodeValidation, "unknown activity type %q", raw))
			return
		}
		filter.Types = append(filter.Types, eventType)
	}
	for _, raw := range splitParam(c.Query("category")) {
		category := models.ActivityCategory(raw)
		if !category.IsValid() {
			respondError(c, faults.Newf(faults.CodeValidation, "unknown activity category %q", raw))
			return
		}
		filter.Categories = append(filter.Categories, category)
	}
	for _, raw := range splitParam(c.Query("severity")) {
		severity := models.Severity(raw)
		if !severity.IsValid() {
			respondError(c, faults.Newf(faults.CodeValidation, "unknown severity %q", raw))
			return
		}
		filter.Severities = append(filter.Severities, severity)
	}
	filter.AgentIDs = splitParam(c.Query("agent_id"))
	filter.WorkflowID = c.Query("workflow_id")

	from, ok := parseTimeParam(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(c, "to")
	if !ok {
		return
	}
	limit, ok := parseIntParam(c, "limit", defaultEventLimit, 1, maxEventLimit)
	if !ok {
		return
	}

	opts := activity.QueryOptions{
		SessionID: c.Query("session_id"),
		From:      from,
		To:        to,
		Filter:    filter,
		Limit:     limit,
	}

	events, err := s.loadEvents(c, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, &EventQueryResponse{Events: events, Count: len(events)})
}

// loadEvents queries the persisted store, falling back to the stream's
// in-memory ring.
func (s *Server) loadEvents(c *gin.Context, opts activity.QueryOptions) ([]models.ActivityEvent, error) {
	if s.activityStore != nil {
		return s.activityStore.Query(c.Request.Context(), opts)
	}
	if s.stream == nil {
		return nil, faults.New(faults.CodeConflict, "no activity store is configured")
	}

	var out []models.ActivityEvent
	for _, event := range s.stream.Recent(opts.SessionID, 0) {
		if opts.From != nil && event.Timestamp.Before(*opts.From) {
			continue
		}
		if opts.To != nil && event.Timestamp.After(*opts.To) {
			continue
		}
		if !opts.Filter.Matches(event) {
			continue
		}
		out = append(out, event)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
