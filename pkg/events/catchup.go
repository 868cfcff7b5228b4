package events

import (
	"context"
	"sort"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// StreamCatchup answers catchup queries from the activity store, falling
// back to the stream's in-memory ring when no persistence is configured.
//
// Sequences are per session. A workflow channel normally carries a single
// session's events, so "sequence > since" is a correct resume cursor; on the
// global channel the cursor is best-effort and clients reload over REST when
// they detect gaps.
type StreamCatchup struct {
	stream *activity.Stream
	store  activity.Persistence
}

// NewStreamCatchup creates a catchup querier. store may be nil.
func NewStreamCatchup(stream *activity.Stream, store activity.Persistence) *StreamCatchup {
	return &StreamCatchup{stream: stream, store: store}
}

// CatchupEvents returns up to limit events on the channel with sequence
// greater than sinceSequence, ascending by sequence. Unknown channels
// return no events.
func (s *StreamCatchup) CatchupEvents(ctx context.Context, channel string, sinceSequence int64, limit int) ([]models.ActivityEvent, error) {
	var filter activity.Filter
	if workflowID, ok := ParseWorkflowChannel(channel); ok {
		filter.WorkflowID = workflowID
	} else if channel == GlobalWorkflowsChannel {
		filter.Categories = []models.ActivityCategory{models.CategoryWorkflow}
	} else {
		return nil, nil
	}

	// The store query cannot cap results itself: its limit keeps the oldest
	// events, but the catchup cursor needs everything after sinceSequence.
	events, err := s.load(ctx, filter)
	if err != nil {
		return nil, err
	}

	matched := make([]models.ActivityEvent, 0, len(events))
	for _, event := range events {
		if event.Sequence > sinceSequence {
			matched = append(matched, event)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Sequence < matched[j].Sequence
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *StreamCatchup) load(ctx context.Context, filter activity.Filter) ([]models.ActivityEvent, error) {
	if s.store != nil {
		return s.store.Query(ctx, activity.QueryOptions{Filter: filter})
	}

	recent := s.stream.Recent("", 0)
	matched := make([]models.ActivityEvent, 0, len(recent))
	for _, event := range recent {
		if filter.Matches(event) {
			matched = append(matched, event)
		}
	}
	return matched, nil
}
