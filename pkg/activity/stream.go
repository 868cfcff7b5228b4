// Package activity implements the ordered activity event stream: per-session
// monotonic sequencing into a bounded ring buffer, filtered subscriber
// fan-out with per-subscriber queues, and pluggable persistence.
package activity

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/metrics"
	"github.com/codeready-toolchain/baton/pkg/models"
)

const (
	// DefaultMaxEventsInMemory bounds the in-memory ring buffer.
	DefaultMaxEventsInMemory = 1000
	// DefaultSubscriberQueueSize bounds each subscriber's delivery queue.
	// When a handler falls this far behind, further events for that
	// subscriber are dropped and counted.
	DefaultSubscriberQueueSize = 256
)

// Persistence stores emitted events beyond the in-memory ring buffer.
// Implementations must be safe for concurrent use.
type Persistence interface {
	Append(ctx context.Context, event models.ActivityEvent) error
	Query(ctx context.Context, opts QueryOptions) ([]models.ActivityEvent, error)
}

// QueryOptions narrows persisted event loads. Zero-valued fields match
// everything; results are always ascending by sequence.
type QueryOptions struct {
	SessionID string
	From      *time.Time
	To        *time.Time
	Filter    Filter
	Limit     int
}

// Filter selects events by conjunction: every non-empty field must match.
type Filter struct {
	Types      []models.ActivityType
	Categories []models.ActivityCategory
	Severities []models.Severity
	AgentIDs   []string
	WorkflowID string
}

// Matches reports whether the event passes every populated filter field.
func (f Filter) Matches(event models.ActivityEvent) bool {
	if f.WorkflowID != "" && event.WorkflowID != f.WorkflowID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, event.Type) {
		return false
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, event.Category) {
		return false
	}
	if len(f.Severities) > 0 && !slices.Contains(f.Severities, event.Severity) {
		return false
	}
	if len(f.AgentIDs) > 0 && !slices.Contains(f.AgentIDs, event.AgentID) {
		return false
	}
	return true
}

// Handler consumes delivered events. Handlers run on a per-subscription
// goroutine, so a slow handler delays only its own subscription.
type Handler func(event models.ActivityEvent)

// Subscription is one registered (filter, handler) pair.
type Subscription struct {
	id      string
	filter  Filter
	queue   chan models.ActivityEvent
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
	stream  *Stream
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Dropped returns how many events were discarded because the subscriber's
// queue was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and stops its delivery goroutine.
// Events still queued at close time are discarded.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.stream.remove(s.id)
	})
}

func (s *Subscription) pump(handler Handler) {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.queue:
			handler(event)
		}
	}
}

// StreamConfig tunes the stream. Zero values select the defaults.
type StreamConfig struct {
	MaxEventsInMemory   int
	SubscriberQueueSize int
}

// Stream assigns per-session sequence numbers, keeps a bounded ring of
// recent events, and fans matching events out to subscribers. Producers
// never block: slow subscribers lose events instead.
type Stream struct {
	persist   Persistence
	queueSize int

	mu        sync.Mutex
	buffer    []models.ActivityEvent
	head      int
	count     int
	sequences map[string]int64
	subs      map[string]*Subscription
	emitted   int64

	persistFailures atomic.Int64
}

// NewStream creates a stream. persist may be nil, in which case events live
// only in the ring buffer.
func NewStream(cfg StreamConfig, persist Persistence) *Stream {
	capacity := cfg.MaxEventsInMemory
	if capacity <= 0 {
		capacity = DefaultMaxEventsInMemory
	}
	queueSize := cfg.SubscriberQueueSize
	if queueSize <= 0 {
		queueSize = DefaultSubscriberQueueSize
	}
	return &Stream{
		persist:   persist,
		queueSize: queueSize,
		buffer:    make([]models.ActivityEvent, capacity),
		sequences: make(map[string]int64),
		subs:      make(map[string]*Subscription),
	}
}

// Emit stamps the event with the next sequence number for its session, a UTC
// timestamp and an id, stores it in the ring buffer, persists it when a
// persistence is configured, and delivers it to matching subscribers.
// The returned event carries the assigned fields.
//
// Sequence assignment and buffer insertion happen under one lock; persistence
// and handler delivery happen outside it. A persistence failure is logged and
// counted but does not fail the emit: the event is already ordered and
// visible to subscribers.
func (s *Stream) Emit(ctx context.Context, event models.ActivityEvent) (models.ActivityEvent, error) {
	if event.SessionID == "" {
		return models.ActivityEvent{}, faults.New(faults.CodeValidation, "activity event requires a session id")
	}
	if !event.Type.IsValid() {
		return models.ActivityEvent{}, faults.New(faults.CodeValidation, "unknown activity type").
			WithDetail("type", string(event.Type))
	}
	if !event.Category.IsValid() {
		event.Category = event.Type.Category()
	}
	if !event.Severity.IsValid() {
		event.Severity = models.SeverityInfo
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	s.mu.Lock()
	seq := s.sequences[event.SessionID] + 1
	s.sequences[event.SessionID] = seq
	event.Sequence = seq
	event.Timestamp = time.Now().UTC()

	if s.count < len(s.buffer) {
		s.buffer[(s.head+s.count)%len(s.buffer)] = event
		s.count++
	} else {
		s.buffer[s.head] = event
		s.head = (s.head + 1) % len(s.buffer)
	}
	s.emitted++
	metrics.ActivityEventsEmitted.Inc()

	targets := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.filter.Matches(event) {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.Append(ctx, event); err != nil {
			s.persistFailures.Add(1)
			slog.Warn("failed to persist activity event",
				"session_id", event.SessionID,
				"sequence", event.Sequence,
				"type", event.Type,
				"error", err)
		}
	}

	for _, sub := range targets {
		select {
		case sub.queue <- event:
		default:
			sub.dropped.Add(1)
			metrics.ActivityEventsDropped.Inc()
		}
	}

	return event, nil
}

// Subscribe registers a handler for events passing the filter. The handler
// runs on its own goroutine; call Close on the returned subscription to stop
// delivery. handler must be non-nil.
func (s *Stream) Subscribe(filter Filter, handler Handler) *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		filter: filter,
		queue:  make(chan models.ActivityEvent, s.queueSize),
		done:   make(chan struct{}),
		stream: s,
	}

	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()

	go sub.pump(handler)
	return sub
}

func (s *Stream) remove(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// Recent returns up to limit of the most recent buffered events, ascending
// by emit order. An empty sessionID matches all sessions; limit <= 0 means
// no limit.
func (s *Stream) Recent(sessionID string, limit int) []models.ActivityEvent {
	s.mu.Lock()
	events := make([]models.ActivityEvent, 0, s.count)
	for i := 0; i < s.count; i++ {
		event := s.buffer[(s.head+i)%len(s.buffer)]
		if sessionID != "" && event.SessionID != sessionID {
			continue
		}
		events = append(events, event)
	}
	s.mu.Unlock()

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

// SubscriptionStats describes one subscriber's delivery state.
type SubscriptionStats struct {
	ID      string `json:"id"`
	Queued  int    `json:"queued"`
	Dropped int64  `json:"dropped"`
}

// Stats is a point-in-time snapshot of the stream.
type Stats struct {
	EventsEmitted   int64               `json:"events_emitted"`
	EventsBuffered  int                 `json:"events_buffered"`
	BufferCapacity  int                 `json:"buffer_capacity"`
	ActiveSessions  int                 `json:"active_sessions"`
	PersistFailures int64               `json:"persist_failures"`
	Subscribers     []SubscriptionStats `json:"subscribers"`
}

// Stats reports emit, buffer and per-subscriber drop counters.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	stats := Stats{
		EventsEmitted:  s.emitted,
		EventsBuffered: s.count,
		BufferCapacity: len(s.buffer),
		ActiveSessions: len(s.sequences),
		Subscribers:    make([]SubscriptionStats, 0, len(s.subs)),
	}
	for _, sub := range s.subs {
		stats.Subscribers = append(stats.Subscribers, SubscriptionStats{
			ID:      sub.id,
			Queued:  len(sub.queue),
			Dropped: sub.dropped.Load(),
		})
	}
	s.mu.Unlock()

	stats.PersistFailures = s.persistFailures.Load()
	sort.Slice(stats.Subscribers, func(i, j int) bool {
		return stats.Subscribers[i].ID < stats.Subscribers[j].ID
	})
	return stats
}

// Close stops every subscription. The stream remains usable for Emit, which
// will simply find no subscribers.
func (s *Stream) Close() {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
