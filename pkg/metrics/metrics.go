// Package metrics holds the engine's Prometheus collectors. Everything
// registers on the default registry at import; the API server exposes it
// at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkflowsStarted counts workflow runs dispatched to a worker.
	WorkflowsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "baton",
		Subsystem: "workflows",
		Name:      "started_total",
		Help:      "Workflow runs dispatched to a worker.",
	})

	// WorkflowsCompleted counts runs reaching a terminal state, by state.
	WorkflowsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "baton",
		Subsystem: "workflows",
		Name:      "completed_total",
		Help:      "Workflow runs reaching a terminal state.",
	}, []string{"state"})

	// WorkflowsSuspended counts runs pausing for human input.
	WorkflowsSuspended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "baton",
		Subsystem: "workflows",
		Name:      "suspended_total",
		Help:      "Workflow runs suspended awaiting approval.",
	})

	// DecisionRuleHits counts routing decisions per matched rule.
	DecisionRuleHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "baton",
		Subsystem: "decision",
		Name:      "rule_hits_total",
		Help:      "Routing decisions answered by each rule.",
	}, []string{"rule_id"})

	// ProviderCallDuration observes LLM completion latency per provider.
	ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "baton",
		Subsystem: "provider",
		Name:      "call_duration_seconds",
		Help:      "LLM completion call latency.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
	}, []string{"provider"})

	// ProviderCallErrors counts failed LLM completion calls per provider.
	ProviderCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "baton",
		Subsystem: "provider",
		Name:      "call_errors_total",
		Help:      "Failed LLM completion calls.",
	}, []string{"provider"})

	// ActivityEventsEmitted counts events accepted by the activity stream.
	ActivityEventsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "baton",
		Subsystem: "activity",
		Name:      "events_emitted_total",
		Help:      "Events accepted by the activity stream.",
	})

	// ActivityEventsDropped counts events dropped from subscriber queues.
	ActivityEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "baton",
		Subsystem: "activity",
		Name:      "events_dropped_total",
		Help:      "Events dropped from full subscriber queues.",
	})

	// CheckpointWrites counts persisted checkpoints, by trigger.
	CheckpointWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "baton",
		Subsystem: "checkpoint",
		Name:      "writes_total",
		Help:      "Checkpoints persisted.",
	}, []string{"trigger"})

	// QueueDepth tracks dispatches waiting in the submission queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "baton",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Dispatches waiting in the submission queue.",
	})

	// ActiveWorkers tracks workers currently executing a dispatch.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "baton",
		Subsystem: "queue",
		Name:      "active_workers",
		Help:      "Workers currently executing a dispatch.",
	})
)
