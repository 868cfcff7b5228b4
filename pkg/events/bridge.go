package events

import (
	"encoding/json"
	"log/slog"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// StreamBridge forwards activity stream events to WebSocket channels. Every
// event goes to its workflow's channel; workflow lifecycle events also go to
// the global workflows channel, so list views update without a per-workflow
// subscription.
type StreamBridge struct {
	sub *activity.Subscription
}

// NewStreamBridge subscribes to the stream and starts forwarding.
// Call Close to stop.
func NewStreamBridge(stream *activity.Stream, manager *ConnectionManager) *StreamBridge {
	b := &StreamBridge{}
	b.sub = stream.Subscribe(activity.Filter{}, func(event models.ActivityEvent) {
		b.forward(manager, event)
	})
	return b
}

func (b *StreamBridge) forward(manager *ConnectionManager, event models.ActivityEvent) {
	if event.WorkflowID != "" {
		b.send(manager, WorkflowChannel(event.WorkflowID), event)
	}
	if event.Category == models.CategoryWorkflow {
		b.send(manager, GlobalWorkflowsChannel, event)
	}
}

func (b *StreamBridge) send(manager *ConnectionManager, channel string, event models.ActivityEvent) {
	payload, err := json.Marshal(ActivityMessage{
		Type:    "activity.event",
		Channel: channel,
		Event:   event,
	})
	if err != nil {
		slog.Warn("Failed to marshal activity event for broadcast",
			"channel", channel, "error", err)
		return
	}
	manager.Broadcast(channel, payload)
}

// Dropped returns how many events the bridge's subscription has discarded
// because broadcasting fell behind. Exposed for health reporting.
func (b *StreamBridge) Dropped() int64 {
	return b.sub.Dropped()
}

// Close stops forwarding.
func (b *StreamBridge) Close() {
	b.sub.Close()
}
