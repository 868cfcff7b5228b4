// Package events provides WebSocket-based streaming of activity events to
// dashboard clients. A ConnectionManager tracks client connections and
// channel subscriptions, and a StreamBridge fans events from the in-process
// activity stream out to the matching channels.
package events

import (
	"strings"

	"github.com/codeready-toolchain/baton/pkg/models"
)

// GlobalWorkflowsChannel carries workflow lifecycle events for every
// workflow. Dashboard list views subscribe here instead of opening one
// channel per workflow.
const GlobalWorkflowsChannel = "workflows"

const workflowChannelPrefix = "workflow:"

// WorkflowChannel returns the channel name for a single workflow's events.
func WorkflowChannel(workflowID string) string {
	return workflowChannelPrefix + workflowID
}

// ParseWorkflowChannel extracts the workflow ID from a per-workflow channel
// name. Returns false for the global channel or anything else.
func ParseWorkflowChannel(channel string) (string, bool) {
	id, found := strings.CutPrefix(channel, workflowChannelPrefix)
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// ClientMessage is a message received from a WebSocket client.
type ClientMessage struct {
	Action       string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel      string `json:"channel,omitempty"`       // target channel
	LastSequence *int64 `json:"last_sequence,omitempty"` // for catchup: last sequence the client has seen
}

// ActivityMessage wraps an activity event for delivery on a channel. The
// event's sequence number is the client's catchup cursor.
type ActivityMessage struct {
	Type    string               `json:"type"` // always "activity.event"
	Channel string               `json:"channel"`
	Event   models.ActivityEvent `json:"event"`
}
