package ws

import (
	"encoding/json"
	"log/slog"

	"github.com/splax/taskboard/internal/service/task"
)

// TaskFeed publishes task events to the owner's websocket subscribers.
type TaskFeed struct {
	hub    *Hub
	logger *slog.Logger
}

// NewTaskFeed wraps hub as a task.Publisher.
func NewTaskFeed(hub *Hub, logger *slog.Logger) TaskFeed {
	return TaskFeed{hub: hub, logger: logger}
}

// Publish implements task.Publisher.
func (f TaskFeed) Publish(ownerID string, event task.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		f.logger.Warn("failed to marshal task event", "error", err, "type", event.Type)
		return
	}
	f.hub.Broadcast(ownerID, data)
}

// Hub returns the underlying hub for HTTP handlers.
func (f TaskFeed) Hub() *Hub {
	return f.hub
}

var _ task.Publisher = TaskFeed{}
