package commissioner

// Hub delivers events to connected clients. The websocket package provides
// the production implementation; tests can plug a recorder.
type Hub interface {
	BroadcastUpdate(eventType string, payload interface{})
}

// Event types pushed over the hub
const (
	EventTaskStatus   = "task:status"
	EventTaskProgress = "task:progress"
	EventTaskComplete = "task:complete"
	EventTaskError    = "task:error"
)

// StatusBroadcaster pushes task lifecycle events to a hub. A nil
// broadcaster is valid and drops everything.
type StatusBroadcaster struct {
	hub Hub
}

// NewStatusBroadcaster wraps a hub
func NewStatusBroadcaster(hub Hub) *StatusBroadcaster {
	return &StatusBroadcaster{hub: hub}
}

// TaskStarted announces a task entering Running
func (b *StatusBroadcaster) TaskStarted(s *TaskStatus) {
	b.send(EventTaskStatus, s)
}

// TaskProgress announces a group boundary
func (b *StatusBroadcaster) TaskProgress(s *TaskStatus) {
	b.send(EventTaskProgress, s)
}

// TaskFinished announces a terminal state
func (b *StatusBroadcaster) TaskFinished(s *TaskStatus) {
	if s.State == TaskSuccess {
		b.send(EventTaskComplete, s)
		return
	}
	b.send(EventTaskError, s)
}

func (b *StatusBroadcaster) send(eventType string, s *TaskStatus) {
	if b == nil || b.hub == nil {
		return
	}
	b.hub.BroadcastUpdate(eventType, s)
}
