package session

import "github.com/zhubert/plural-bridge/internal/claude"

// EventType identifies a manager event.
type EventType int

const (
	// EventMessage carries one normalized message for a channel.
	EventMessage EventType = iota
	// EventSessionEnded reports that a streaming session's process exited.
	EventSessionEnded
)

func (t EventType) String() string {
	switch t {
	case EventSessionEnded:
		return "session-ended"
	default:
		return "claude-message"
	}
}

// Event is emitted to listeners registered with Manager.OnEvent.
type Event struct {
	Type      EventType
	ChannelID string
	SessionID string
	Message   claude.Message // set for EventMessage
	Err       error          // exit reason for EventSessionEnded
}

// Listener receives manager events. Listeners run on the goroutine that
// produced the event and must not block for long.
type Listener func(Event)
