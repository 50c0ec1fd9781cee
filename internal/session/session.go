package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// Mode is the process-interaction protocol of a session.
type Mode int

const (
	// ModeSynchronous spawns and waits on a fresh process per message.
	ModeSynchronous Mode = iota
	// ModeStreaming owns one long-lived process with incremental output.
	ModeStreaming
)

func (m Mode) String() string {
	if m == ModeStreaming {
		return "streaming"
	}
	return "synchronous"
}

// Stream is the process handle owned by a Streaming session.
type Stream interface {
	Stop()
	Done() <-chan struct{}
}

// Session is the binding between a chat channel and one agent conversation.
type Session struct {
	ChannelID string
	SessionID string
	Mode      Mode
	StartedAt time.Time

	stream       Stream
	lastActivity atomic.Int64

	mu     sync.Mutex
	exited bool
}

func newSession(channelID, sessionID string, mode Mode) *Session {
	now := time.Now()
	s := &Session{
		ChannelID: channelID,
		SessionID: sessionID,
		Mode:      mode,
		StartedAt: now,
	}
	s.lastActivity.Store(now.UnixNano())
	return s
}

// LastActivity is the time of the last successful exchange.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// markExited records that the session's process is gone.
func (s *Session) markExited() {
	s.mu.Lock()
	s.exited = true
	s.mu.Unlock()
}

func (s *Session) hasExited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}
