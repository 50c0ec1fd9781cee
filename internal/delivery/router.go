package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/logger"
	"github.com/zhubert/plural-bridge/internal/session"
)

// Sender posts one chunk of text to a chat channel.
type Sender interface {
	Send(ctx context.Context, channelID string, kind claude.MessageKind, content string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, channelID string, kind claude.MessageKind, content string) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, channelID string, kind claude.MessageKind, content string) error {
	return f(ctx, channelID, kind, content)
}

// Notifier is told when a streaming session ends.
type Notifier interface {
	SessionEnded(channelID, sessionID string) error
}

// defaultQueueSize bounds how many events may wait for delivery before
// producers block.
const defaultQueueSize = 256

// RouterOptions configures a Router.
type RouterOptions struct {
	Sender    Sender
	MaxLength int
	// Notifier, when set, is called for every session-ended event.
	Notifier  Notifier
	QueueSize int
}

// Router consumes manager events in order and delivers them through a
// Sender, splitting long messages into chunks.
type Router struct {
	sender    Sender
	maxLength int
	notifier  Notifier
	log       *slog.Logger

	queue   chan session.Event
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRouter creates a Router. Call Run to start delivery.
func NewRouter(opts RouterOptions) *Router {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Router{
		sender:    opts.Sender,
		maxLength: opts.MaxLength,
		notifier:  opts.Notifier,
		log:       logger.ComponentLogger("Router"),
		queue:     make(chan session.Event, opts.QueueSize),
		stopped:   make(chan struct{}),
	}
}

// Listen enqueues ev for delivery. It has the session.Listener signature so
// it can be passed directly to Manager.OnEvent. Events arriving after Close
// or after Run has returned are dropped.
func (r *Router) Listen(ev session.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.log.Debug("dropping event after close", "type", ev.Type.String(), "channelID", ev.ChannelID)
		return
	}
	select {
	case r.queue <- ev:
	case <-r.stopped:
		r.log.Debug("dropping event, router stopped", "type", ev.Type.String(), "channelID", ev.ChannelID)
	}
}

// Close stops accepting events. Run returns after draining the queue.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
}

// Run delivers queued events until Close has been called and the queue is
// drained, or ctx is done.
func (r *Router) Run(ctx context.Context) error {
	defer close(r.stopped)
	r.log.Debug("router started")

	for {
		select {
		case <-ctx.Done():
			r.log.Debug("router stopped", "reason", ctx.Err())
			return ctx.Err()
		case ev, ok := <-r.queue:
			if !ok {
				r.log.Debug("router drained")
				return nil
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Router) handle(ctx context.Context, ev session.Event) {
	switch ev.Type {
	case session.EventMessage:
		r.deliver(ctx, ev.Message)
	case session.EventSessionEnded:
		r.log.Info("session ended", "channelID", ev.ChannelID, "sessionID", ev.SessionID, "reason", ev.Err)
		notice := fmt.Sprintf("🔴 Claude session `%s` has ended.", ev.SessionID)
		if msg, ok := claude.NewMessage(ev.ChannelID, notice, claude.KindSystem); ok {
			r.deliver(ctx, msg)
		}
		if r.notifier != nil {
			if err := r.notifier.SessionEnded(ev.ChannelID, ev.SessionID); err != nil {
				r.log.Debug("notification failed", "error", err)
			}
		}
	}
}

// deliver sends msg in chunks, logging and continuing past send failures.
func (r *Router) deliver(ctx context.Context, msg claude.Message) {
	chunks := Split(msg.Content, r.maxLength)
	for i, chunk := range chunks {
		if err := r.sender.Send(ctx, msg.ChannelID, msg.Kind, chunk); err != nil {
			r.log.Error("failed to send message",
				"channelID", msg.ChannelID,
				"chunk", i+1,
				"chunks", len(chunks),
				"error", err)
		}
	}
	if len(chunks) > 1 {
		r.log.Debug("message sent in chunks", "channelID", msg.ChannelID, "chunks", len(chunks))
	}
}
