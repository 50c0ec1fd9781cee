package console

import (
	"context"
	"sync"

	tea "charm.land/bubbletea/v2"

	"github.com/zhubert/plural-bridge/internal/claude"
)

// OutboundMsg is a chunk the bridge delivered to the console channel.
type OutboundMsg struct {
	Kind    claude.MessageKind
	Content string
}

// TypingMsg is sent when the bridge starts waiting on the agent.
type TypingMsg struct{}

// outboxClosedMsg stops the listener loop.
type outboxClosedMsg struct{}

// Outbox is the console's chat transport: it implements delivery.Sender
// and bridge.Typer by queueing messages for the bubbletea program.
type Outbox struct {
	channelID string
	ch        chan tea.Msg
	done      chan struct{}
	closeOnce sync.Once
}

// NewOutbox creates an Outbox for channelID. Messages for other channels
// are discarded.
func NewOutbox(channelID string, size int) *Outbox {
	if size <= 0 {
		size = 64
	}
	return &Outbox{
		channelID: channelID,
		ch:        make(chan tea.Msg, size),
		done:      make(chan struct{}),
	}
}

// ChannelID returns the channel this outbox serves.
func (o *Outbox) ChannelID() string {
	return o.channelID
}

// Send implements delivery.Sender.
func (o *Outbox) Send(ctx context.Context, channelID string, kind claude.MessageKind, content string) error {
	if channelID != o.channelID {
		return nil
	}
	return o.push(ctx, OutboundMsg{Kind: kind, Content: content})
}

// Typing implements bridge.Typer.
func (o *Outbox) Typing(ctx context.Context, channelID string) error {
	if channelID != o.channelID {
		return nil
	}
	return o.push(ctx, TypingMsg{})
}

func (o *Outbox) push(ctx context.Context, msg tea.Msg) error {
	select {
	case o.ch <- msg:
		return nil
	case <-o.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close makes pending and future sends fail and ends the listener.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// Listen returns a command that waits for the next queued message.
func (o *Outbox) Listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-o.ch:
			return msg
		case <-o.done:
			return outboxClosedMsg{}
		}
	}
}
