// Package bridge turns inbound chat messages into session manager calls.
//
// The Dispatcher is the piece a chat platform adapter talks to. It filters
// out messages the bridge must never react to, handles the /claude-*
// commands, and forwards plain text to the channel's active session. Work
// that may block on the agent runs on its own goroutine so one slow channel
// never stalls the adapter's receive loop.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/delivery"
	"github.com/zhubert/plural-bridge/internal/logger"
	"github.com/zhubert/plural-bridge/internal/session"
)

// Inbound is a chat message as seen by the dispatcher.
type Inbound struct {
	ChannelID string
	AuthorID  string
	Content   string
	System    bool // Platform-generated (joins, pins, ...)
	Bot       bool // Authored by any bot account
}

// Sessions is the part of session.Manager the dispatcher drives.
type Sessions interface {
	StartSession(ctx context.Context, channelID string) (string, error)
	SendMessage(ctx context.Context, channelID, text string) error
	ResumeSession(ctx context.Context, channelID, sessionID string) error
	EndSession(channelID string) (*session.Session, bool)
	GetSession(channelID string) (*session.Session, bool)
}

// TriggerHandler processes messages the bridge does not consume.
type TriggerHandler interface {
	Process(ctx context.Context, msg Inbound) error
}

// TriggerFunc adapts a function to TriggerHandler.
type TriggerFunc func(ctx context.Context, msg Inbound) error

// Process implements TriggerHandler.
func (f TriggerFunc) Process(ctx context.Context, msg Inbound) error {
	return f(ctx, msg)
}

// Typer is optionally implemented by senders that can show a typing
// indicator while the agent works.
type Typer interface {
	Typing(ctx context.Context, channelID string) error
}

// Options configures a Dispatcher.
type Options struct {
	Sessions Sessions
	// Sender posts command replies and failures.
	Sender delivery.Sender
	// Triggers receives everything the bridge does not handle. May be nil.
	Triggers TriggerHandler
	// SelfID is the bridge's own author id; its messages are ignored.
	SelfID string
	// WorkingDir is shown in the start confirmation when set.
	WorkingDir string
}

// Dispatcher routes inbound messages. It is safe for concurrent use.
type Dispatcher struct {
	sessions   Sessions
	sender     delivery.Sender
	triggers   TriggerHandler
	selfID     string
	workingDir string
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Dispatcher. Call Close to cancel in-flight work.
func New(opts Options) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sessions:   opts.Sessions,
		sender:     opts.Sender,
		triggers:   opts.Triggers,
		selfID:     opts.SelfID,
		workingDir: opts.WorkingDir,
		log:        logger.ComponentLogger("Dispatcher"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Dispatch handles one inbound message. It returns once the message has
// been classified; agent calls continue in the background.
func (d *Dispatcher) Dispatch(msg Inbound) {
	log := d.log.With("channelID", msg.ChannelID)

	if msg.System || (d.selfID != "" && msg.AuthorID == d.selfID) {
		log.Debug("message ignored", "system", msg.System, "self", msg.AuthorID == d.selfID)
		return
	}

	if cmd, arg, ok := parseCommand(msg.Content); ok && !msg.Bot {
		log.Info("command received", "command", cmd)
		d.goWork(func(ctx context.Context) {
			d.runCommand(ctx, cmd, arg, msg)
		})
		return
	}

	if _, active := d.sessions.GetSession(msg.ChannelID); active && !msg.Bot {
		log.Debug("forwarding message to Claude session", "length", len(msg.Content))
		d.goWork(func(ctx context.Context) {
			d.forward(ctx, msg)
		})
		return
	}

	d.goWork(func(ctx context.Context) {
		d.trigger(ctx, msg)
	})
}

// Wait blocks until all background work started by Dispatch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels in-flight work and waits for it to return.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) goWork(fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn(d.ctx)
	}()
}

func (d *Dispatcher) forward(ctx context.Context, msg Inbound) {
	log := d.log.With("channelID", msg.ChannelID)

	if typer, ok := d.sender.(Typer); ok {
		if err := typer.Typing(ctx, msg.ChannelID); err != nil {
			log.Debug("typing indicator failed", "error", err)
		}
	}

	start := time.Now()
	if err := d.sessions.SendMessage(ctx, msg.ChannelID, msg.Content); err != nil {
		log.Error("error forwarding message to Claude", "error", err)
		d.replyError(ctx, msg.ChannelID, "❌ ", err)
		return
	}
	log.Debug("message forwarded to Claude", "elapsed", time.Since(start))
}

func (d *Dispatcher) trigger(ctx context.Context, msg Inbound) {
	if d.triggers == nil {
		return
	}
	if err := d.triggers.Process(ctx, msg); err != nil {
		d.log.Warn("trigger handler failed", "channelID", msg.ChannelID, "error", err)
	}
}

func (d *Dispatcher) reply(ctx context.Context, channelID string, kind claude.MessageKind, text string) {
	if err := d.sender.Send(ctx, channelID, kind, text); err != nil {
		d.log.Error("failed to send reply", "channelID", channelID, "error", err)
	}
}
