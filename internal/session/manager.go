package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/errors"
	"github.com/zhubert/plural-bridge/internal/logger"
)

// DefaultGreetingPrompt is sent as the first exchange of every new session.
const DefaultGreetingPrompt = "You are now connected to a Discord channel. I'll forward messages from Discord users to you. Please respond naturally and helpfully. When you're ready, just say hello!"

// Exchanger runs one synchronous request/response round trip.
type Exchanger interface {
	Run(ctx context.Context, channelID, prompt string) ([]claude.Message, error)
}

// StreamOpener starts a streaming process resuming sessionID for channelID.
// This allows tests to inject fake streams.
type StreamOpener func(ctx context.Context, channelID, sessionID string, callbacks claude.StreamCallbacks) (Stream, error)

// NewStreamOpener returns a StreamOpener that launches real processes
// using base for the binary, working directory, extra args and grace period.
func NewStreamOpener(base claude.StreamConfig) StreamOpener {
	return func(ctx context.Context, channelID, sessionID string, callbacks claude.StreamCallbacks) (Stream, error) {
		cfg := base
		cfg.ChannelID = channelID
		cfg.SessionID = sessionID
		s, err := claude.OpenStream(ctx, cfg, callbacks)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Options configures a Manager.
type Options struct {
	Registry       *Registry
	Exchanger      Exchanger
	OpenStream     StreamOpener
	GreetingPrompt string
}

// Manager owns the lifecycle of every channel's session.
type Manager struct {
	registry   *Registry
	exchanger  Exchanger
	openStream StreamOpener
	greeting   string
	log        *slog.Logger

	// ctx bounds the lifetime of streams; canceled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	locksMu sync.Mutex
	locks   map[string]*semaphore.Weighted

	listenersMu sync.RWMutex
	listeners   []Listener
}

// NewManager creates a Manager. Registry defaults to a fresh one and the
// greeting prompt to DefaultGreetingPrompt; Exchanger and OpenStream are
// required.
func NewManager(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.GreetingPrompt == "" {
		opts.GreetingPrompt = DefaultGreetingPrompt
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry:   opts.Registry,
		exchanger:  opts.Exchanger,
		openStream: opts.OpenStream,
		greeting:   opts.GreetingPrompt,
		log:        logger.ComponentLogger("SessionManager"),
		ctx:        ctx,
		cancel:     cancel,
		locks:      make(map[string]*semaphore.Weighted),
	}
}

// Registry returns the registry the manager stores sessions in.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// OnEvent registers a listener for all subsequent events.
func (m *Manager) OnEvent(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) emit(ev Event) {
	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (m *Manager) emitMessages(sessionID string, msgs []claude.Message) {
	for _, msg := range msgs {
		m.emit(Event{Type: EventMessage, ChannelID: msg.ChannelID, SessionID: sessionID, Message: msg})
	}
}

// channelLock returns the semaphore serializing exchanges for channelID.
func (m *Manager) channelLock(channelID string) *semaphore.Weighted {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[channelID]
	if !ok {
		l = semaphore.NewWeighted(1)
		m.locks[channelID] = l
	}
	return l
}

func (m *Manager) acquire(ctx context.Context, channelID string) (func(), error) {
	l := m.channelLock(channelID)
	if err := l.Acquire(ctx, 1); err != nil {
		return nil, errors.ExchangeCanceled(err)
	}
	return func() { l.Release(1) }, nil
}

// sessionLog returns a logger keyed by both the channel and the session.
func sessionLog(channelID, sessionID string) *slog.Logger {
	return logger.WithSession(sessionID).With("component", "SessionManager", "channelID", channelID)
}

// StartSession starts a Synchronous session for channelID and returns its
// id. The greeting exchange must succeed before the session is stored;
// its reply is emitted before StartSession returns.
func (m *Manager) StartSession(ctx context.Context, channelID string) (string, error) {
	log := m.log.With("channelID", channelID)

	if _, ok := m.registry.Lookup(channelID); ok {
		return "", errors.AlreadyActive(channelID)
	}

	release, err := m.acquire(ctx, channelID)
	if err != nil {
		return "", err
	}
	defer release()

	if _, ok := m.registry.Lookup(channelID); ok {
		return "", errors.AlreadyActive(channelID)
	}

	log.Info("starting session")
	msgs, err := m.exchanger.Run(ctx, channelID, m.greeting)
	if err != nil {
		log.Error("greeting exchange failed", "error", err)
		return "", err
	}

	sessionID := fmt.Sprintf("%s-%s", channelID, uuid.Must(uuid.NewV7()).String())
	m.endSession(channelID)
	m.registry.Put(newSession(channelID, sessionID, ModeSynchronous))
	log = sessionLog(channelID, sessionID)
	log.Info("session started")

	if len(msgs) == 0 {
		log.Warn("greeting produced no output")
	}
	m.emitMessages(sessionID, msgs)
	return sessionID, nil
}

// SendMessage forwards text to the channel's Synchronous session and emits
// the reply. Exchanges on the same channel run one at a time. A failed
// exchange leaves the session as it was.
func (m *Manager) SendMessage(ctx context.Context, channelID, text string) error {
	sess, ok := m.registry.Lookup(channelID)
	if !ok {
		return errors.NoActiveSession(channelID)
	}
	log := sessionLog(channelID, sess.SessionID)
	if sess.Mode != ModeSynchronous {
		return errors.ModeMismatch(channelID, sess.Mode.String())
	}

	release, err := m.acquire(ctx, channelID)
	if err != nil {
		return err
	}
	defer release()

	// The session may have been ended or replaced while we waited.
	if cur, ok := m.registry.Lookup(channelID); !ok || cur != sess {
		return errors.NoActiveSession(channelID)
	}

	log.Debug("forwarding message", "length", len(text))
	msgs, err := m.exchanger.Run(ctx, channelID, text)
	if err != nil {
		log.Error("exchange failed", "error", err)
		return err
	}

	sess.touch()
	if len(msgs) == 0 {
		log.Warn("exchange produced no output")
	}
	m.emitMessages(sess.SessionID, msgs)
	return nil
}

// ResumeSession replaces whatever session channelID has with a Streaming
// session attached to sessionID.
func (m *Manager) ResumeSession(ctx context.Context, channelID, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.E(errors.Op("session.Resume"), errors.KindInvalid, "session id is required")
	}
	log := sessionLog(channelID, sessionID)

	release, err := m.acquire(ctx, channelID)
	if err != nil {
		return err
	}
	defer release()

	m.endSession(channelID)

	log.Info("resuming session")
	sess := newSession(channelID, sessionID, ModeStreaming)
	stream, err := m.openStream(m.ctx, channelID, sessionID, claude.StreamCallbacks{
		OnMessage: func(msg claude.Message) {
			m.emit(Event{Type: EventMessage, ChannelID: channelID, SessionID: sessionID, Message: msg})
		},
		OnExit: func(exitErr error) {
			m.handleStreamExit(sess, exitErr)
		},
	})
	if err != nil {
		log.Error("failed to open stream", "error", err)
		return err
	}
	sess.stream = stream
	m.registry.Put(sess)

	// The process may have exited before the session was stored.
	if sess.hasExited() {
		m.registry.CompareAndRemove(sess)
	}
	return nil
}

func (m *Manager) handleStreamExit(sess *Session, err error) {
	sess.markExited()
	removed := m.registry.CompareAndRemove(sess)
	sessionLog(sess.ChannelID, sess.SessionID).Info("stream exited", "removed", removed, "reason", err)
	m.emit(Event{Type: EventSessionEnded, ChannelID: sess.ChannelID, SessionID: sess.SessionID, Err: err})
}

// EndSession removes the channel's session, stopping its process if it
// has one. It returns the ended session, or false if there was none.
func (m *Manager) EndSession(channelID string) (*Session, bool) {
	return m.endSession(channelID)
}

func (m *Manager) endSession(channelID string) (*Session, bool) {
	sess, ok := m.registry.Lookup(channelID)
	if !ok {
		return nil, false
	}
	if !m.registry.CompareAndRemove(sess) {
		return nil, false
	}

	sessionLog(channelID, sess.SessionID).Info("ending session", "mode", sess.Mode.String())
	if sess.stream != nil {
		sess.stream.Stop()
	}
	return sess, true
}

// GetSession returns the live session for channelID.
func (m *Manager) GetSession(channelID string) (*Session, bool) {
	return m.registry.Lookup(channelID)
}

// Sessions returns a snapshot of all live sessions.
func (m *Manager) Sessions() []*Session {
	return m.registry.List()
}

// Shutdown ends every session concurrently and releases stream resources.
// It returns ctx.Err() if ctx ends before all sessions are down.
func (m *Manager) Shutdown(ctx context.Context) error {
	sessions := m.registry.List()
	m.log.Info("shutting down", "sessions", len(sessions))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		channelID := sess.ChannelID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m.endSession(channelID)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	m.cancel()

	m.log.Info("shutdown complete", "elapsed", time.Since(start), "error", err)
	return err
}
