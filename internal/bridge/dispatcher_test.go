package bridge

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/errors"
	"github.com/zhubert/plural-bridge/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sent struct {
	channelID string
	kind      claude.MessageKind
	content   string
}

// recorder is a delivery.Sender and Typer that keeps everything it is given.
type recorder struct {
	mu      sync.Mutex
	msgs    []sent
	typing  []string
	sendErr error
}

func (r *recorder) Send(ctx context.Context, channelID string, kind claude.MessageKind, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{channelID, kind, content})
	return r.sendErr
}

func (r *recorder) Typing(ctx context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing = append(r.typing, channelID)
	return nil
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.msgs...)
}

func (r *recorder) last(t *testing.T) sent {
	t.Helper()
	msgs := r.all()
	require.NotEmpty(t, msgs, "expected a reply")
	return msgs[len(msgs)-1]
}

type exchangerFunc func(ctx context.Context, channelID, prompt string) ([]claude.Message, error)

func (f exchangerFunc) Run(ctx context.Context, channelID, prompt string) ([]claude.Message, error) {
	return f(ctx, channelID, prompt)
}

type idleStream struct {
	once sync.Once
	done chan struct{}
}

func (s *idleStream) Stop()                 { s.once.Do(func() { close(s.done) }) }
func (s *idleStream) Done() <-chan struct{} { return s.done }

type harness struct {
	manager    *session.Manager
	dispatcher *Dispatcher
	sender     *recorder
	prompts    chan string
	triggered  chan Inbound
}

func newHarness(t *testing.T, exchange exchangerFunc, openErr error) *harness {
	t.Helper()
	h := &harness{
		sender:    &recorder{},
		prompts:   make(chan string, 16),
		triggered: make(chan Inbound, 16),
	}
	if exchange == nil {
		exchange = func(ctx context.Context, channelID, prompt string) ([]claude.Message, error) {
			h.prompts <- prompt
			return []claude.Message{{ChannelID: channelID, Content: "ok", Kind: claude.KindMessage}}, nil
		}
	}

	h.manager = session.NewManager(session.Options{
		Exchanger: exchange,
		OpenStream: func(ctx context.Context, channelID, sessionID string, cb claude.StreamCallbacks) (session.Stream, error) {
			if openErr != nil {
				return nil, openErr
			}
			return &idleStream{done: make(chan struct{})}, nil
		},
		GreetingPrompt: "hello?",
	})
	h.dispatcher = New(Options{
		Sessions: h.manager,
		Sender:   h.sender,
		Triggers: TriggerFunc(func(ctx context.Context, msg Inbound) error {
			h.triggered <- msg
			return nil
		}),
		SelfID:     "bot-self",
		WorkingDir: "/srv/project",
	})

	t.Cleanup(func() {
		h.dispatcher.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.manager.Shutdown(ctx)
	})
	return h
}

func (h *harness) send(content string) {
	h.dispatcher.Dispatch(Inbound{ChannelID: "C1", AuthorID: "user-1", Content: content})
	h.dispatcher.Wait()
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		wantCmd string
		wantArg string
		wantOK  bool
	}{
		{"/claude-start", CommandStart, "", true},
		{"  /claude-stop  ", CommandStop, "", true},
		{"/claude-resume abc-123", CommandResume, "abc-123", true},
		{"/claude-resume   abc-123  ", CommandResume, "abc-123", true},
		{"/CLAUDE-STATUS", CommandStatus, "", true},
		{"/help", "", "", false},
		{"claude-start", "", "", false},
		{"hello", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, arg, ok := parseCommand(tt.input)
			if cmd != tt.wantCmd || arg != tt.wantArg || ok != tt.wantOK {
				t.Errorf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.input, cmd, arg, ok, tt.wantCmd, tt.wantArg, tt.wantOK)
			}
		})
	}
}

func TestDispatch_IgnoresSystemAndSelf(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.dispatcher.Dispatch(Inbound{ChannelID: "C1", AuthorID: "user-1", Content: "/claude-start", System: true})
	h.dispatcher.Dispatch(Inbound{ChannelID: "C1", AuthorID: "bot-self", Content: "/claude-start"})
	h.dispatcher.Wait()

	assert.Empty(t, h.sender.all())
	assert.Empty(t, h.triggered)
	_, ok := h.manager.GetSession("C1")
	assert.False(t, ok)
}

func TestDispatch_NoSessionGoesToTriggers(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.send("just chatting")

	require.Len(t, h.triggered, 1)
	assert.Equal(t, "just chatting", (<-h.triggered).Content)
	assert.Empty(t, h.sender.all())
}

func TestStartCommand(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.send("/claude-start")

	sess, ok := h.manager.GetSession("C1")
	require.True(t, ok)
	assert.Equal(t, "hello?", <-h.prompts)

	reply := h.sender.last(t)
	assert.Equal(t, claude.KindSystem, reply.kind)
	assert.Contains(t, reply.content, "Claude Session Started")
	assert.Contains(t, reply.content, "`"+sess.SessionID+"`")
	assert.Contains(t, reply.content, "Working Directory: `/srv/project`")
	assert.Contains(t, reply.content, "Session will end if the bot restarts")

	h.send("/claude-start")
	assert.Equal(t, alreadyActiveNotice, h.sender.last(t).content)
}

func TestStartCommand_Failure(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, channelID, prompt string) ([]claude.Message, error) {
		return nil, errors.LaunchFailed("claude", stderrors.New("not found"))
	}, nil)

	h.send("/claude-start")

	reply := h.sender.last(t)
	assert.Equal(t, claude.KindError, reply.kind)
	assert.True(t, strings.HasPrefix(reply.content, "❌ Failed to start Claude session: "), reply.content)
	assert.Contains(t, reply.content, "Make sure Claude CLI is installed")
	_, ok := h.manager.GetSession("C1")
	assert.False(t, ok)
}

func TestStopCommand(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.send("/claude-stop")
	assert.Equal(t, noSessionNotice, h.sender.last(t).content)

	h.send("/claude-start")
	sess, ok := h.manager.GetSession("C1")
	require.True(t, ok)

	h.send("/claude-stop")
	reply := h.sender.last(t)
	assert.Contains(t, reply.content, "Claude Session Ended")
	assert.Contains(t, reply.content, "Previous Session ID: `"+sess.SessionID+"`")
	_, ok = h.manager.GetSession("C1")
	assert.False(t, ok)
}

func TestResumeCommand(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.send("/claude-resume")
	assert.Contains(t, h.sender.last(t).content, "Usage")

	h.send("/claude-resume abc-123")
	reply := h.sender.last(t)
	assert.Contains(t, reply.content, "Claude Session Resumed")
	assert.Contains(t, reply.content, "`abc-123`")

	sess, ok := h.manager.GetSession("C1")
	require.True(t, ok)
	assert.Equal(t, session.ModeStreaming, sess.Mode)

	h.send("/claude-resume other")
	assert.Equal(t, alreadyActiveNotice, h.sender.last(t).content)
}

func TestResumeCommand_Failure(t *testing.T) {
	h := newHarness(t, nil, errors.LaunchFailed("claude", stderrors.New("permission denied")))

	h.send("/claude-resume abc-123")

	reply := h.sender.last(t)
	assert.Equal(t, claude.KindError, reply.kind)
	assert.True(t, strings.HasPrefix(reply.content, "❌ Failed to resume Claude session: "), reply.content)
}

func TestStatusCommand(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.send("/claude-status")
	assert.Equal(t, noSessionNotice, h.sender.last(t).content)

	h.send("/claude-start")
	h.send("/claude-status")
	reply := h.sender.last(t)
	assert.Contains(t, reply.content, "is active (synchronous)")
}

func TestForward_ActiveSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.send("/claude-start")
	<-h.prompts

	h.send("what is 2+2?")

	assert.Equal(t, "what is 2+2?", <-h.prompts)
	assert.Empty(t, h.triggered, "messages for an active session must not reach triggers")
	h.sender.mu.Lock()
	assert.Equal(t, []string{"C1"}, h.sender.typing)
	h.sender.mu.Unlock()
}

func TestForward_AgentCommandsPassThrough(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.send("/claude-start")
	<-h.prompts

	h.send("/model")
	assert.Equal(t, "/model", <-h.prompts)
}

func TestForward_BotMessagesGoToTriggers(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.send("/claude-start")
	<-h.prompts

	h.dispatcher.Dispatch(Inbound{ChannelID: "C1", AuthorID: "other-bot", Content: "beep", Bot: true})
	h.dispatcher.Wait()

	require.Len(t, h.triggered, 1)
	assert.Empty(t, h.prompts)
}

func TestForward_StreamingSessionReportsMismatch(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.send("/claude-resume abc")

	h.send("hello")

	reply := h.sender.last(t)
	assert.Equal(t, claude.KindError, reply.kind)
	assert.Equal(t, "❌ "+errors.UserMessage(errors.ModeMismatch("C1", "streaming")), reply.content)
}

func TestForward_TimeoutIsReported(t *testing.T) {
	var calls int
	var mu sync.Mutex
	h := newHarness(t, func(ctx context.Context, channelID, prompt string) ([]claude.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls > 1 {
			return nil, errors.ExchangeTimeout(time.Minute)
		}
		return nil, nil
	}, nil)

	h.send("/claude-start")
	h.send("slow question")

	reply := h.sender.last(t)
	assert.Equal(t, claude.KindError, reply.kind)
	assert.Contains(t, reply.content, "did not respond in time")
	_, ok := h.manager.GetSession("C1")
	assert.True(t, ok, "a failed exchange must keep the session")
}

func TestDispatch_DoesNotBlockOnSlowExchange(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, channelID, prompt string) ([]claude.Message, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	}, nil)

	returned := make(chan struct{})
	go func() {
		h.dispatcher.Dispatch(Inbound{ChannelID: "C1", AuthorID: "u", Content: "/claude-start"})
		h.dispatcher.Dispatch(Inbound{ChannelID: "C2", AuthorID: "u", Content: "unrelated"})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a running exchange")
	}

	select {
	case msg := <-h.triggered:
		assert.Equal(t, "C2", msg.ChannelID)
	case <-time.After(2 * time.Second):
		t.Fatal("other channel was not serviced while an exchange was running")
	}

	close(release)
	h.dispatcher.Wait()
}
