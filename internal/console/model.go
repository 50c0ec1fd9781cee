// Package console is a terminal chat surface for the bridge. It behaves
// like a single chat channel: typed lines go through the dispatcher exactly
// as a platform adapter's messages would, and everything the bridge sends
// back arrives through an Outbox.
package console

import (
	"fmt"
	"log/slog"
	"strings"

	"charm.land/bubbles/v2/textinput"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/zhubert/plural-bridge/internal/bridge"
	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/clipboard"
	"github.com/zhubert/plural-bridge/internal/keys"
	"github.com/zhubert/plural-bridge/internal/logger"
	"github.com/zhubert/plural-bridge/internal/session"
)

// ConsoleAuthorID is the author id attached to typed messages.
const ConsoleAuthorID = "console-user"

// copyText writes to the system clipboard. Replaced in tests.
var copyText = clipboard.WriteText

// SessionLookup reports the channel's live session.
type SessionLookup interface {
	GetSession(channelID string) (*session.Session, bool)
}

// Options configures a Model.
type Options struct {
	Dispatch   func(bridge.Inbound)
	Sessions   SessionLookup
	Outbox     *Outbox
	WorkingDir string
}

// copiedMsg reports the result of a clipboard write.
type copiedMsg struct {
	sessionID string
	err       error
}

type role int

const (
	roleUser role = iota
	roleClaude
	roleBridge
	roleError
)

type entry struct {
	role    role
	content string
}

// Model is the bubbletea model for the console chat.
type Model struct {
	channelID  string
	workingDir string
	dispatch   func(bridge.Inbound)
	sessions   SessionLookup
	outbox     *Outbox
	log        *slog.Logger

	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int

	entries []entry
	waiting bool
	flash   string
}

// New creates the console model.
func New(opts Options) *Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message or /claude-start..."
	ti.CharLimit = 0
	ti.Prompt = "> "
	ti.Focus()

	vp := viewport.New()
	vp.MouseWheelEnabled = true
	vp.MouseWheelDelta = 3

	m := &Model{
		channelID:  opts.Outbox.ChannelID(),
		workingDir: opts.WorkingDir,
		dispatch:   opts.Dispatch,
		sessions:   opts.Sessions,
		outbox:     opts.Outbox,
		log:        logger.WithChannel(opts.Outbox.ChannelID()).With("component", "Console"),
		viewport:   vp,
		input:      ti,
	}
	m.updateContent()
	return m
}

// Init starts listening for bridge output.
func (m *Model) Init() tea.Cmd {
	return m.outbox.Listen()
}

// Update handles terminal and bridge events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case OutboundMsg:
		m.waiting = false
		m.entries = append(m.entries, entry{role: roleFor(msg.Kind), content: msg.Content})
		m.updateContent()
		return m, m.outbox.Listen()

	case TypingMsg:
		m.waiting = true
		return m, m.outbox.Listen()

	case outboxClosedMsg:
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.log.Warn("failed to copy session id", "error", msg.err)
			m.flash = "Copy failed: " + msg.err.Error()
		} else {
			m.flash = "Copied " + msg.sessionID
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keys.CtrlC, keys.CtrlD:
		return m, tea.Quit

	case keys.Escape:
		m.input.Reset()
		return m, nil

	case keys.CtrlL:
		m.entries = nil
		m.flash = ""
		m.updateContent()
		return m, nil

	case keys.Enter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		m.flash = ""
		m.entries = append(m.entries, entry{role: roleUser, content: text})
		m.updateContent()
		m.log.Debug("dispatching console input", "length", len(text))
		m.dispatch(bridge.Inbound{ChannelID: m.channelID, AuthorID: ConsoleAuthorID, Content: text})
		return m, nil

	case keys.CtrlY:
		sess, ok := m.sessions.GetSession(m.channelID)
		if !ok {
			m.flash = "No session to copy"
			return m, nil
		}
		id := sess.SessionID
		return m, func() tea.Msg {
			return copiedMsg{sessionID: id, err: copyText(id)}
		}

	case keys.PgUp, keys.PgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setSize(width, height int) {
	m.width = width
	m.height = height

	// header + status line + bordered input (3 rows)
	vpHeight := height - 5
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.SetWidth(width)
	m.viewport.SetHeight(vpHeight)
	m.input.SetWidth(max(width-6, 1))
	m.updateContent()
}

func roleFor(kind claude.MessageKind) role {
	switch kind {
	case claude.KindError:
		return roleError
	case claude.KindSystem:
		return roleBridge
	default:
		return roleClaude
	}
}

func (r role) label() string {
	switch r {
	case roleUser:
		return UserLabelStyle.Render("You")
	case roleClaude:
		return AssistantLabelStyle.Render("Claude")
	case roleError:
		return ErrorLabelStyle.Render("Error")
	default:
		return SystemLabelStyle.Render("Bridge")
	}
}

func (r role) kind() claude.MessageKind {
	switch r {
	case roleError:
		return claude.KindError
	case roleBridge:
		return claude.KindSystem
	default:
		return claude.KindMessage
	}
}

// updateContent re-renders the transcript into the viewport.
func (m *Model) updateContent() {
	if len(m.entries) == 0 {
		m.viewport.SetContent(StatusStyle.Render("No messages yet. Type /claude-start to begin a session."))
		return
	}

	width := m.viewport.Width()
	var sb strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(e.role.label())
		sb.WriteString("\n")
		sb.WriteString(renderBody(e.role.kind(), e.content, width))
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

// statusLine describes the channel's session and any transient notice.
func (m *Model) statusLine() string {
	var parts []string
	if sess, ok := m.sessions.GetSession(m.channelID); ok {
		parts = append(parts, fmt.Sprintf("%s session %s", sess.Mode, sess.SessionID))
	} else {
		parts = append(parts, "no session")
	}
	if m.waiting {
		parts = append(parts, "Claude is thinking...")
	}
	if m.flash != "" {
		parts = append(parts, m.flash)
	}
	parts = append(parts, keys.Help)
	return strings.Join(parts, " · ")
}

// View renders the console.
func (m *Model) View() tea.View {
	var v tea.View
	v.AltScreen = true
	v.SetContent(m.render())
	return v
}

func (m *Model) render() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := "Plural Bridge · " + m.channelID
	if m.workingDir != "" {
		title += " · " + m.workingDir
	}
	header := HeaderStyle.Width(m.width).Render(truncate(title, m.width-2))
	status := StatusStyle.Render(truncate(m.statusLine(), m.width-2))
	input := InputStyle.Width(m.width - 2).Render(m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		input,
		status,
	)
}

// Transcript returns the plain text of every entry, oldest first.
func (m *Model) Transcript() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.content
	}
	return out
}
