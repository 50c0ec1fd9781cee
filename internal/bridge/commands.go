package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/errors"
)

// Bridge commands. Other slash-prefixed text (e.g. /help, /model) is the
// agent's own command set and is forwarded like any message.
const (
	CommandStart  = "claude-start"
	CommandStop   = "claude-stop"
	CommandResume = "claude-resume"
	CommandStatus = "claude-status"
)

const alreadyActiveNotice = "⚠️ A Claude session is already active in this channel. Use `/claude-stop` to end it first."

const noSessionNotice = "❌ No active Claude session in this channel."

// parseCommand recognizes "/claude-<name> [arg]".
func parseCommand(content string) (cmd, arg string, ok bool) {
	content = strings.TrimSpace(content)
	rest, found := strings.CutPrefix(content, "/")
	if !found {
		return "", "", false
	}
	name, arg, _ := strings.Cut(rest, " ")
	name = strings.ToLower(name)
	switch name {
	case CommandStart, CommandStop, CommandResume, CommandStatus:
		return name, strings.TrimSpace(arg), true
	}
	return "", "", false
}

func (d *Dispatcher) runCommand(ctx context.Context, cmd, arg string, msg Inbound) {
	switch cmd {
	case CommandStart:
		d.startCommand(ctx, msg.ChannelID)
	case CommandStop:
		d.stopCommand(ctx, msg.ChannelID)
	case CommandResume:
		d.resumeCommand(ctx, msg.ChannelID, arg)
	case CommandStatus:
		d.statusCommand(ctx, msg.ChannelID)
	}
}

func (d *Dispatcher) startCommand(ctx context.Context, channelID string) {
	if _, ok := d.sessions.GetSession(channelID); ok {
		d.reply(ctx, channelID, claude.KindSystem, alreadyActiveNotice)
		return
	}

	sessionID, err := d.sessions.StartSession(ctx, channelID)
	if err != nil {
		d.log.Error("failed to start session", "channelID", channelID, "error", err)
		if errors.Is(err, errors.KindAlreadyActive) {
			d.reply(ctx, channelID, claude.KindSystem, alreadyActiveNotice)
			return
		}
		d.replyError(ctx, channelID, "❌ Failed to start Claude session: ", err)
		return
	}

	var b strings.Builder
	b.WriteString("🟢 **Claude Session Started**\n")
	b.WriteString("Claude is now active in this channel. Type messages to chat with Claude!\n")
	fmt.Fprintf(&b, "Session ID: `%s`\n", sessionID)
	b.WriteString("Claude Commands: `/help` - Show Claude help, `/model` - Change model, `/clear` - Clear context\n")
	if d.workingDir != "" {
		fmt.Fprintf(&b, "Working Directory: `%s`\n", d.workingDir)
	}
	b.WriteString("_Session will end if the bot restarts_")
	d.reply(ctx, channelID, claude.KindSystem, b.String())
}

func (d *Dispatcher) stopCommand(ctx context.Context, channelID string) {
	sess, ok := d.sessions.EndSession(channelID)
	if !ok {
		d.reply(ctx, channelID, claude.KindSystem, noSessionNotice)
		return
	}

	d.reply(ctx, channelID, claude.KindSystem, fmt.Sprintf(
		"🔴 **Claude Session Ended**\nThe Claude session has been terminated.\nPrevious Session ID: `%s`",
		sess.SessionID))
}

func (d *Dispatcher) resumeCommand(ctx context.Context, channelID, sessionID string) {
	if sessionID == "" {
		d.reply(ctx, channelID, claude.KindError, "❌ Usage: `/claude-resume <session_id>`")
		return
	}
	if _, ok := d.sessions.GetSession(channelID); ok {
		d.reply(ctx, channelID, claude.KindSystem, alreadyActiveNotice)
		return
	}

	if err := d.sessions.ResumeSession(ctx, channelID, sessionID); err != nil {
		d.log.Error("failed to resume session", "channelID", channelID, "sessionID", sessionID, "error", err)
		d.replyError(ctx, channelID, "❌ Failed to resume Claude session: ", err)
		return
	}

	d.reply(ctx, channelID, claude.KindSystem, fmt.Sprintf(
		"📎 **Claude Session Resumed**\nPrevious Claude session has been resumed. Continue your conversation!\nSession ID: `%s`\n_Session will end if the bot restarts_",
		sessionID))
}

func (d *Dispatcher) statusCommand(ctx context.Context, channelID string) {
	sess, ok := d.sessions.GetSession(channelID)
	if !ok {
		d.reply(ctx, channelID, claude.KindSystem, noSessionNotice)
		return
	}

	d.reply(ctx, channelID, claude.KindSystem, fmt.Sprintf(
		"🟢 Claude session `%s` is active (%s).\nStarted: %s\nLast activity: %s",
		sess.SessionID,
		sess.Mode,
		sess.StartedAt.Format(time.RFC3339),
		sess.LastActivity().Format(time.RFC3339)))
}

// replyError posts prefix followed by the user-facing description of err.
func (d *Dispatcher) replyError(ctx context.Context, channelID, prefix string, err error) {
	d.reply(ctx, channelID, claude.KindError, prefix+errors.UserMessage(err))
}
