package cmd

import (
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/console"
)

var chatChannel string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with Claude in an interactive console",
	Long: `Opens a terminal chat that behaves like a single chat channel.

Type /claude-start to begin a session, /claude-resume <id> to attach to an existing
Claude conversation, /claude-status to inspect it and /claude-stop to end it. Any
other text is forwarded to the active session.

Keys:
  enter    send
  esc      clear the input line
  ctrl+y   copy the session id
  ctrl+l   clear the transcript
  pgup/dn  scroll
  ctrl+c   quit`,
	RunE: runChat,
}

func init() {
	addChatFlags(chatCmd)
	rootCmd.AddCommand(chatCmd)
}

func addChatFlags(c *cobra.Command) {
	c.Flags().StringVar(&chatChannel, "channel", "console", "Channel id the console acts as")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := claude.CheckBinary(cfg.ClaudeBinary); err != nil {
		return fmt.Errorf("%v\n\nInstall the Claude CLI or set claude_binary in the config", err)
	}

	outbox := console.NewOutbox(chatChannel, 0)
	rt := newRuntime(cfg, outbox)
	defer func() {
		outbox.Close()
		_ = rt.Close()
	}()

	m := console.New(console.Options{
		Dispatch:   rt.dispatcher.Dispatch,
		Sessions:   rt.manager,
		Outbox:     outbox,
		WorkingDir: cfg.GetWorkingDir(),
	})

	if _, err := tea.NewProgram(m).Run(); err != nil {
		return fmt.Errorf("error running console: %w", err)
	}
	return nil
}
