package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/errors"
	"github.com/zhubert/plural-bridge/internal/session"
)

var resumeChannel string

var resumeCmd = &cobra.Command{
	Use:   "resume SESSION_ID",
	Short: "Attach to a Claude conversation and stream its output",
	Long: `Starts 'claude --resume SESSION_ID' and prints every streamed record until the
process exits or you press Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeChannel, "channel", "cli", "Channel id attached to the session")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := claude.CheckBinary(cfg.ClaudeBinary); err != nil {
		return fmt.Errorf("%v\n\nInstall the Claude CLI or set claude_binary in the config", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := newRuntime(cfg, &writerSender{w: cmd.OutOrStdout()})
	defer func() { _ = rt.Close() }()

	ended := make(chan struct{})
	var endOnce sync.Once
	rt.manager.OnEvent(func(ev session.Event) {
		if ev.Type == session.EventSessionEnded && ev.ChannelID == resumeChannel {
			endOnce.Do(func() { close(ended) })
		}
	})

	if err := rt.manager.ResumeSession(ctx, resumeChannel, args[0]); err != nil {
		return fmt.Errorf("%s (%w)", errors.UserMessage(err), err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Resumed session %s. Press Ctrl-C to stop.\n", args[0])

	select {
	case <-ended:
	case <-ctx.Done():
		rt.manager.EndSession(resumeChannel)
	}
	return nil
}
