package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/delivery"
	"github.com/zhubert/plural-bridge/internal/errors"
)

var askChannel string

var askCmd = &cobra.Command{
	Use:   "ask PROMPT...",
	Short: "Run one synchronous exchange and print the reply",
	Long: `Runs 'claude -p' once with the given prompt and prints the normalized reply.

Long replies are printed in the same chunks a chat channel would receive.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askChannel, "channel", "cli", "Channel id attached to log records")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := claude.CheckBinary(cfg.ClaudeBinary); err != nil {
		return fmt.Errorf("%v\n\nInstall the Claude CLI or set claude_binary in the config", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompt := strings.Join(args, " ")
	msgs, err := claude.NewExchange(cfg.ExchangeConfig()).Run(ctx, askChannel, prompt)
	if err != nil {
		return fmt.Errorf("%s (%w)", errors.UserMessage(err), err)
	}
	if len(msgs) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Claude returned no output.")
		return nil
	}

	out := &writerSender{w: cmd.OutOrStdout()}
	for _, msg := range msgs {
		for _, chunk := range delivery.Split(msg.Content, cfg.MaxMessageLength) {
			if err := out.Send(ctx, msg.ChannelID, msg.Kind, chunk); err != nil {
				return err
			}
		}
	}
	return nil
}
