package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-bridge/internal/logger"
	"github.com/zhubert/plural-bridge/internal/process"
)

var skipConfirm bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Kill orphaned streaming Claude processes and remove log files",
	Long: `Finds 'claude --resume' processes left behind by a bridge that crashed or was
killed, terminates them, and removes the bridge's log files.

Sessions live only as long as the bridge process, so any streaming process found
while no bridge is running is an orphan. Do not run this while another bridge is
serving channels. It will prompt for confirmation unless --yes is used.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	return runCleanWithReader(os.Stdin, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// runCleanWithReader allows injecting input and output for testing
func runCleanWithReader(input io.Reader, out, errOut io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// No sessions survive a restart, so nothing is known to this process.
	knownSessions := map[string]bool{}

	orphanProcesses, err := process.FindOrphanedClaudeProcesses(cfg.ClaudeBinary, knownSessions)
	if err != nil {
		fmt.Fprintf(errOut, "Warning: error finding orphaned processes: %v\n", err)
	}

	fmt.Fprintln(out, "This will clean:")
	if len(orphanProcesses) > 0 {
		fmt.Fprintf(out, "  - %d orphaned process(es)\n", len(orphanProcesses))
		for _, proc := range orphanProcesses {
			fmt.Fprintf(out, "      PID %d (session %s)\n", proc.PID, proc.SessionID)
		}
	}
	fmt.Fprintln(out, "  - All bridge log files in /tmp")

	if !skipConfirm {
		if !confirm(input, out, "Continue?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var killed int
	if len(orphanProcesses) > 0 {
		killed, err = process.CleanupOrphanedProcesses(cfg.ClaudeBinary, knownSessions)
		if err != nil {
			fmt.Fprintf(errOut, "Warning: error killing orphaned processes: %v\n", err)
		}
	}

	// The log file is reopened on next start.
	logger.Close()
	logsCleared, err := logger.ClearLogs()
	if err != nil {
		fmt.Fprintf(errOut, "Warning: error clearing logs: %v\n", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Cleaned:")
	if killed > 0 {
		fmt.Fprintf(out, "  - %d orphaned process(es) killed\n", killed)
	}
	if logsCleared > 0 {
		fmt.Fprintf(out, "  - %d log file(s) removed\n", logsCleared)
	}
	if killed == 0 && logsCleared == 0 {
		fmt.Fprintln(out, "  - nothing")
	}

	return nil
}

// confirm prompts the user for y/n confirmation
func confirm(input io.Reader, out io.Writer, prompt string) bool {
	reader := bufio.NewReader(input)
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
