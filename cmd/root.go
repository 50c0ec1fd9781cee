package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-bridge/internal/config"
	"github.com/zhubert/plural-bridge/internal/logger"
)

var (
	configPath            string
	workDir               string
	logFile               string
	debugMode             bool
	quietMode             bool
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "plural-bridge",
	Short: "Bridge chat channels to Claude CLI sessions",
	Long: `plural-bridge brokers conversations between chat channels and the Claude CLI.

Each channel holds at most one session. A session started with /claude-start runs
one 'claude -p' exchange per message; a session attached with /claude-resume keeps
a long-lived 'claude --resume' process and streams its output back as it arrives.

Run without a subcommand to open the interactive console.`,
	RunE:          runChat,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.plural-bridge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workDir, "workdir", "", "Directory Claude runs in (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Reduce logging to info level only")
	addChatFlags(rootCmd)
}

func initConfig() {
	if quietMode {
		logger.SetDebug(false)
	} else if debugMode {
		logger.SetDebug(true)
	}
}

// loadConfig loads the config file, applies command-line overrides and
// points the logger at the configured file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if workDir != "" {
		cfg.SetWorkingDir(workDir)
	}
	if logFile != "" {
		cfg.SetLogFile(logFile)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(cfg.GetLogFile()); err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}
	switch {
	case quietMode:
		logger.SetLevel(logger.LevelInfo)
	case debugMode:
		logger.SetLevel(logger.LevelDebug)
	default:
		logger.SetLevel(cfg.GetLogLevel())
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("plural-bridge %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("plural-bridge %s\n", version)
}
