package main

import (
	"fmt"
	"os"

	"github.com/zhubert/plural-bridge/cmd"
	"github.com/zhubert/plural-bridge/internal/logger"
)

// Version information set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	// Ensure logger is closed on exit
	defer logger.Close()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Close()
		os.Exit(1)
	}
}
