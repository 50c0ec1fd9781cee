package claude

import (
	"os/exec"
	"time"

	"github.com/zhubert/plural-bridge/internal/errors"
)

const (
	// DefaultBinary is the agent CLI looked up on PATH when none is configured.
	DefaultBinary = "claude"

	// DefaultExchangeTimeout bounds a single synchronous exchange.
	DefaultExchangeTimeout = 30 * time.Minute

	// DefaultGracePeriod is how long a process gets to exit after an
	// interrupt before it is killed.
	DefaultGracePeriod = 2 * time.Second
)

// ExchangeConfig configures one-shot invocations.
type ExchangeConfig struct {
	Binary      string
	WorkingDir  string
	ExtraArgs   []string
	Timeout     time.Duration
	GracePeriod time.Duration
}

func (c ExchangeConfig) binary() string {
	if c.Binary == "" {
		return DefaultBinary
	}
	return c.Binary
}

func (c ExchangeConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultExchangeTimeout
	}
	return c.Timeout
}

func (c ExchangeConfig) gracePeriod() time.Duration {
	if c.GracePeriod <= 0 {
		return DefaultGracePeriod
	}
	return c.GracePeriod
}

// StreamConfig configures a long-lived resumed session process.
type StreamConfig struct {
	ChannelID   string
	SessionID   string
	Binary      string
	WorkingDir  string
	ExtraArgs   []string
	GracePeriod time.Duration
}

func (c StreamConfig) binary() string {
	if c.Binary == "" {
		return DefaultBinary
	}
	return c.Binary
}

func (c StreamConfig) gracePeriod() time.Duration {
	if c.GracePeriod <= 0 {
		return DefaultGracePeriod
	}
	return c.GracePeriod
}

// BuildExchangeArgs returns the CLI arguments for a one-shot exchange.
// Exported for testing.
func BuildExchangeArgs(prompt string, extra []string) []string {
	args := []string{"-p", prompt, "--output-format", "json"}
	return append(args, extra...)
}

// BuildStreamArgs returns the CLI arguments that resume sessionID with
// line-delimited streaming output. Exported for testing.
func BuildStreamArgs(sessionID string, extra []string) []string {
	args := []string{"--resume", sessionID, "--output-format", "stream-json"}
	return append(args, extra...)
}

// CheckBinary verifies that binary resolves to an executable, returning
// the resolved path.
func CheckBinary(binary string) (string, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", errors.CLINotFound(binary)
	}
	return path, nil
}
