// Package errors provides structured error types for the bridge.
// These errors provide context about what operation failed and where.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Op describes an operation, usually as "package.function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalid
	KindIO
	KindConfig
	KindLaunch
	KindTimeout
	KindCanceled
	KindParse
	KindAlreadyActive
	KindNoActiveSession
	KindModeMismatch
	KindProcessExit
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid"
	case KindIO:
		return "I/O error"
	case KindConfig:
		return "configuration error"
	case KindLaunch:
		return "launch error"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindParse:
		return "parse error"
	case KindAlreadyActive:
		return "session already active"
	case KindNoActiveSession:
		return "no active session"
	case KindModeMismatch:
		return "session mode mismatch"
	case KindProcessExit:
		return "process exited"
	default:
		return "unknown error"
	}
}

// Error is the structured error type for the bridge.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of an error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Session errors
func AlreadyActive(channelID string) error {
	return E(Op("session.Start"), KindAlreadyActive, fmt.Sprintf("channel %s already has an active session", channelID))
}

func NoActiveSession(channelID string) error {
	return E(Op("session.Send"), KindNoActiveSession, fmt.Sprintf("no active session for channel %s", channelID))
}

func ModeMismatch(channelID, mode string) error {
	return E(Op("session.Send"), KindModeMismatch, fmt.Sprintf("channel %s has a %s session; plain messages are only accepted by synchronous sessions", channelID, mode))
}

// Claude process errors
func LaunchFailed(binary string, err error) error {
	return E(Op("claude.Launch"), KindLaunch, fmt.Sprintf("failed to start %s", binary), err)
}

func ExchangeTimeout(timeout time.Duration) error {
	return E(Op("claude.Exchange"), KindTimeout, fmt.Sprintf("no response within %s", timeout))
}

func ExchangeCanceled(err error) error {
	return E(Op("claude.Exchange"), KindCanceled, "exchange canceled", err)
}

func ProcessExited(sessionID string, err error) error {
	if err == nil {
		return E(Op("claude.Stream"), KindProcessExit, fmt.Sprintf("process for session %s exited", sessionID))
	}
	return E(Op("claude.Stream"), KindProcessExit, fmt.Sprintf("process for session %s exited", sessionID), err)
}

func ParseFailed(what string, err error) error {
	return E(Op("claude.Parse"), KindParse, fmt.Sprintf("failed to parse %s", what), err)
}

// Config errors
func ConfigLoadFailed(path string, err error) error {
	return E(Op("config.Load"), KindConfig, fmt.Sprintf("failed to load config from %s", path), err)
}

func ConfigSaveFailed(path string, err error) error {
	return E(Op("config.Save"), KindConfig, fmt.Sprintf("failed to save config to %s", path), err)
}

func ConfigInvalid(reason string) error {
	return E(Op("config.Validate"), KindInvalid, reason)
}

// CLI prerequisite errors
func CLINotFound(name string) error {
	return E(Op("cli.Check"), KindNotFound, fmt.Sprintf("required CLI tool '%s' not found in PATH", name))
}

// UserMessage returns a human-readable description of err suitable for
// posting back into a chat channel. Internal details such as the Op are
// omitted; each Kind maps to a distinguishable sentence.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch GetKind(err) {
	case KindLaunch:
		return "Failed to start Claude CLI. Make sure Claude CLI is installed and in PATH."
	case KindTimeout:
		return "Claude did not respond in time. Please try again."
	case KindCanceled:
		return "The request to Claude was canceled."
	case KindAlreadyActive:
		return "A Claude session is already active in this channel. Use `/claude-stop` to end it first."
	case KindNoActiveSession:
		return "No active Claude session in this channel."
	case KindModeMismatch:
		return "This channel is attached to a resumed Claude session; plain messages cannot be sent to it. Use `/claude-stop` and `/claude-start` to begin a new conversation."
	case KindProcessExit:
		return "The Claude process exited."
	case KindConfig, KindInvalid:
		return "The bridge is misconfigured: " + innermost(err)
	default:
		return "Unknown error occurred"
	}
}

// innermost returns the message of the deepest wrapped error.
func innermost(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
