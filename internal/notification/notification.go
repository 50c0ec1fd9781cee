// Package notification provides cross-platform desktop notifications.
// It uses the beeep library to send notifications on macOS, Linux, and Windows.
package notification

import (
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/zhubert/plural-bridge/internal/logger"
)

// notifyFunc matches beeep.Notify.
type notifyFunc func(title, message string, icon any) error

var notifier notifyFunc = beeep.Notify

// SetNotifier replaces the notification backend. Used by tests.
func SetNotifier(fn func(title, message string, icon any) error) {
	notifier = fn
}

// ResetNotifier restores the beeep backend.
func ResetNotifier() {
	notifier = beeep.Notify
}

// Send sends a desktop notification with the given title and message.
func Send(title, message string) error {
	log := logger.ComponentLogger("Notification")
	log.Debug("sending notification", "title", title, "message", message)
	// Empty icon lets beeep pick the platform default
	err := notifier(title, message, "")
	if err != nil {
		log.Debug("failed to send notification", "error", err)
	}
	return err
}

// SessionEnded announces that the session bound to channelID has ended.
func SessionEnded(channelID, sessionID string) error {
	return Send("Plural Bridge", fmt.Sprintf("Claude session %s in %s has ended", sessionID, channelID))
}

// Desktop adapts the package functions to the delivery.Notifier interface.
type Desktop struct{}

// SessionEnded implements delivery.Notifier.
func (Desktop) SessionEnded(channelID, sessionID string) error {
	return SessionEnded(channelID, sessionID)
}
