// Package clipboard copies text such as session ids to the system clipboard.
package clipboard

import (
	"fmt"
	"sync"

	"golang.design/x/clipboard"

	"github.com/zhubert/plural-bridge/internal/logger"
)

var (
	mu          sync.Mutex
	initialized bool

	// initFn and writeFn are swapped out in tests; the real clipboard needs
	// a display server.
	initFn  = clipboard.Init
	writeFn = func(text string) { clipboard.Write(clipboard.FmtText, []byte(text)) }
	readFn  = func() []byte { return clipboard.Read(clipboard.FmtText) }
)

// Init initializes the clipboard. It is safe to call multiple times.
func Init() error {
	mu.Lock()
	defer mu.Unlock()
	return initLocked()
}

func initLocked() error {
	if initialized {
		return nil
	}
	if err := initFn(); err != nil {
		logger.ComponentLogger("Clipboard").Debug("failed to initialize", "error", err)
		return fmt.Errorf("failed to initialize clipboard: %w", err)
	}
	initialized = true
	return nil
}

// WriteText places text on the clipboard.
func WriteText(text string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := initLocked(); err != nil {
		return err
	}
	writeFn(text)
	logger.ComponentLogger("Clipboard").Debug("wrote text", "length", len(text))
	return nil
}

// ReadText reads text from the clipboard.
func ReadText() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if err := initLocked(); err != nil {
		return "", err
	}
	return string(readFn()), nil
}
