package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-bridge/internal/bridge"
	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/config"
	"github.com/zhubert/plural-bridge/internal/delivery"
	"github.com/zhubert/plural-bridge/internal/logger"
	"github.com/zhubert/plural-bridge/internal/notification"
	"github.com/zhubert/plural-bridge/internal/session"
)

// shutdownTimeout bounds how long closing the runtime may take.
const shutdownTimeout = 10 * time.Second

// runtime wires the session manager, router and dispatcher for one
// chat surface.
type runtime struct {
	manager    *session.Manager
	router     *delivery.Router
	dispatcher *bridge.Dispatcher
	log        *slog.Logger

	routerDone chan error
	closeOnce  sync.Once
}

// newRuntime builds the bridge around sender and starts delivery.
func newRuntime(cfg *config.Config, sender delivery.Sender) *runtime {
	var notifier delivery.Notifier
	if cfg.NotifyOnSessionEnd {
		notifier = notification.Desktop{}
	}

	manager := session.NewManager(session.Options{
		Exchanger:      claude.NewExchange(cfg.ExchangeConfig()),
		OpenStream:     session.NewStreamOpener(cfg.StreamConfig()),
		GreetingPrompt: cfg.GreetingPrompt,
	})
	router := delivery.NewRouter(delivery.RouterOptions{
		Sender:    sender,
		MaxLength: cfg.MaxMessageLength,
		Notifier:  notifier,
	})
	manager.OnEvent(router.Listen)

	rt := &runtime{
		manager: manager,
		router:  router,
		dispatcher: bridge.New(bridge.Options{
			Sessions:   manager,
			Sender:     sender,
			WorkingDir: cfg.GetWorkingDir(),
		}),
		log:        logger.ComponentLogger("Runtime"),
		routerDone: make(chan error, 1),
	}

	go func() {
		rt.routerDone <- router.Run(context.Background())
	}()
	return rt
}

// Close cancels in-flight dispatch work, ends every session and drains
// pending deliveries.
func (rt *runtime) Close() error {
	var err error
	rt.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		rt.dispatcher.Close()
		if shutdownErr := rt.manager.Shutdown(ctx); shutdownErr != nil {
			rt.log.Warn("session shutdown incomplete", "error", shutdownErr)
			err = shutdownErr
		}
		rt.router.Close()

		select {
		case <-rt.routerDone:
		case <-ctx.Done():
			rt.log.Warn("router did not drain before timeout")
		}
	})
	return err
}

// writerSender prints deliveries to a terminal stream.
type writerSender struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *writerSender) Send(ctx context.Context, channelID string, kind claude.MessageKind, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prefix string
	switch kind {
	case claude.KindError:
		prefix = "! "
	case claude.KindSystem:
		prefix = "» "
	}
	_, err := fmt.Fprintf(s.w, "%s%s\n", prefix, content)
	return err
}

// commandContext returns the command's context, or Background when the
// command is invoked directly rather than through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
