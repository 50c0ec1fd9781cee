package claude

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/zhubert/plural-bridge/internal/errors"
	"github.com/zhubert/plural-bridge/internal/logger"
)

// Exchange runs one blocking request/response round trip per call, each
// in a fresh process.
type Exchange struct {
	cfg ExchangeConfig
	log *slog.Logger
}

// NewExchange creates an Exchange.
func NewExchange(cfg ExchangeConfig) *Exchange {
	return &Exchange{
		cfg: cfg,
		log: logger.ComponentLogger("Exchange"),
	}
}

// Run sends prompt to a new agent process and waits for it to finish.
//
// It returns at most one message. A non-zero exit status is logged and the
// output is still used. A launch failure, timeout or cancellation returns
// an error and no messages.
func (e *Exchange) Run(ctx context.Context, channelID, prompt string) ([]Message, error) {
	log := e.log.With("channelID", channelID)
	binary := e.cfg.binary()
	timeout := e.cfg.timeout()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, BuildExchangeArgs(prompt, e.cfg.ExtraArgs)...)
	cmd.Dir = e.cfg.WorkingDir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = e.cfg.gracePeriod()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("starting exchange", "binary", binary, "workDir", cmd.Dir, "promptLen", len(prompt))
	startTime := time.Now()

	if err := cmd.Start(); err != nil {
		log.Error("failed to start process", "error", err)
		return nil, errors.LaunchFailed(binary, err)
	}

	waitErr := cmd.Wait()
	elapsed := time.Since(startTime)

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if stderrors.Is(ctxErr, context.DeadlineExceeded) {
			log.Warn("exchange timed out", "timeout", timeout, "elapsed", elapsed)
			return nil, errors.ExchangeTimeout(timeout)
		}
		log.Info("exchange canceled", "elapsed", elapsed)
		return nil, errors.ExchangeCanceled(ctx.Err())
	}

	exitCode := cmd.ProcessState.ExitCode()
	log.Debug("process exited",
		"exitCode", exitCode,
		"elapsed", elapsed,
		"stdout", truncateForLog(stdout.String()),
		"stderr", truncateForLog(stderr.String()))
	if waitErr != nil {
		log.Warn("process exited with error", "exitCode", exitCode, "error", waitErr,
			"stderr", truncateForLog(strings.TrimSpace(stderr.String())))
	}

	content, ok := ExtractContent(stdout.String())
	if !ok {
		log.Warn("no content in response", "exitCode", exitCode)
		return nil, nil
	}

	msg, ok := NewMessage(channelID, content, KindMessage)
	if !ok {
		return nil, nil
	}
	return []Message{msg}, nil
}
