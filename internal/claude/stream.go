package claude

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/zhubert/plural-bridge/internal/errors"
	"github.com/zhubert/plural-bridge/internal/logger"
)

// readBufferSize is the chunk size used for pipe reads.
const readBufferSize = 4096

// StreamCallbacks receive the output of a Stream.
//
// Callback Threading Model:
// Callbacks run on the Stream's internal goroutines. OnMessage calls are
// serialized; stdout messages arrive in line order, stderr messages are
// interleaved as they are read. OnExit is called exactly once, after the
// process has been reaped and after the last OnMessage call.
type StreamCallbacks struct {
	// OnMessage receives each normalized message. It is not called once
	// Stop has begun.
	OnMessage func(Message)

	// OnExit is called when the process exits for any reason, including
	// Stop. The error is always of kind KindProcessExit and wraps the exit
	// status when the process did not exit cleanly.
	OnExit func(err error)
}

// Stream owns a long-lived agent process resumed with streaming output.
type Stream struct {
	cfg       StreamConfig
	callbacks StreamCallbacks
	log       *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File

	// deliverMu serializes OnMessage calls from the two reader goroutines.
	deliverMu sync.Mutex
	stopping  atomic.Bool
	inExit    atomic.Bool

	stopOnce sync.Once
	stdinMu  sync.Mutex

	readers sync.WaitGroup

	// waitDone is closed by monitorExit when cmd.Wait() completes.
	// monitorExit is the sole caller of cmd.Wait().
	waitDone chan struct{}
	// done is closed after OnExit has returned.
	done chan struct{}

	stopContext func() bool
}

// OpenStream starts the process and its reader goroutines. The stream is
// stopped when ctx is done.
func OpenStream(ctx context.Context, cfg StreamConfig, callbacks StreamCallbacks) (*Stream, error) {
	s := &Stream{
		cfg:       cfg,
		callbacks: callbacks,
		log:       logger.WithSession(cfg.SessionID).With("component", "Stream", "channelID", cfg.ChannelID),
		waitDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	binary := cfg.binary()
	cmd := exec.Command(binary, BuildStreamArgs(cfg.SessionID, cfg.ExtraArgs)...)
	cmd.Dir = cfg.WorkingDir

	// Output goes through plain OS pipes so that cmd.Wait returns when the
	// agent exits, even if a descendant keeps the write ends open.
	var err error
	if s.stdin, err = cmd.StdinPipe(); err != nil {
		return nil, errors.LaunchFailed(binary, err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		s.stdin.Close()
		return nil, errors.LaunchFailed(binary, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		s.stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, errors.LaunchFailed(binary, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	s.stdout = stdoutR
	s.stderr = stderrR

	s.log.Debug("starting process", "binary", binary, "workDir", cmd.Dir)
	err = cmd.Start()
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		s.stdin.Close()
		stdoutR.Close()
		stderrR.Close()
		s.log.Error("failed to start process", "error", err)
		return nil, errors.LaunchFailed(binary, err)
	}
	s.cmd = cmd
	s.log.Info("process started", "pid", cmd.Process.Pid)

	s.stopContext = context.AfterFunc(ctx, s.Stop)

	s.readers.Add(2)
	go s.readOutput()
	go s.readErrors()
	go s.monitorExit()
	return s, nil
}

// Done is closed once the process has exited and OnExit has returned.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// deliver hands a message to OnMessage unless the stream is stopping.
func (s *Stream) deliver(msg Message) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.stopping.Load() {
		s.log.Debug("dropping message after stop", "kind", msg.Kind.String())
		return
	}
	if s.callbacks.OnMessage != nil {
		s.callbacks.OnMessage(msg)
	}
}

// readOutput frames stdout into lines and parses each complete line.
func (s *Stream) readOutput() {
	defer s.readers.Done()
	s.log.Debug("output reader started")

	var framer LineFramer
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				s.log.Debug("stdout line", "line", truncateForLog(line))
				if msg, ok := parseStreamLine(s.cfg.ChannelID, line, s.log); ok {
					s.deliver(msg)
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				s.log.Debug("error reading stdout", "error", err)
			}
			if pending := framer.Pending(); pending != "" {
				s.log.Debug("discarding partial line at exit", "partial", truncateForLog(pending))
			}
			return
		}
	}
}

// readErrors forwards every non-blank stderr chunk as an error message.
func (s *Stream) readErrors() {
	defer s.readers.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.stderr.Read(buf)
		if n > 0 {
			text := ansi.Strip(string(buf[:n]))
			s.log.Debug("stderr chunk", "content", truncateForLog(text))
			if msg, ok := newErrorMessage(s.cfg.ChannelID, strings.TrimRight(text, "\n")); ok {
				s.deliver(msg)
			}
		}
		if err != nil {
			if err != io.EOF {
				s.log.Debug("error reading stderr", "error", err)
			}
			return
		}
	}
}

// monitorExit reaps the process, lets the readers drain what is already
// buffered and reports the exit. Readers still blocked after the grace
// period are reading from a pipe a descendant holds open; their pipes are
// closed so the exit is always reported.
func (s *Stream) monitorExit() {
	err := s.cmd.Wait()
	close(s.waitDone)

	if !waitWithin(&s.readers, s.cfg.gracePeriod()) {
		s.log.Warn("output still open after process exit, closing pipes")
		s.stdout.Close()
		s.stderr.Close()
		s.readers.Wait()
	}
	s.stdout.Close()
	s.stderr.Close()

	if s.stopContext != nil {
		s.stopContext()
	}

	exitCode := s.cmd.ProcessState.ExitCode()
	s.log.Info("process exited", "exitCode", exitCode, "error", err, "stopped", s.stopping.Load())

	s.inExit.Store(true)
	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(errors.ProcessExited(s.cfg.SessionID, err))
	}
	close(s.done)
}

func (s *Stream) closeStdin() {
	s.stdinMu.Lock()
	defer s.stdinMu.Unlock()
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
}

// Stop terminates the process. Message delivery ceases immediately; the
// process gets an interrupt and is killed after the grace period. Stop
// returns once the process has been reaped and OnExit has run. It is safe to call more than once and from
// any goroutine, including from OnExit.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.log.Debug("stopping process")

		s.closeStdin()
		if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
			s.log.Debug("interrupt failed", "error", err)
		}

		grace := s.cfg.gracePeriod()
		select {
		case <-s.waitDone:
			s.log.Debug("process exited gracefully")
			return
		case <-time.After(grace):
		}

		s.log.Debug("force killing process")
		if err := s.cmd.Process.Kill(); err != nil {
			s.log.Debug("kill failed", "error", err)
		}
		<-s.waitDone
	})

	if s.inExit.Load() {
		// Called from OnExit, or racing it; the process is already reaped.
		<-s.waitDone
		return
	}
	<-s.done
}

// waitWithin waits for wg up to d and reports whether it finished.
func waitWithin(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
