package intercept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Session ties together everything one intercepted build needs: a
// session identity, the event log, the collector listening for
// reporters, and the runner for the build command itself.
type Session struct {
	ID uuid.UUID

	collector *Collector
	log       *EventLog
	logger    *slog.Logger
	cancel    context.CancelFunc
	drain     time.Duration
}

// StartSession opens the event log (a session-scoped temporary file
// when logPath is empty), starts the collector on a free loopback port
// and begins accepting reporters. drain bounds how long Close waits for
// straggling connections.
func StartSession(logPath string, readTimeout, drain time.Duration, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	if logPath == "" {
		logPath = filepath.Join(os.TempDir(), fmt.Sprintf("buildlens-events-%s.db", id))
	}

	log, err := OpenEventLog(logPath)
	if err != nil {
		return nil, err
	}
	collector, err := NewCollector("", log, readTimeout, logger)
	if err != nil {
		log.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := collector.Serve(ctx); err != nil {
			logger.Error("collector stopped early", "err", err)
		}
	}()

	logger.Info("intercept session started", "session", id.String(), "log", logPath)
	return &Session{
		ID:        id,
		collector: collector,
		log:       log,
		logger:    logger,
		cancel:    cancel,
		drain:     drain,
	}, nil
}

// Addr returns the collector endpoint for the hand-off.
func (s *Session) Addr() string { return s.collector.Addr() }

// LogPath returns where captured events are appended.
func (s *Session) LogPath() string { return s.log.Path() }

// RunBuild executes the build command with the hand-off variable
// injected into its environment and returns its exit code. The build's
// stdio is passed through untouched. The top-level command is itself
// reported, so a session always captures at least the root execution.
func (s *Session) RunBuild(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return 1, errors.New("no build command given")
	}
	s.reportRoot(argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), ReporterAddressEnv+"="+s.Addr())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, fmt.Errorf("run build command: %w", err)
	}
	return 0, nil
}

// reportRoot captures the build command itself through the same
// transport every intercepted process uses. Failure is logged and
// ignored, same as any reporter failure.
func (s *Session) reportRoot(argv []string) {
	reporter, err := NewReporter(s.Addr())
	if err != nil {
		s.logger.Warn("cannot report build command", "err", err)
		return
	}
	defer reporter.Close()

	exe, err := exec.LookPath(argv[0])
	if err != nil {
		exe = argv[0]
	}
	if err := reporter.Report(NewProcessEvent(exe, argv)); err != nil {
		s.logger.Warn("cannot report build command", "err", err)
	}
}

// Close drains the collector and closes the event log. The session's
// log remains on disk for the semantic pass.
func (s *Session) Close() error {
	s.cancel()
	s.collector.Shutdown(s.drain)
	return s.log.Close()
}
