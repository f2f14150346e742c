package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/randomizedcoder/go-preconfig-tester/internal/config"
	"github.com/randomizedcoder/go-preconfig-tester/internal/logging"
	"github.com/randomizedcoder/go-preconfig-tester/internal/supervisor"
	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

// ErrProcessTimeout is the trial reason when the expected process never
// appeared.
var ErrProcessTimeout = errors.New("process did not start")

// minPollInterval keeps a zero poll interval from spinning.
const minPollInterval = 10 * time.Millisecond

// outputWaitDelay bounds how long the script's output pipes are drained
// after it exits. Background children may hold them open indefinitely.
const outputWaitDelay = time.Second

// LaunchError reports a candidate that could not be started.
type LaunchError struct {
	Candidate string
	Path      string
	Err       error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Candidate, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ManagerConfig holds the process lifecycle settings.
type ManagerConfig struct {
	PollInterval      time.Duration
	TerminateAttempts int
	TerminateInterval time.Duration
	CleanupSettle     time.Duration

	// CaptureOutput pipes script output into debug logs instead of
	// discarding it.
	CaptureOutput bool

	// OnKill is called for every process killed by name.
	OnKill func(pid int, name string)

	Logger *slog.Logger
}

// ManagerConfigFromApp builds a ManagerConfig from the application
// configuration.
func ManagerConfigFromApp(cfg *config.Config, logger *slog.Logger) ManagerConfig {
	return ManagerConfig{
		PollInterval:      cfg.PollInterval,
		TerminateAttempts: cfg.TerminateAttempts,
		TerminateInterval: cfg.TerminateInterval,
		CleanupSettle:     cfg.CleanupSettle,
		CaptureOutput:     cfg.CaptureOutput,
		Logger:            logger,
	}
}

// Manager launches candidates and observes and terminates the expected
// process.
type Manager struct {
	table  Table
	runner Runner
	cfg    ManagerConfig
	logger *slog.Logger
}

// NewManager creates a Manager.
func NewManager(table Table, runner Runner, cfg ManagerConfig) *Manager {
	if cfg.TerminateAttempts <= 0 {
		cfg.TerminateAttempts = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{table: table, runner: runner, cfg: cfg, logger: logger}
}

// Launch starts the candidate detached, with its output suppressed or
// captured. It does not wait for the script to exit.
func (m *Manager) Launch(ctx context.Context, c trial.Candidate) (*Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Candidate: c.Name, Path: c.Path, Err: err}
	}
	if _, err := os.Stat(c.Path); err != nil {
		return nil, &LaunchError{Candidate: c.Name, Path: c.Path, Err: err}
	}

	cmd, err := m.runner.BuildCommand(c)
	if err != nil {
		return nil, &LaunchError{Candidate: c.Name, Path: c.Path, Err: err}
	}

	var output []*logging.OutputHandler
	if m.cfg.CaptureOutput {
		stdout := logging.NewOutputHandler(c.Name, "stdout", m.logger)
		stderr := logging.NewOutputHandler(c.Name, "stderr", m.logger)
		cmd.Stdout, cmd.Stderr = stdout, stderr
		cmd.WaitDelay = outputWaitDelay
		output = []*logging.OutputHandler{stdout, stderr}
	}
	setDetached(cmd)

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Candidate: c.Name, Path: c.Path, Err: err}
	}

	child := newChild(cmd, c.Name, output)
	m.logger.Info("candidate_launched",
		"candidate", c.Name,
		"pid", child.PID(),
		"runner", m.runner.Name(),
	)
	return child, nil
}

// IsRunning reports whether a process named name is in the table. A
// snapshot failure counts as not running.
func (m *Manager) IsRunning(ctx context.Context, name string) bool {
	procs, err := m.table.Snapshot(ctx)
	if err != nil {
		m.logger.Debug("process_snapshot_failed", "error", err)
		return false
	}
	return len(Matches(procs, name)) > 0
}

// WaitForNamedProcess polls until a process named name appears or timeout
// elapses. The deadline is wall-clock time; one last check is made at the
// deadline. Cancellation returns false.
func (m *Manager) WaitForNamedProcess(ctx context.Context, name string, timeout time.Duration) bool {
	poll := m.cfg.PollInterval
	if poll < minPollInterval {
		poll = minPollInterval
	}
	deadline := time.Now().Add(timeout)

	for {
		if ctx.Err() != nil {
			return false
		}
		if m.IsRunning(ctx, name) {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if !supervisor.Sleep(ctx, min(poll, remaining)) {
			return false
		}
	}
}

// Terminate kills every process named name, re-checking up to
// TerminateAttempts times. It stops as soon as none is left. Kill failures
// are logged and otherwise ignored. It returns the number of successful
// kills.
func (m *Manager) Terminate(ctx context.Context, name string) int {
	var pending []ProcessInfo
	killed := 0

	res := supervisor.Retry(ctx,
		supervisor.RetryConfig{
			Attempts: m.cfg.TerminateAttempts,
			Interval: m.cfg.TerminateInterval,
		},
		func(ctx context.Context, attempt int) {
			for _, p := range pending {
				if err := m.table.Kill(ctx, p.PID); err != nil {
					m.logger.Debug("process_kill_failed",
						"name", p.Name,
						"pid", p.PID,
						"attempt", attempt,
						"error", err,
					)
					continue
				}
				killed++
				if m.cfg.OnKill != nil {
					m.cfg.OnKill(p.PID, p.Name)
				}
			}
		},
		func(ctx context.Context) bool {
			procs, err := m.table.Snapshot(ctx)
			if err != nil {
				m.logger.Debug("process_snapshot_failed", "error", err)
				pending = nil
				return false
			}
			pending = Matches(procs, name)
			return len(pending) == 0
		},
	)

	if !res.Done {
		m.logger.Warn("terminate_incomplete",
			"name", name,
			"attempts", res.Attempts,
			"remaining", len(pending),
		)
	} else if killed > 0 {
		m.logger.Debug("terminate_complete",
			"name", name,
			"killed", killed,
			"attempts", res.Attempts,
		)
	}
	return killed
}

// Cleanup tears down one trial: the script's process group first, then,
// after CleanupSettle, every process named name. A nil child skips the
// first step.
func (m *Manager) Cleanup(ctx context.Context, child *Child, name string) {
	if child != nil {
		if err := child.Kill(); err != nil {
			m.logger.Debug("candidate_kill_failed",
				"candidate", child.Name(),
				"pid", child.PID(),
				"error", err,
			)
		}
		if lines := child.RecentOutput(5); len(lines) > 0 {
			m.logger.Debug("candidate_recent_output",
				"candidate", child.Name(),
				"lines", lines,
				"error_patterns", child.ErrorCounts(),
			)
		}
	}
	supervisor.Sleep(ctx, m.cfg.CleanupSettle)
	m.Terminate(ctx, name)
}
