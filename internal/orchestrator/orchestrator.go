// Package orchestrator drives a pre-config test run: preflight, then one
// trial per candidate in catalog order until the first success.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-preconfig-tester/internal/config"
	"github.com/randomizedcoder/go-preconfig-tester/internal/metrics"
	"github.com/randomizedcoder/go-preconfig-tester/internal/preflight"
	"github.com/randomizedcoder/go-preconfig-tester/internal/probe"
	"github.com/randomizedcoder/go-preconfig-tester/internal/process"
	"github.com/randomizedcoder/go-preconfig-tester/internal/supervisor"
	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

// defaultCleanupTimeout bounds teardown once the run context is cancelled.
const defaultCleanupTimeout = 10 * time.Second

// Prober probes one target. *probe.Prober implements it.
type Prober interface {
	Probe(ctx context.Context, target string) (probe.Result, error)
}

// Lifecycle starts, observes and tears down candidates. *process.Manager
// implements it.
type Lifecycle interface {
	Launch(ctx context.Context, c trial.Candidate) (*process.Child, error)
	WaitForNamedProcess(ctx context.Context, name string, timeout time.Duration) bool
	Terminate(ctx context.Context, name string) int
	Cleanup(ctx context.Context, child *process.Child, name string)
}

// Callbacks contains optional hooks for run events. They are called from
// the goroutine running Run.
type Callbacks struct {
	// OnStateChange is called on every state transition.
	OnStateChange func(old, new supervisor.State)

	// OnPreflight is called once the bare targets were probed.
	OnPreflight func(v preflight.Verdict, results []probe.Result)

	// OnTrialStart is called before a candidate is launched. index is 0-based.
	OnTrialStart func(index, total int, c trial.Candidate)

	// OnProcessWait is called when the wait for the expected process ends.
	OnProcessWait func(c trial.Candidate, appeared bool, waited time.Duration)

	// OnProbe is called for every probe made during a trial.
	OnProbe func(c trial.Candidate, r probe.Result)

	// OnTrialDone is called after the trial was cleaned up.
	OnTrialDone func(rec trial.Record)

	// OnDone is called with the final summary.
	OnDone func(s *trial.Summary)
}

// Config holds the orchestrator settings.
type Config struct {
	RunID       string
	Targets     []string
	ProcessName string

	ProcessWaitTimeout time.Duration
	FinalSettle        time.Duration
	CleanupTimeout     time.Duration

	SkipPreflight bool
	KeepRunning   bool

	// Metrics is optional.
	Metrics   *metrics.Collector
	Callbacks Callbacks
	Logger    *slog.Logger
}

// ConfigFromApp builds a Config from the application configuration.
func ConfigFromApp(cfg *config.Config, runID string, logger *slog.Logger) Config {
	return Config{
		RunID:              runID,
		Targets:            cfg.Targets,
		ProcessName:        cfg.ProcessName,
		ProcessWaitTimeout: cfg.ProcessWaitTimeout,
		FinalSettle:        cfg.FinalSettle,
		SkipPreflight:      cfg.SkipPreflight,
		KeepRunning:        cfg.KeepRunning,
		Logger:             logger,
	}
}

// Orchestrator runs the trial state machine. It is single-use and not safe
// for concurrent Runs.
type Orchestrator struct {
	cfg       Config
	prober    Prober
	lifecycle Lifecycle
	metrics   *metrics.Collector
	logger    *slog.Logger

	state supervisor.State
}

// New creates an Orchestrator.
func New(cfg Config, prober Prober, lifecycle Lifecycle) *Orchestrator {
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = defaultCleanupTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		prober:    prober,
		lifecycle: lifecycle,
		metrics:   cfg.Metrics,
		logger:    logger,
		state:     supervisor.StateIdle,
	}
}

// State returns the current state.
func (o *Orchestrator) State() supervisor.State {
	return o.state
}

// Run tries candidates in order and returns the run summary. It never
// returns an error: every failure ends up in a record or the verdict.
// Cancelling ctx stops the run after the current step; the running
// candidate is still cleaned up.
func (o *Orchestrator) Run(ctx context.Context, candidates []trial.Candidate) *trial.Summary {
	s := &trial.Summary{
		RunID:            o.cfg.RunID,
		Targets:          o.cfg.Targets,
		ProcessName:      o.cfg.ProcessName,
		PreflightSkipped: o.cfg.SkipPreflight,
		Candidates:       len(candidates),
		Records:          make([]trial.Record, 0, len(candidates)),
		Started:          time.Now(),
	}

	o.logger.Info("run_starting",
		"targets", o.cfg.Targets,
		"candidates", len(candidates),
		"process_name", o.cfg.ProcessName,
	)

	if !o.cfg.SkipPreflight {
		if v, done := o.preflight(ctx, s); done {
			return o.finish(ctx, s, v, false)
		}
	}

	verdict := trial.Exhausted
	kept := false
	for i, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		o.setState(supervisor.StateSelectingCandidate)

		rec, keep := o.runTrial(ctx, i, len(candidates), c)
		s.Records = append(s.Records, rec)
		if o.metrics != nil {
			o.metrics.RecordTrial(rec)
		}
		if o.cfg.Callbacks.OnTrialDone != nil {
			o.cfg.Callbacks.OnTrialDone(rec)
		}

		if rec.Verdict == trial.Pass {
			winner := c
			s.Winner = &winner
			verdict = trial.Found
			kept = keep
			break
		}
	}

	if s.Winner == nil && ctx.Err() != nil {
		verdict = trial.Interrupted
	}
	return o.finish(ctx, s, verdict, kept)
}

// preflight probes the bare targets with no candidate running. It reports
// done when the run can end without trying any candidate.
func (o *Orchestrator) preflight(ctx context.Context, s *trial.Summary) (trial.RunVerdict, bool) {
	o.setState(supervisor.StatePreflight)

	// A bypass process left running would make the bare probe meaningless.
	o.lifecycle.Terminate(ctx, o.cfg.ProcessName)

	v, results, err := preflight.ProbeTargets(ctx, o.prober, o.cfg.Targets)
	s.Preflight = results
	if err != nil {
		o.logger.Warn("preflight_error", "error", err)
	}
	for _, r := range results {
		if o.metrics != nil {
			o.metrics.RecordProbe(metrics.PhasePreflight, r)
		}
	}
	if o.cfg.Callbacks.OnPreflight != nil {
		o.cfg.Callbacks.OnPreflight(v, results)
	}

	if ctx.Err() != nil {
		return trial.Interrupted, true
	}

	check := preflight.TargetCheck(v, results)
	o.logger.Info("preflight_result",
		"verdict", v.String(),
		"passed", check.Passed,
		"detail", check.Message,
	)
	switch v {
	case preflight.NoConfigNeeded:
		return trial.NoConfigNeeded, true
	case preflight.NetworkUnavailable:
		return trial.NetworkUnavailable, true
	default:
		return 0, false
	}
}

// finish runs the final teardown and seals the summary.
func (o *Orchestrator) finish(ctx context.Context, s *trial.Summary, verdict trial.RunVerdict, kept bool) *trial.Summary {
	s.Verdict = verdict
	s.KeptRunning = kept

	// A script whose launch errored may still have started the bypass
	// process, so the sweep runs whenever the winner is not kept.
	if !kept {
		cctx, cancel := o.cleanupContext(ctx)
		o.lifecycle.Terminate(cctx, o.cfg.ProcessName)
		supervisor.Sleep(cctx, o.cfg.FinalSettle)
		o.lifecycle.Terminate(cctx, o.cfg.ProcessName)
		cancel()
	}

	o.setState(supervisor.StateDone)
	s.Duration = time.Since(s.Started)

	if o.metrics != nil {
		o.metrics.SetRunVerdict(verdict)
	}

	pass, fail, skip := s.Counts()
	attrs := []any{
		"verdict", verdict.String(),
		"trials", len(s.Records),
		"pass", pass,
		"fail", fail,
		"skip", skip,
		"duration", s.Duration.String(),
	}
	if s.Winner != nil {
		attrs = append(attrs, "winner", s.Winner.Name, "kept_running", kept)
	}
	o.logger.Info("run_complete", attrs...)

	if o.cfg.Callbacks.OnDone != nil {
		o.cfg.Callbacks.OnDone(s)
	}
	return s
}

// setState moves the state machine. Invalid transitions are logged, not
// refused.
func (o *Orchestrator) setState(next supervisor.State) {
	old := o.state
	if old == next {
		return
	}
	if !old.CanTransition(next) {
		o.logger.Warn("invalid_state_transition", "from", old.String(), "to", next.String())
	}
	o.state = next

	o.logger.Debug("state_change", "from", old.String(), "to", next.String())
	if o.metrics != nil {
		o.metrics.SetState(next.String())
	}
	if o.cfg.Callbacks.OnStateChange != nil {
		o.cfg.Callbacks.OnStateChange(old, next)
	}
}

// cleanupContext returns a context for teardown that survives run
// cancellation but is still bounded.
func (o *Orchestrator) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CleanupTimeout)
}
