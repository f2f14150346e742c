package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/randomizedcoder/go-preconfig-tester/internal/metrics"
	"github.com/randomizedcoder/go-preconfig-tester/internal/process"
	"github.com/randomizedcoder/go-preconfig-tester/internal/supervisor"
	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

// reasonInterrupted is recorded for a trial cut short by cancellation.
const reasonInterrupted = "interrupted"

// runTrial runs one candidate through Launching, WaitingForProcess and
// Probing, then RecordingResult and Cleanup. Cleanup runs exactly once on
// every path unless the candidate passed and KeepRunning is set, which is
// reported as keep.
func (o *Orchestrator) runTrial(ctx context.Context, index, total int, c trial.Candidate) (rec trial.Record, keep bool) {
	rec = trial.Record{
		Index:     index,
		Candidate: c,
		Verdict:   trial.Fail,
		Started:   time.Now(),
	}

	o.logger.Info("trial_started",
		"index", index+1,
		"total", total,
		"candidate", c.Name,
	)
	if o.metrics != nil {
		o.metrics.TrialStarted(index + 1)
	}
	if o.cfg.Callbacks.OnTrialStart != nil {
		o.cfg.Callbacks.OnTrialStart(index, total, c)
	}

	child := o.attempt(ctx, c, &rec)

	o.setState(supervisor.StateRecordingResult)
	rec.Duration = time.Since(rec.Started)
	keep = rec.Verdict == trial.Pass && o.cfg.KeepRunning

	o.setState(supervisor.StateCleanup)
	if keep {
		o.logger.Info("candidate_kept_running", "candidate", c.Name, "pid", child.PID())
	} else {
		cctx, cancel := o.cleanupContext(ctx)
		o.lifecycle.Cleanup(cctx, child, o.cfg.ProcessName)
		cancel()
	}

	o.logTrial(rec)
	return rec, keep
}

// attempt fills in rec and returns the launched child, which may be nil.
// It stops at the first step that fails.
func (o *Orchestrator) attempt(ctx context.Context, c trial.Candidate, rec *trial.Record) *process.Child {
	name := o.cfg.ProcessName

	o.setState(supervisor.StateLaunching)
	o.lifecycle.Terminate(ctx, name)

	child, err := o.lifecycle.Launch(ctx, c)
	if err != nil {
		rec.Verdict = trial.Skip
		rec.Reason = "launch failed: " + err.Error()
		if ctx.Err() != nil {
			rec.Reason = reasonInterrupted
		}
		return nil
	}
	rec.Launched = true

	o.setState(supervisor.StateWaitingForProcess)
	waitStart := time.Now()
	appeared := o.lifecycle.WaitForNamedProcess(ctx, name, o.cfg.ProcessWaitTimeout)
	rec.ProcessWait = time.Since(waitStart)
	rec.ProcessAppeared = appeared

	if ctx.Err() != nil {
		rec.Verdict = trial.Skip
		rec.Reason = reasonInterrupted
		return child
	}
	if o.metrics != nil {
		o.metrics.RecordProcessWait(rec.ProcessWait, appeared)
	}
	if o.cfg.Callbacks.OnProcessWait != nil {
		o.cfg.Callbacks.OnProcessWait(c, appeared, rec.ProcessWait)
	}
	if !appeared {
		o.logger.Warn("process_wait_timeout",
			"candidate", c.Name,
			"process_name", name,
			"waited", rec.ProcessWait.String(),
		)
		rec.Reason = process.ErrProcessTimeout.Error()
		if exit := child.ExitSummary(); exit != "" {
			rec.Reason += " (" + exit + ")"
		}
		return child
	}

	o.setState(supervisor.StateProbing)
	for _, target := range o.cfg.Targets {
		r, err := o.prober.Probe(ctx, target)
		if err != nil {
			rec.Reason = err.Error()
			return child
		}
		if ctx.Err() != nil {
			rec.Verdict = trial.Skip
			rec.Reason = reasonInterrupted
			return child
		}

		rec.Probes = append(rec.Probes, r)
		if o.metrics != nil {
			o.metrics.RecordProbe(metrics.PhaseTrial, r)
		}
		if o.cfg.Callbacks.OnProbe != nil {
			o.cfg.Callbacks.OnProbe(c, r)
		}
		if !r.OK() {
			rec.Reason = fmt.Sprintf("%s: %s", target, r.Detail())
			return child
		}
	}

	rec.Verdict = trial.Pass
	return child
}

func (o *Orchestrator) logTrial(rec trial.Record) {
	attrs := []any{
		"index", rec.Index + 1,
		"candidate", rec.Candidate.Name,
		"verdict", rec.Verdict.String(),
		"process_appeared", rec.ProcessAppeared,
		"duration", rec.Duration.String(),
	}
	if rec.Reason != "" {
		attrs = append(attrs, "reason", rec.Reason)
	}
	if rec.Unclassified() {
		attrs = append(attrs, "unclassified", true)
	}

	switch rec.Verdict {
	case trial.Pass:
		o.logger.Info("trial_passed", attrs...)
	case trial.Skip:
		o.logger.Warn("trial_skipped", attrs...)
	default:
		o.logger.Info("trial_failed", attrs...)
	}
}
