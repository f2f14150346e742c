package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-preconfig-tester/internal/metrics"
	"github.com/randomizedcoder/go-preconfig-tester/internal/preflight"
	"github.com/randomizedcoder/go-preconfig-tester/internal/probe"
	"github.com/randomizedcoder/go-preconfig-tester/internal/process"
	"github.com/randomizedcoder/go-preconfig-tester/internal/supervisor"
	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeLifecycle records every call. A candidate's expected process
// "appears" when its name is in appears.
type fakeLifecycle struct {
	mu sync.Mutex

	launchErr map[string]error
	appears   map[string]bool

	// running is the candidate whose process is up, "" when none.
	running string

	events     []string
	launches   int
	terminates int
	cleanups   map[string]int

	// onWait runs at the start of WaitForNamedProcess.
	onWait func()
}

func newFakeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{
		launchErr: map[string]error{},
		appears:   map[string]bool{},
		cleanups:  map[string]int{},
	}
}

func (f *fakeLifecycle) Launch(ctx context.Context, c trial.Candidate) (*process.Child, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, "launch:"+c.Name)
	if err := f.launchErr[c.Name]; err != nil {
		return nil, &process.LaunchError{Candidate: c.Name, Path: c.Path, Err: err}
	}
	f.launches++
	if f.appears[c.Name] {
		f.running = c.Name
	}
	return &process.Child{}, nil
}

func (f *fakeLifecycle) WaitForNamedProcess(ctx context.Context, name string, timeout time.Duration) bool {
	if f.onWait != nil {
		f.onWait()
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, "wait")
	return f.running != "" && ctx.Err() == nil
}

func (f *fakeLifecycle) Terminate(ctx context.Context, name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, "terminate")
	f.terminates++
	if f.running != "" {
		f.running = ""
		return 1
	}
	return 0
}

func (f *fakeLifecycle) Cleanup(ctx context.Context, child *process.Child, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Attribute the cleanup to the last launched candidate.
	last := ""
	for i := len(f.events) - 1; i >= 0; i-- {
		if after, ok := strings.CutPrefix(f.events[i], "launch:"); ok {
			last = after
			break
		}
	}
	f.events = append(f.events, "cleanup:"+last)
	f.cleanups[last]++
	f.running = ""
}

func (f *fakeLifecycle) current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// fakeProber answers from the candidate currently running. bare is used
// when nothing runs; perCandidate overrides per candidate and target.
type fakeProber struct {
	life         *fakeLifecycle
	bare         probe.Outcome
	perCandidate map[string]map[string]probe.Outcome
	calls        []string
}

func (p *fakeProber) Probe(ctx context.Context, target string) (probe.Result, error) {
	p.calls = append(p.calls, target)
	cand := p.life.current()
	out := p.bare
	if cand != "" {
		out = probe.ConnectionReset
		if o, ok := p.perCandidate[cand][target]; ok {
			out = o
		}
	}
	return probe.Result{Target: target, Outcome: out}, nil
}

func candidates(names ...string) []trial.Candidate {
	out := make([]trial.Candidate, len(names))
	for i, n := range names {
		out[i] = trial.Candidate{Name: n, Path: "/pre-configs/" + n}
	}
	return out
}

func testConfig() Config {
	return Config{
		RunID:              "test-run",
		Targets:            []string{"discord.com:443"},
		ProcessName:        "winws.exe",
		ProcessWaitTimeout: time.Millisecond,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// succeedOn makes cand pass every target in targets.
func succeedOn(cand string, targets ...string) map[string]map[string]probe.Outcome {
	m := map[string]probe.Outcome{}
	for _, t := range targets {
		m[t] = probe.Success
	}
	return map[string]map[string]probe.Outcome{cand: m}
}

// =============================================================================
// Trial loop
// =============================================================================

func TestRun_EndToEnd(t *testing.T) {
	// A never starts the process, B starts it but the target resets, C works.
	life := newFakeLifecycle()
	life.appears["B.bat"] = true
	life.appears["C.bat"] = true
	prober := &fakeProber{
		life:         life,
		bare:         probe.ConnectionReset,
		perCandidate: succeedOn("C.bat", "discord.com:443"),
	}

	s := New(testConfig(), prober, life).Run(context.Background(), candidates("A.bat", "B.bat", "C.bat"))

	if s.Verdict != trial.Found {
		t.Fatalf("verdict = %v, want found", s.Verdict)
	}
	if s.Winner == nil || s.Winner.Name != "C.bat" {
		t.Fatalf("winner = %v, want C.bat", s.Winner)
	}
	if len(s.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(s.Records))
	}

	want := []struct {
		verdict  trial.Verdict
		appeared bool
		reason   string
	}{
		{trial.Fail, false, process.ErrProcessTimeout.Error()},
		{trial.Fail, true, "connection reset"},
		{trial.Pass, true, ""},
	}
	for i, w := range want {
		r := s.Records[i]
		if r.Index != i {
			t.Errorf("record %d Index = %d", i, r.Index)
		}
		if r.Verdict != w.verdict || r.ProcessAppeared != w.appeared {
			t.Errorf("record %d = %v appeared=%v, want %v appeared=%v", i, r.Verdict, r.ProcessAppeared, w.verdict, w.appeared)
		}
		if !strings.Contains(r.Reason, w.reason) || (w.reason == "" && r.Reason != "") {
			t.Errorf("record %d reason = %q, want %q", i, r.Reason, w.reason)
		}
	}

	// A is never probed; B once; C once. Plus one preflight probe.
	if len(prober.calls) != 3 {
		t.Errorf("probe calls = %d, want 3", len(prober.calls))
	}
	if s.Records[0].Probes != nil {
		t.Error("a candidate whose process never appeared must not be probed")
	}

	for _, name := range []string{"A.bat", "B.bat", "C.bat"} {
		if n := life.cleanups[name]; n != 1 {
			t.Errorf("cleanup(%s) = %d, want exactly 1", name, n)
		}
	}
}

func TestRun_CleanupBeforeNextLaunch(t *testing.T) {
	life := newFakeLifecycle()
	prober := &fakeProber{life: life, bare: probe.Timeout}

	New(testConfig(), prober, life).Run(context.Background(), candidates("A.bat", "B.bat"))

	idxCleanupA, idxLaunchB := -1, -1
	for i, e := range life.events {
		switch e {
		case "cleanup:A.bat":
			idxCleanupA = i
		case "launch:B.bat":
			idxLaunchB = i
		}
	}
	if idxCleanupA < 0 || idxLaunchB < 0 || idxCleanupA > idxLaunchB {
		t.Errorf("A must be cleaned up before B launches: %v", life.events)
	}

	// Every launch is preceded by a terminate.
	for i, e := range life.events {
		if strings.HasPrefix(e, "launch:") && (i == 0 || life.events[i-1] != "terminate") {
			t.Errorf("launch at %d not preceded by terminate: %v", i, life.events)
		}
	}
}

func TestRun_StopsAtFirstSuccess(t *testing.T) {
	life := newFakeLifecycle()
	for _, n := range []string{"1.bat", "2.bat", "3.bat", "4.bat"} {
		life.appears[n] = true
	}
	prober := &fakeProber{
		life:         life,
		bare:         probe.CensorshipRedirect,
		perCandidate: succeedOn("2.bat", "discord.com:443"),
	}

	s := New(testConfig(), prober, life).Run(context.Background(), candidates("1.bat", "2.bat", "3.bat", "4.bat"))

	if s.Verdict != trial.Found || s.Winner.Name != "2.bat" {
		t.Fatalf("verdict = %v winner = %v", s.Verdict, s.Winner)
	}
	if len(s.Records) != 2 || life.launches != 2 {
		t.Errorf("records = %d launches = %d, want 2 and 2", len(s.Records), life.launches)
	}
	if s.Verdict.ExitCode() != 0 {
		t.Errorf("exit code = %d, want 0", s.Verdict.ExitCode())
	}
}

func TestRun_Exhausted(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		life := newFakeLifecycle()
		prober := &fakeProber{life: life, bare: probe.ConnectionReset}
		names := make([]string, n)
		for i := range names {
			names[i] = string(rune('A'+i)) + ".bat"
			life.appears[names[i]] = true
		}

		s := New(testConfig(), prober, life).Run(context.Background(), candidates(names...))

		if s.Verdict != trial.Exhausted {
			t.Errorf("n=%d verdict = %v, want exhausted", n, s.Verdict)
		}
		if len(s.Records) != n {
			t.Errorf("n=%d records = %d, want at most and exactly %d", n, len(s.Records), n)
		}
		if s.Winner != nil {
			t.Errorf("n=%d unexpected winner", n)
		}
		if s.Verdict.ExitCode() != 2 {
			t.Errorf("exit code = %d, want 2", s.Verdict.ExitCode())
		}
	}
}

func TestRun_LaunchFailureSkips(t *testing.T) {
	life := newFakeLifecycle()
	life.launchErr["A.bat"] = errors.New("access is denied")
	life.appears["B.bat"] = true
	prober := &fakeProber{
		life:         life,
		bare:         probe.ConnectionReset,
		perCandidate: succeedOn("B.bat", "discord.com:443"),
	}

	s := New(testConfig(), prober, life).Run(context.Background(), candidates("A.bat", "B.bat"))

	a := s.Records[0]
	if a.Verdict != trial.Skip || a.Launched {
		t.Errorf("A = %v launched=%v, want skip and not launched", a.Verdict, a.Launched)
	}
	if !strings.HasPrefix(a.Reason, "launch failed") {
		t.Errorf("A reason = %q", a.Reason)
	}
	if life.cleanups["A.bat"] != 1 {
		t.Errorf("cleanup(A) = %d, want 1 even when launch failed", life.cleanups["A.bat"])
	}
	if s.Winner == nil || s.Winner.Name != "B.bat" {
		t.Errorf("winner = %v, want B.bat", s.Winner)
	}
}

func TestRun_MultipleTargets(t *testing.T) {
	cfg := testConfig()
	cfg.Targets = []string{"discord.com:443", "youtube.com:443"}

	life := newFakeLifecycle()
	life.appears["A.bat"] = true
	life.appears["B.bat"] = true
	per := map[string]map[string]probe.Outcome{
		// A unblocks only the first target.
		"A.bat": {"discord.com:443": probe.Success, "youtube.com:443": probe.Timeout},
		"B.bat": {"discord.com:443": probe.Success, "youtube.com:443": probe.Success},
	}
	prober := &fakeProber{life: life, bare: probe.ConnectionReset, perCandidate: per}

	s := New(cfg, prober, life).Run(context.Background(), candidates("A.bat", "B.bat"))

	if s.Winner == nil || s.Winner.Name != "B.bat" {
		t.Fatalf("winner = %v, want B.bat", s.Winner)
	}
	a := s.Records[0]
	if a.Verdict != trial.Fail || len(a.Probes) != 2 {
		t.Errorf("A = %v with %d probes", a.Verdict, len(a.Probes))
	}
	if !strings.HasPrefix(a.Reason, "youtube.com:443") {
		t.Errorf("A reason = %q, want the failing target", a.Reason)
	}
	if len(s.Preflight) != 2 {
		t.Errorf("preflight results = %d, want one per target", len(s.Preflight))
	}
}

func TestRun_ProbeStopsAtFirstFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Targets = []string{"a.com:443", "b.com:443", "c.com:443"}
	cfg.SkipPreflight = true

	life := newFakeLifecycle()
	life.appears["A.bat"] = true
	prober := &fakeProber{life: life} // every target resets

	s := New(cfg, prober, life).Run(context.Background(), candidates("A.bat"))

	if n := len(s.Records[0].Probes); n != 1 {
		t.Errorf("probes = %d, want 1", n)
	}
}

// =============================================================================
// Preflight
// =============================================================================

func TestRun_PreflightShortCircuit(t *testing.T) {
	tests := []struct {
		bare probe.Outcome
		want trial.RunVerdict
		exit int
	}{
		{probe.Success, trial.NoConfigNeeded, 0},
		{probe.NoConnection, trial.NetworkUnavailable, 3},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			life := newFakeLifecycle()
			prober := &fakeProber{life: life, bare: tt.bare}

			var gotVerdict preflight.Verdict = -1
			cfg := testConfig()
			cfg.Callbacks.OnPreflight = func(v preflight.Verdict, _ []probe.Result) { gotVerdict = v }

			s := New(cfg, prober, life).Run(context.Background(), candidates("A.bat", "B.bat"))

			if s.Verdict != tt.want {
				t.Errorf("verdict = %v, want %v", s.Verdict, tt.want)
			}
			if len(s.Records) != 0 || life.launches != 0 {
				t.Errorf("records = %d launches = %d, want none", len(s.Records), life.launches)
			}
			if len(s.Preflight) != 1 {
				t.Errorf("preflight results = %d, want 1", len(s.Preflight))
			}
			if gotVerdict < 0 {
				t.Error("OnPreflight not called")
			}
			// The terminate before the bare check plus the final two.
			if life.terminates != 3 {
				t.Errorf("terminates = %d, want 3", life.terminates)
			}
			if s.Verdict.ExitCode() != tt.exit {
				t.Errorf("exit code = %d, want %d", s.Verdict.ExitCode(), tt.exit)
			}
		})
	}
}

func TestRun_PreflightLogsTargetDetail(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	life := newFakeLifecycle()
	prober := &fakeProber{life: life, bare: probe.ConnectionReset}

	New(cfg, prober, life).Run(context.Background(), nil)

	out := buf.String()
	if !strings.Contains(out, "msg=preflight_result") {
		t.Fatalf("no preflight_result record:\n%s", out)
	}
	if !strings.Contains(out, "discord.com:443 connection reset") || !strings.Contains(out, "passed=true") {
		t.Errorf("preflight_result lacks the per-target detail:\n%s", out)
	}
}

func TestRun_SkipPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.SkipPreflight = true

	life := newFakeLifecycle()
	life.appears["A.bat"] = true
	// The bare target would be reachable, but preflight is skipped.
	prober := &fakeProber{life: life, bare: probe.Success, perCandidate: succeedOn("A.bat", "discord.com:443")}

	s := New(cfg, prober, life).Run(context.Background(), candidates("A.bat"))

	if !s.PreflightSkipped || s.Preflight != nil {
		t.Errorf("preflight ran: skipped=%v results=%v", s.PreflightSkipped, s.Preflight)
	}
	if s.Verdict != trial.Found {
		t.Errorf("verdict = %v, want found", s.Verdict)
	}
	if len(prober.calls) != 1 {
		t.Errorf("probe calls = %d, want 1", len(prober.calls))
	}
}

// =============================================================================
// Run modes
// =============================================================================

func TestRun_FinalTerminate(t *testing.T) {
	life := newFakeLifecycle()
	prober := &fakeProber{life: life, bare: probe.ConnectionReset}

	New(testConfig(), prober, life).Run(context.Background(), candidates("A.bat"))

	n := len(life.events)
	if n < 3 || life.events[n-1] != "terminate" || life.events[n-2] != "terminate" || life.events[n-3] != "cleanup:A.bat" {
		t.Errorf("want cleanup then two final terminates, got %v", life.events)
	}
}

func TestRun_FinalTerminateAfterLaunchFailures(t *testing.T) {
	life := newFakeLifecycle()
	life.launchErr["A.bat"] = errors.New("access is denied")
	life.launchErr["B.bat"] = errors.New("access is denied")
	prober := &fakeProber{life: life, bare: probe.ConnectionReset}

	s := New(testConfig(), prober, life).Run(context.Background(), candidates("A.bat", "B.bat"))

	if s.Verdict != trial.Exhausted || life.launches != 0 {
		t.Fatalf("verdict = %v launches = %d", s.Verdict, life.launches)
	}
	n := len(life.events)
	if n < 2 || life.events[n-1] != "terminate" || life.events[n-2] != "terminate" {
		t.Errorf("want two final terminates even with no launch, got %v", life.events)
	}
}

func TestRun_KeepRunning(t *testing.T) {
	cfg := testConfig()
	cfg.KeepRunning = true

	life := newFakeLifecycle()
	life.appears["A.bat"] = true
	life.appears["B.bat"] = true
	prober := &fakeProber{life: life, bare: probe.ConnectionReset, perCandidate: succeedOn("B.bat", "discord.com:443")}

	s := New(cfg, prober, life).Run(context.Background(), candidates("A.bat", "B.bat"))

	if !s.KeptRunning || s.Winner == nil || s.Winner.Name != "B.bat" {
		t.Fatalf("kept=%v winner=%v", s.KeptRunning, s.Winner)
	}
	if life.cleanups["A.bat"] != 1 {
		t.Errorf("losing candidate must still be cleaned up")
	}
	if life.cleanups["B.bat"] != 0 {
		t.Errorf("winner was cleaned up")
	}
	if life.current() != "B.bat" {
		t.Errorf("winner was terminated; running = %q", life.current())
	}
}

func TestRun_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	life := newFakeLifecycle()
	life.appears["A.bat"] = true
	life.onWait = cancel
	prober := &fakeProber{life: life, bare: probe.ConnectionReset}

	s := New(testConfig(), prober, life).Run(ctx, candidates("A.bat", "B.bat"))

	if s.Verdict != trial.Interrupted {
		t.Fatalf("verdict = %v, want interrupted", s.Verdict)
	}
	if len(s.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(s.Records))
	}
	if r := s.Records[0]; r.Verdict != trial.Skip || r.Reason != reasonInterrupted {
		t.Errorf("record = %v %q", r.Verdict, r.Reason)
	}
	if life.cleanups["A.bat"] != 1 {
		t.Error("interrupted trial must still be cleaned up")
	}
	if life.launches != 1 {
		t.Errorf("launches = %d, want 1", life.launches)
	}
	// Final terminate still runs on a context that outlives the run's.
	if life.events[len(life.events)-1] != "terminate" {
		t.Errorf("no final terminate: %v", life.events)
	}
	if s.Verdict.ExitCode() != 130 {
		t.Errorf("exit code = %d", s.Verdict.ExitCode())
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	life := newFakeLifecycle()
	s := New(testConfig(), &fakeProber{life: life}, life).Run(ctx, candidates("A.bat"))

	if s.Verdict != trial.Interrupted {
		t.Errorf("verdict = %v, want interrupted", s.Verdict)
	}
	if life.launches != 0 {
		t.Error("nothing should launch after cancellation")
	}
}

// =============================================================================
// State machine and observers
// =============================================================================

func TestRun_StateTransitions(t *testing.T) {
	life := newFakeLifecycle()
	life.appears["B.bat"] = true
	prober := &fakeProber{life: life, bare: probe.ConnectionReset, perCandidate: succeedOn("B.bat", "discord.com:443")}

	var states []supervisor.State
	cfg := testConfig()
	cfg.Callbacks.OnStateChange = func(old, next supervisor.State) {
		if !old.CanTransition(next) {
			t.Errorf("invalid transition %s -> %s", old, next)
		}
		states = append(states, next)
	}

	o := New(cfg, prober, life)
	o.Run(context.Background(), candidates("A.bat", "B.bat"))

	want := []supervisor.State{
		supervisor.StatePreflight,
		// A: process never appears
		supervisor.StateSelectingCandidate,
		supervisor.StateLaunching,
		supervisor.StateWaitingForProcess,
		supervisor.StateRecordingResult,
		supervisor.StateCleanup,
		// B: passes
		supervisor.StateSelectingCandidate,
		supervisor.StateLaunching,
		supervisor.StateWaitingForProcess,
		supervisor.StateProbing,
		supervisor.StateRecordingResult,
		supervisor.StateCleanup,
		supervisor.StateDone,
	}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state %d = %s, want %s", i, states[i], want[i])
		}
	}
	if !o.State().IsTerminal() {
		t.Error("orchestrator should end in Done")
	}
}

func TestRun_Callbacks(t *testing.T) {
	life := newFakeLifecycle()
	life.appears["A.bat"] = true
	prober := &fakeProber{life: life, bare: probe.ConnectionReset}

	var starts, waits, probes, dones int
	var summary *trial.Summary
	cfg := testConfig()
	cfg.Callbacks = Callbacks{
		OnTrialStart: func(index, total int, c trial.Candidate) {
			if total != 2 {
				t.Errorf("total = %d", total)
			}
			starts++
		},
		OnProcessWait: func(trial.Candidate, bool, time.Duration) { waits++ },
		OnProbe:       func(trial.Candidate, probe.Result) { probes++ },
		OnTrialDone:   func(trial.Record) { dones++ },
		OnDone:        func(s *trial.Summary) { summary = s },
	}

	s := New(cfg, prober, life).Run(context.Background(), candidates("A.bat", "B.bat"))

	if starts != 2 || waits != 2 || dones != 2 {
		t.Errorf("starts=%d waits=%d dones=%d, want 2 each", starts, waits, dones)
	}
	if probes != 1 {
		t.Errorf("probes = %d, want 1 (only A started the process)", probes)
	}
	if summary != s {
		t.Error("OnDone should receive the returned summary")
	}
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{Candidates: 2}, reg)

	cfg := testConfig()
	cfg.Metrics = collector

	life := newFakeLifecycle()
	life.appears["B.bat"] = true
	prober := &fakeProber{life: life, bare: probe.ConnectionReset, perCandidate: succeedOn("B.bat", "discord.com:443")}

	New(cfg, prober, life).Run(context.Background(), candidates("A.bat", "B.bat"))

	sum := collector.GenerateSummary()
	if sum.Trials[trial.Fail] != 1 || sum.Trials[trial.Pass] != 1 {
		t.Errorf("trials = %v", sum.Trials)
	}
	// One preflight probe and one trial probe.
	if sum.Probes != 2 {
		t.Errorf("probes = %d, want 2", sum.Probes)
	}
}
