// Package metrics provides Prometheus metrics for preconfig-tester.
//
// All metrics are prefixed preconfig_ and are owned by a Collector, so a
// test can register a fresh set into its own registry. Probe latency and
// process start times are also kept in t-digests for the exit summary.
package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-preconfig-tester/internal/probe"
	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

// Probe phases used as the "phase" label.
const (
	PhasePreflight = "preflight"
	PhaseTrial     = "trial"
)

// digestCompression matches ~100 centroids per digest.
const digestCompression = 100

// Collector manages all Prometheus metrics for a run.
type Collector struct {
	// --- Run overview ---
	info           *prometheus.GaugeVec
	candidates     prometheus.Gauge
	currentIndex   prometheus.Gauge
	state          *prometheus.GaugeVec
	runVerdict     *prometheus.GaugeVec
	elapsedSeconds prometheus.GaugeFunc

	// --- Trials ---
	trialsTotal    *prometheus.CounterVec
	processWait    *prometheus.HistogramVec
	terminateKills prometheus.Counter

	// --- Probes ---
	probeOutcomes *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec

	startTime time.Time

	mu           sync.Mutex
	lastState    string
	probeDigest  *tdigest.TDigest
	waitDigest   *tdigest.TDigest
	probes       int64
	unclassified int64
	kills        int64
	trials       map[trial.Verdict]int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	RunID       string
	Targets     []string
	ProcessName string
	Candidates  int
}

// NewCollectorWithRegistry creates a collector registered with registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		startTime:   time.Now(),
		probeDigest: tdigest.NewWithCompression(digestCompression),
		waitDigest:  tdigest.NewWithCompression(digestCompression),
		trials:      make(map[trial.Verdict]int64),
	}

	c.info = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preconfig_info",
			Help: "Information about the run (value always 1)",
		},
		[]string{"run_id", "process_name", "targets"},
	)
	c.candidates = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "preconfig_candidates_total",
		Help: "Number of candidates in the catalog",
	})
	c.currentIndex = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "preconfig_current_candidate_index",
		Help: "1-based index of the candidate under trial (0 = none)",
	})
	c.state = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preconfig_state",
			Help: "Current orchestrator state (1 for the active state)",
		},
		[]string{"state"},
	)
	c.runVerdict = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preconfig_run_verdict",
			Help: "Run verdict (1 for the final verdict, set once the run ends)",
		},
		[]string{"verdict"},
	)
	c.elapsedSeconds = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "preconfig_elapsed_seconds",
			Help: "Seconds since the run started",
		},
		func() float64 { return time.Since(c.startTime).Seconds() },
	)

	c.trialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconfig_trials_total",
			Help: "Finished trials by verdict",
		},
		[]string{"verdict"},
	)
	c.processWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preconfig_process_wait_seconds",
			Help:    "Time from launch until the expected process appeared or the wait gave up",
			Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 7.5, 10, 15, 30},
		},
		[]string{"appeared"},
	)
	c.terminateKills = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preconfig_terminate_kills_total",
		Help: "Processes killed by name",
	})

	c.probeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconfig_probe_outcomes_total",
			Help: "Connectivity probe outcomes",
		},
		[]string{"phase", "outcome", "unclassified"},
	)
	c.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preconfig_probe_duration_seconds",
			Help:    "Connectivity probe latency, excluding pre and post delays",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 9), // 50ms .. 12.8s
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		c.info,
		c.candidates,
		c.currentIndex,
		c.state,
		c.runVerdict,
		c.elapsedSeconds,
		c.trialsTotal,
		c.processWait,
		c.terminateKills,
		c.probeOutcomes,
		c.probeDuration,
	)

	// Pre-create outcome series so dashboards see zeros.
	for _, o := range probe.AllOutcomes() {
		c.probeOutcomes.WithLabelValues(PhaseTrial, o.String(), "false")
	}
	for _, v := range []trial.Verdict{trial.Pass, trial.Fail, trial.Skip} {
		c.trialsTotal.WithLabelValues(v.String())
	}

	c.info.WithLabelValues(cfg.RunID, cfg.ProcessName, strings.Join(cfg.Targets, ",")).Set(1)
	c.candidates.Set(float64(cfg.Candidates))

	return c
}

// =============================================================================
// Update Methods
// =============================================================================

// SetState marks state as the active orchestrator state.
func (c *Collector) SetState(state string) {
	c.mu.Lock()
	prev := c.lastState
	c.lastState = state
	c.mu.Unlock()

	if prev != "" && prev != state {
		c.state.WithLabelValues(prev).Set(0)
	}
	c.state.WithLabelValues(state).Set(1)
}

// TrialStarted records the 1-based index of the candidate under trial.
func (c *Collector) TrialStarted(index int) {
	c.currentIndex.Set(float64(index))
}

// RecordProcessWait records how long the wait for the expected process took.
func (c *Collector) RecordProcessWait(d time.Duration, appeared bool) {
	c.processWait.WithLabelValues(strconv.FormatBool(appeared)).Observe(d.Seconds())
	if !appeared {
		return
	}

	c.mu.Lock()
	c.waitDigest.Add(d.Seconds(), 1)
	c.mu.Unlock()
}

// RecordProbe records one probe result.
func (c *Collector) RecordProbe(phase string, r probe.Result) {
	c.probeOutcomes.WithLabelValues(phase, r.Outcome.String(), strconv.FormatBool(r.Unclassified)).Inc()
	c.probeDuration.WithLabelValues(r.Outcome.String()).Observe(r.Latency.Seconds())

	c.mu.Lock()
	c.probes++
	if r.Unclassified {
		c.unclassified++
	}
	c.probeDigest.Add(r.Latency.Seconds(), 1)
	c.mu.Unlock()
}

// RecordTrial records a finished trial.
func (c *Collector) RecordTrial(rec trial.Record) {
	c.trialsTotal.WithLabelValues(rec.Verdict.String()).Inc()

	c.mu.Lock()
	c.trials[rec.Verdict]++
	c.mu.Unlock()
}

// RecordKill records one process killed by name. It matches the
// process.ManagerConfig OnKill hook.
func (c *Collector) RecordKill(pid int, name string) {
	c.terminateKills.Inc()

	c.mu.Lock()
	c.kills++
	c.mu.Unlock()
}

// SetRunVerdict publishes the final run verdict and clears the current
// candidate index.
func (c *Collector) SetRunVerdict(v trial.RunVerdict) {
	for _, other := range trial.AllRunVerdicts() {
		val := 0.0
		if other == v {
			val = 1
		}
		c.runVerdict.WithLabelValues(other.String()).Set(val)
	}
	c.currentIndex.Set(0)
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for the exit summary.
type Summary struct {
	Duration     time.Duration
	Probes       int64
	Unclassified int64
	Kills        int64
	Trials       map[trial.Verdict]int64

	ProbeP50 time.Duration
	ProbeP95 time.Duration
	WaitP50  time.Duration
	WaitP95  time.Duration
}

// GenerateSummary creates a summary of the run so far.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:     time.Since(c.startTime),
		Probes:       c.probes,
		Unclassified: c.unclassified,
		Kills:        c.kills,
		Trials:       make(map[trial.Verdict]int64, len(c.trials)),
	}
	for v, n := range c.trials {
		s.Trials[v] = n
	}

	if c.probeDigest.Count() > 0 {
		s.ProbeP50 = seconds(c.probeDigest.Quantile(0.50))
		s.ProbeP95 = seconds(c.probeDigest.Quantile(0.95))
	}
	if c.waitDigest.Count() > 0 {
		s.WaitP50 = seconds(c.waitDigest.Quantile(0.50))
		s.WaitP95 = seconds(c.waitDigest.Quantile(0.95))
	}
	return s
}

// =============================================================================
// Helper Functions
// =============================================================================

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
