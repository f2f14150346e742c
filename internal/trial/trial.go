// Package trial holds the result types shared by the orchestrator, the
// summary formatter and the metrics collector.
package trial

import (
	"fmt"
	"strings"
	"time"

	"github.com/randomizedcoder/go-preconfig-tester/internal/probe"
)

// Candidate is one pre-config script. Catalog order is trial order.
type Candidate struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Verdict is the result of a single trial.
type Verdict int

const (
	// Pass means the expected process appeared and every target probed Success.
	Pass Verdict = iota

	// Fail means the process never appeared or a probe did not succeed.
	Fail

	// Skip means the candidate could not be launched.
	Skip
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// MarshalText encodes the verdict as its name.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes a verdict name.
func (v *Verdict) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "pass":
		*v = Pass
	case "fail":
		*v = Fail
	case "skip":
		*v = Skip
	default:
		return fmt.Errorf("unknown trial verdict %q", b)
	}
	return nil
}

// Record describes one finished trial. It is appended once and never mutated.
type Record struct {
	Index           int            `json:"index"`
	Candidate       Candidate      `json:"candidate"`
	Launched        bool           `json:"launched"`
	ProcessAppeared bool           `json:"process_appeared"`
	ProcessWait     time.Duration  `json:"process_wait"`
	Probes          []probe.Result `json:"probes,omitempty"`
	Verdict         Verdict        `json:"verdict"`
	Reason          string         `json:"reason,omitempty"`
	Started         time.Time      `json:"started"`
	Duration        time.Duration  `json:"duration"`
}

// Unclassified reports whether any probe of the trial hit an unrecognised
// transport error.
func (r Record) Unclassified() bool {
	for _, p := range r.Probes {
		if p.Unclassified {
			return true
		}
	}
	return false
}

// RunVerdict is the overall result of a run.
type RunVerdict int

const (
	// Exhausted means every candidate was tried and none worked.
	Exhausted RunVerdict = iota

	// Found means a candidate made every target reachable.
	Found

	// NoConfigNeeded means the targets were reachable without any candidate.
	NoConfigNeeded

	// NetworkUnavailable means the preflight probe found no connectivity.
	NetworkUnavailable

	// Interrupted means the run was cancelled before it reached a verdict.
	Interrupted
)

func (v RunVerdict) String() string {
	switch v {
	case Exhausted:
		return "exhausted"
	case Found:
		return "found"
	case NoConfigNeeded:
		return "no_config_needed"
	case NetworkUnavailable:
		return "network_unavailable"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// MarshalText encodes the run verdict as its name.
func (v RunVerdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes a run verdict name.
func (v *RunVerdict) UnmarshalText(b []byte) error {
	for _, c := range AllRunVerdicts() {
		if c.String() == string(b) {
			*v = c
			return nil
		}
	}
	return fmt.Errorf("unknown run verdict %q", b)
}

// AllRunVerdicts lists every run verdict.
func AllRunVerdicts() []RunVerdict {
	return []RunVerdict{Exhausted, Found, NoConfigNeeded, NetworkUnavailable, Interrupted}
}

// ExitCode maps the run verdict to the process exit status.
func (v RunVerdict) ExitCode() int {
	switch v {
	case Found, NoConfigNeeded:
		return 0
	case Exhausted:
		return 2
	case NetworkUnavailable:
		return 3
	case Interrupted:
		return 130
	default:
		return 1
	}
}

// Summary is the complete report of a run.
type Summary struct {
	RunID            string         `json:"run_id"`
	Targets          []string       `json:"targets"`
	ProcessName      string         `json:"process_name"`
	PreflightSkipped bool           `json:"preflight_skipped"`
	Preflight        []probe.Result `json:"preflight,omitempty"`
	Candidates       int            `json:"candidates"`
	Records          []Record       `json:"records"`
	Winner           *Candidate     `json:"winner,omitempty"`
	KeptRunning      bool           `json:"kept_running,omitempty"`
	Verdict          RunVerdict     `json:"verdict"`
	Started          time.Time      `json:"started"`
	Duration         time.Duration  `json:"duration"`
}

// Counts returns the number of records per trial verdict.
func (s *Summary) Counts() (pass, fail, skip int) {
	for _, r := range s.Records {
		switch r.Verdict {
		case Pass:
			pass++
		case Fail:
			fail++
		case Skip:
			skip++
		}
	}
	return pass, fail, skip
}
