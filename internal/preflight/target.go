package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-preconfig-tester/internal/probe"
)

// Verdict is the outcome of probing the targets without any candidate.
type Verdict int

const (
	// Blocked means at least one target is not directly reachable and the
	// network is up. Candidates must be tried.
	Blocked Verdict = iota

	// NoConfigNeeded means every target is reachable directly.
	NoConfigNeeded

	// NetworkUnavailable means no target could be reached at the network
	// level.
	NetworkUnavailable
)

func (v Verdict) String() string {
	switch v {
	case Blocked:
		return "blocked"
	case NoConfigNeeded:
		return "no_config_needed"
	case NetworkUnavailable:
		return "network_unavailable"
	default:
		return "unknown"
	}
}

// Prober is the probe operation ProbeTargets needs.
type Prober interface {
	Probe(ctx context.Context, target string) (probe.Result, error)
}

// ErrNoTargets is returned when there is nothing to probe.
var ErrNoTargets = errors.New("no targets")

// ProbeTargets probes each target once, in order. The verdict is
// NoConfigNeeded when every target succeeds and NetworkUnavailable when
// every target reports NoConnection; anything else is Blocked. A cancelled
// context stops early with the results gathered so far. The only errors
// are ErrNoTargets and malformed target input.
func ProbeTargets(ctx context.Context, p Prober, targets []string) (Verdict, []probe.Result, error) {
	if len(targets) == 0 {
		return Blocked, nil, ErrNoTargets
	}

	results := make([]probe.Result, 0, len(targets))
	success, offline := 0, 0
	for _, target := range targets {
		if ctx.Err() != nil {
			return Blocked, results, nil
		}
		r, err := p.Probe(ctx, target)
		if err != nil {
			return Blocked, results, fmt.Errorf("preflight %s: %w", target, err)
		}
		results = append(results, r)
		switch r.Outcome {
		case probe.Success:
			success++
		case probe.NoConnection:
			offline++
		}
	}

	switch {
	case success == len(targets):
		return NoConfigNeeded, results, nil
	case offline == len(targets):
		return NetworkUnavailable, results, nil
	default:
		return Blocked, results, nil
	}
}

// TargetCheck renders a ProbeTargets verdict in the Check format.
func TargetCheck(v Verdict, results []probe.Result) Check {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s %s", r.Target, r.Detail()))
	}
	msg := v.String()
	if len(parts) > 0 {
		msg += ": " + strings.Join(parts, "; ")
	}
	return Check{
		Name:    "target",
		Passed:  v != NetworkUnavailable,
		Warning: v == Blocked,
		Message: msg,
	}
}
