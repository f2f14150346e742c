// Package preflight provides the startup checks run before any candidate
// is tried: environment checks (RunAll) and the direct reachability probe
// of the targets (ProbeTargets).
package preflight

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Options configures RunAll.
type Options struct {
	CandidatesDir string
	Candidates    int

	ProcessName string
	// IsRunning reports whether the expected process is already running.
	// Nil skips the check.
	IsRunning func(ctx context.Context, name string) bool

	Targets []string
	// DNSResolver is host:port. Empty skips the DNS check.
	DNSResolver string
	DNSTimeout  time.Duration
}

// RunAll executes the environment checks. Only the candidates check is
// fatal; the others are informational warnings.
func RunAll(ctx context.Context, opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	candCheck := checkCandidates(opts.CandidatesDir, opts.Candidates)
	result.Checks = append(result.Checks, candCheck)
	if !candCheck.Passed {
		result.Passed = false
	}

	result.Checks = append(result.Checks, checkPrivileges())

	if opts.IsRunning != nil {
		result.Checks = append(result.Checks, checkExistingProcess(ctx, opts.ProcessName, opts.IsRunning))
	}

	if opts.DNSResolver != "" {
		timeout := opts.DNSTimeout
		if timeout <= 0 {
			timeout = defaultDNSTimeout
		}
		result.Checks = append(result.Checks, checkDNS(ctx, opts.DNSResolver, opts.Targets, timeout))
	}

	return result
}

// checkCandidates verifies the catalog is not empty.
func checkCandidates(dir string, n int) Check {
	return Check{
		Name:     "candidates",
		Required: 1,
		Actual:   n,
		Passed:   n > 0,
		Message:  fmt.Sprintf("%d pre-configs in %s", n, dir),
	}
}

// checkPrivileges warns when the tool is not elevated. Bypass helpers
// need administrator or root rights to install their packet filter.
func checkPrivileges() Check {
	elevated, err := isElevated()
	switch {
	case err != nil:
		return Check{
			Name:    "privileges",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	case !elevated:
		return Check{
			Name:    "privileges",
			Passed:  true,
			Warning: true,
			Message: "not elevated, the bypass process may fail to start",
		}
	default:
		return Check{
			Name:    "privileges",
			Passed:  true,
			Message: "elevated",
		}
	}
}

// checkExistingProcess warns that an already running expected process
// will be terminated.
func checkExistingProcess(ctx context.Context, name string, isRunning func(context.Context, string) bool) Check {
	if isRunning(ctx, name) {
		return Check{
			Name:    "existing_process",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s is already running and will be terminated", name),
		}
	}
	return Check{
		Name:    "existing_process",
		Passed:  true,
		Message: fmt.Sprintf("no %s running", name),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		PrintCheck(w, check)
	}
	fmt.Fprintln(w)
}

// PrintCheck prints one check, with a fix hint when it failed or warned.
func PrintCheck(w io.Writer, check Check) {
	fmt.Fprintln(w, check.String())
	if !check.Passed || check.Warning {
		fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
	}
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "candidates":
		return "put pre-config scripts in the directory or pass -dir"
	case "privileges":
		return "run as administrator (Windows) or root"
	case "existing_process":
		return "stop the running bypass service first if it should be kept"
	case "dns":
		return "check the resolver or pass -dns-resolver \"\" to skip"
	case "target":
		return "check the network connection"
	default:
		return "see documentation"
	}
}
