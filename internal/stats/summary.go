// Package stats formats the run summary printed at program exit and
// written to the summary file.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

const (
	ruleWidth = 79
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Color enables ANSI styling of verdicts.
	Color bool

	// MetricsAddr is the Prometheus metrics endpoint address, if any.
	MetricsAddr string

	// Timing from metrics.Collector; zero values are omitted.
	ProbeP50 time.Duration
	ProbeP95 time.Duration
	WaitP50  time.Duration
	WaitP95  time.Duration
	Kills    int64
}

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// FormatRunSummary formats a run summary for display at program exit.
//
// The summary includes:
// - Run information and the overall verdict
// - Preflight results per target
// - One line per trial
// - Timing percentiles, when available
// - Footnotes with diagnostic information
func FormatRunSummary(s *trial.Summary, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                         preconfig-tester Run Summary\n")
	b.WriteString(heavyRule + "\n")

	// Run info
	fmt.Fprintf(&b, "Run ID:                 %s\n", s.RunID)
	fmt.Fprintf(&b, "Targets:                %s\n", strings.Join(s.Targets, ", "))
	fmt.Fprintf(&b, "Process:                %s\n", s.ProcessName)
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(s.Duration))
	fmt.Fprintf(&b, "Verdict:                %s\n", verdictText(s.Verdict, cfg.Color))
	if s.Winner != nil {
		kept := ""
		if s.KeptRunning {
			kept = "  (left running)"
		}
		fmt.Fprintf(&b, "Winner:                 %s%s\n", s.Winner.Name, kept)
	}
	b.WriteString("\n")

	// Preflight
	section(&b, "Preflight")
	if s.PreflightSkipped {
		b.WriteString("  skipped\n")
	}
	for _, r := range s.Preflight {
		fmt.Fprintf(&b, "  %-28s %s\n", r.Target, r.Detail())
	}
	b.WriteString("\n")

	// Trials
	if len(s.Records) > 0 {
		section(&b, "Trials")
		fmt.Fprintf(&b, "  %3s  %-7s %-32s %8s  %s\n", "#", "Result", "Candidate", "Wait", "Detail")
		b.WriteString("  " + strings.Repeat("─", 75) + "\n")
		for _, r := range s.Records {
			fmt.Fprintf(&b, "  %3d  %s %-32s %8s  %s\n",
				r.Index+1,
				trialText(r.Verdict, cfg.Color),
				truncate(r.Candidate.Name, 32),
				FormatMs(r.ProcessWait),
				trialDetail(r),
			)
		}
		pass, fail, skip := s.Counts()
		fmt.Fprintf(&b, "\n  Tried %d of %d candidates: %d passed, %d failed, %d skipped\n\n",
			len(s.Records), s.Candidates, pass, fail, skip)
	}

	// Timing (from metrics.Collector)
	if cfg.ProbeP50 > 0 || cfg.WaitP50 > 0 || cfg.Kills > 0 {
		section(&b, "Timing")
		if cfg.ProbeP50 > 0 {
			fmt.Fprintf(&b, "  Probe latency P50:    %s\n", FormatMs(cfg.ProbeP50))
			fmt.Fprintf(&b, "  Probe latency P95:    %s\n", FormatMs(cfg.ProbeP95))
		}
		if cfg.WaitP50 > 0 {
			fmt.Fprintf(&b, "  Process start P50:    %s\n", FormatMs(cfg.WaitP50))
			fmt.Fprintf(&b, "  Process start P95:    %s\n", FormatMs(cfg.WaitP95))
		}
		if cfg.Kills > 0 {
			fmt.Fprintf(&b, "  Processes killed:     %d\n", cfg.Kills)
		}
		b.WriteString("\n")
	}

	if footnotes := renderFootnotes(s); footnotes != "" {
		b.WriteString(footnotes)
	}

	b.WriteString(advice(s) + "\n")

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(heavyRule)

	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(lightRule)
	pad := (ruleWidth - len(title)) / 2
	fmt.Fprintf(b, "%s%s\n", strings.Repeat(" ", max(pad, 0)), title)
	b.WriteString(lightRule + "\n")
}

// trialDetail is the reason for a non-passing trial, or the probe latency
// of a passing one.
func trialDetail(r trial.Record) string {
	if r.Verdict == trial.Pass {
		var total time.Duration
		for _, p := range r.Probes {
			total += p.Latency
		}
		return fmt.Sprintf("all targets reachable (%s)", FormatMs(total))
	}
	return r.Reason
}

// renderFootnotes adds diagnostic info that doesn't belong in the table.
func renderFootnotes(s *trial.Summary) string {
	var footnotes []string

	unclassified := 0
	for _, r := range s.Records {
		for _, p := range r.Probes {
			if p.Unclassified {
				unclassified++
			}
		}
	}
	for _, p := range s.Preflight {
		if p.Unclassified {
			unclassified++
		}
	}
	if unclassified > 0 {
		footnotes = append(footnotes, fmt.Sprintf(
			"[1] Unclassified transport errors: %d (counted as connection reset, see error_class in the logs)",
			unclassified))
	}

	if len(footnotes) == 0 {
		return ""
	}

	var b strings.Builder
	section(&b, "Footnotes")
	for _, fn := range footnotes {
		fmt.Fprintf(&b, "  %s\n", fn)
	}
	b.WriteString("\n")
	return b.String()
}

// advice returns the closing line for the run verdict.
func advice(s *trial.Summary) string {
	switch s.Verdict {
	case trial.Found:
		return fmt.Sprintf("This pre-config seems suitable for you: %s", s.Winner.Name)
	case trial.NoConfigNeeded:
		return "Targets are reachable directly. No pre-config is needed."
	case trial.NetworkUnavailable:
		return "No connection. Check the internet connection and the domain name."
	case trial.Interrupted:
		return fmt.Sprintf("Run interrupted after %d of %d candidates.", len(s.Records), s.Candidates)
	default:
		return "No pre-config established a connection. Try blockcheck to find working parameters."
	}
}

func verdictText(v trial.RunVerdict, color bool) string {
	text := strings.ToUpper(strings.ReplaceAll(v.String(), "_", " "))
	if !color {
		return text
	}
	switch v {
	case trial.Found, trial.NoConfigNeeded:
		return passStyle.Render(text)
	case trial.Interrupted:
		return skipStyle.Render(text)
	default:
		return failStyle.Render(text)
	}
}

func trialText(v trial.Verdict, color bool) string {
	text := fmt.Sprintf("%-7s", strings.ToUpper(v.String()))
	if !color {
		return text
	}
	switch v {
	case trial.Pass:
		return passStyle.Render(text)
	case trial.Skip:
		return skipStyle.Render(text)
	default:
		return failStyle.Render(text)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// WriteJSON writes the summary as indented JSON to path.
func WriteJSON(path string, s *trial.Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
