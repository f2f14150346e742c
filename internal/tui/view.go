package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-preconfig-tester/internal/probe"
)

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
	}

	if len(m.preflight) > 0 {
		sections = append(sections, m.renderPreflight())
	}
	if m.current != nil {
		sections = append(sections, m.renderCurrent())
	}
	if len(m.history) > 0 {
		sections = append(sections, m.renderHistory())
	}
	if m.summary != nil {
		sections = append(sections, m.renderResult())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" preconfig-tester │ %s │ %s │ Elapsed: %s ",
		strings.Join(m.targets, ", "),
		m.state,
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	barWidth := max(m.width-30, 20)
	bar := RenderProgressBar(m.Progress(), barWidth)

	var status string
	switch {
	case m.summary != nil:
		status = statusOK.Render(fmt.Sprintf("✓ Finished after %d of %d candidates", m.tried, m.total))
	case m.current != nil:
		status = statusInfo.Render(fmt.Sprintf("Trying %d/%d...", m.index+1, m.total))
	default:
		status = statusInfo.Render(fmt.Sprintf("%d candidates queued", m.total))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Candidates"),
		bar,
		status,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Preflight
// =============================================================================

func (m Model) renderPreflight() string {
	rows := []string{sectionHeaderStyle.Render("Preflight (no pre-config)")}
	for _, r := range m.preflight {
		rows = append(rows, renderProbeRow(r))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Current Trial
// =============================================================================

func (m Model) renderCurrent() string {
	wait := dimStyle.Render("waiting...")
	if m.waitDone {
		if m.appeared {
			wait = statusOK.Render("started in " + formatMs(m.waited))
		} else {
			wait = statusError.Render("not started after " + formatMs(m.waited))
		}
	}

	rows := []string{
		sectionHeaderStyle.Render("Current Trial"),
		RenderKeyValue("Candidate", m.current.Name),
		lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render(m.processName+":"), wait),
	}
	for _, r := range m.probes {
		rows = append(rows, renderProbeRow(r))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderProbeRow(r probe.Result) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(truncate(r.Target, 19)),
		GetOutcomeStyle(r.Outcome).Render(r.Detail()),
		mutedStyle.Render("  "+formatMs(r.Latency)),
	)
}

// =============================================================================
// History
// =============================================================================

func (m Model) renderHistory() string {
	nameWidth := max(m.width-30, 16)
	rows := []string{sectionHeaderStyle.Render("Recent Trials")}
	for _, r := range m.history {
		detail := r.Reason
		if detail == "" {
			detail = "all targets reachable"
		}
		rows = append(rows, fmt.Sprintf("%3d  %s  %-*s %s",
			r.Index+1,
			GetVerdictLabel(r.Verdict),
			nameWidth/2, truncate(r.Candidate.Name, nameWidth/2),
			mutedStyle.Render(truncate(detail, nameWidth/2)),
		))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Result
// =============================================================================

func (m Model) renderResult() string {
	s := m.summary
	verdict := strings.ToUpper(strings.ReplaceAll(s.Verdict.String(), "_", " "))
	rows := []string{
		titleStyle.Render("Result"),
		RenderKeyValue("Verdict", GetRunVerdictStyle(s.Verdict).Render(verdict)),
	}
	if s.Winner != nil {
		rows = append(rows, RenderKeyValue("Winner", s.Winner.Name))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	parts := []string{"q: quit"}
	if m.metricsAddr != "" {
		parts = append(parts, "metrics: http://"+m.metricsAddr+"/metrics")
	}
	return footerStyle.Render(strings.Join(parts, " │ "))
}
