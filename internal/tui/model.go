package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-preconfig-tester/internal/orchestrator"
	"github.com/randomizedcoder/go-preconfig-tester/internal/preflight"
	"github.com/randomizedcoder/go-preconfig-tester/internal/probe"
	"github.com/randomizedcoder/go-preconfig-tester/internal/supervisor"
	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

// historySize is the number of finished trials shown on the dashboard.
const historySize = 8

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the elapsed time.
type TickMsg time.Time

// StateMsg reports a state machine transition.
type StateMsg struct {
	Old, New supervisor.State
}

// PreflightMsg carries the bare target probe results.
type PreflightMsg struct {
	Verdict preflight.Verdict
	Results []probe.Result
}

// TrialStartMsg reports that a candidate is about to be launched.
type TrialStartMsg struct {
	Index     int
	Total     int
	Candidate trial.Candidate
}

// ProcessWaitMsg reports the end of the wait for the bypass process.
type ProcessWaitMsg struct {
	Appeared bool
	Waited   time.Duration
}

// ProbeMsg carries one probe result of the running trial.
type ProbeMsg struct {
	Result probe.Result
}

// TrialDoneMsg carries a finished trial record.
type TrialDoneMsg struct {
	Record trial.Record
}

// DoneMsg carries the final summary.
type DoneMsg struct {
	Summary *trial.Summary
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model is the live trial dashboard.
type Model struct {
	// Configuration
	targets     []string
	processName string
	metricsAddr string

	// Current state
	state      supervisor.State
	preflight  []probe.Result
	index      int
	total      int
	current    *trial.Candidate
	waited     time.Duration
	appeared   bool
	waitDone   bool
	probes     []probe.Result
	history    []trial.Record
	tried      int
	summary    *trial.Summary
	startTime  time.Time
	lastUpdate time.Time

	// Display options
	width  int
	height int

	// Quit flag
	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	Targets     []string
	ProcessName string
	Candidates  int
	MetricsAddr string
}

// New creates a new dashboard model.
func New(cfg Config) Model {
	return Model{
		targets:     cfg.Targets,
		processName: cfg.ProcessName,
		total:       cfg.Candidates,
		metricsAddr: cfg.MetricsAddr,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.lastUpdate = time.Time(msg)
		if m.summary != nil {
			return m, nil
		}
		return m, tickCmd()

	case StateMsg:
		m.state = msg.New
		return m, nil

	case PreflightMsg:
		m.preflight = msg.Results
		return m, nil

	case TrialStartMsg:
		c := msg.Candidate
		m.current = &c
		m.index = msg.Index
		m.total = msg.Total
		m.waitDone = false
		m.appeared = false
		m.waited = 0
		m.probes = nil
		return m, nil

	case ProcessWaitMsg:
		m.waitDone = true
		m.appeared = msg.Appeared
		m.waited = msg.Waited
		return m, nil

	case ProbeMsg:
		m.probes = append(m.probes, msg.Result)
		return m, nil

	case TrialDoneMsg:
		m.tried++
		m.history = append(m.history, msg.Record)
		if len(m.history) > historySize {
			m.history = m.history[len(m.history)-historySize:]
		}
		return m, nil

	case DoneMsg:
		m.summary = msg.Summary
		m.state = supervisor.StateDone
		m.current = nil
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	if m.summary != nil && m.summary.Duration > 0 {
		return m.summary.Duration
	}
	return time.Since(m.startTime)
}

// Progress returns the share of candidates tried (0.0 to 1.0).
func (m Model) Progress() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.tried) / float64(m.total)
}

// Done reports whether the run has finished.
func (m Model) Done() bool {
	return m.summary != nil
}

// =============================================================================
// Orchestrator wiring
// =============================================================================

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Callbacks returns orchestrator callbacks that forward run events to s.
func Callbacks(s Sender) orchestrator.Callbacks {
	return orchestrator.Callbacks{
		OnStateChange: func(old, new supervisor.State) {
			s.Send(StateMsg{Old: old, New: new})
		},
		OnPreflight: func(v preflight.Verdict, results []probe.Result) {
			s.Send(PreflightMsg{Verdict: v, Results: results})
		},
		OnTrialStart: func(index, total int, c trial.Candidate) {
			s.Send(TrialStartMsg{Index: index, Total: total, Candidate: c})
		},
		OnProcessWait: func(_ trial.Candidate, appeared bool, waited time.Duration) {
			s.Send(ProcessWaitMsg{Appeared: appeared, Waited: waited})
		},
		OnProbe: func(_ trial.Candidate, r probe.Result) {
			s.Send(ProbeMsg{Result: r})
		},
		OnTrialDone: func(rec trial.Record) {
			s.Send(TrialDoneMsg{Record: rec})
		},
		OnDone: func(sum *trial.Summary) {
			s.Send(DoneMsg{Summary: sum})
		},
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatMs formats a duration as milliseconds.
func formatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
