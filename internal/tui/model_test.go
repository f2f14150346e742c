package tui

import (
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-preconfig-tester/internal/preflight"
	"github.com/randomizedcoder/go-preconfig-tester/internal/probe"
	"github.com/randomizedcoder/go-preconfig-tester/internal/supervisor"
	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

// =============================================================================
// Helpers
// =============================================================================

func newTestModel() Model {
	return New(Config{
		Targets:     []string{"discord.com:443"},
		ProcessName: "winws.exe",
		Candidates:  4,
		MetricsAddr: "localhost:9100",
	})
}

func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// =============================================================================
// Tests: New / Init
// =============================================================================

func TestNew(t *testing.T) {
	m := newTestModel()

	if m.total != 4 {
		t.Errorf("total = %d, want 4", m.total)
	}
	if m.processName != "winws.exe" {
		t.Errorf("processName = %s, want winws.exe", m.processName)
	}
	if m.width != 80 || m.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", m.width, m.height)
	}
	if m.state != supervisor.StateIdle {
		t.Errorf("state = %v, want idle", m.state)
	}
}

func TestModel_Init(t *testing.T) {
	if cmd := newTestModel().Init(); cmd == nil {
		t.Error("Init() returned nil cmd")
	}
}

// =============================================================================
// Tests: Update - Key Messages
// =============================================================================

func TestModel_Update_QuitKeys(t *testing.T) {
	tests := []struct {
		name     string
		msg      tea.KeyMsg
		wantQuit bool
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, true},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, true},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, true},
		{"x", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, cmd := newTestModel().Update(tt.msg)
			m := next.(Model)

			if m.quitting != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", m.quitting, tt.wantQuit)
			}
			if tt.wantQuit && cmd == nil {
				t.Error("expected tea.Quit cmd")
			}
			if tt.wantQuit && m.View() != "" {
				t.Error("View() should be empty after quit")
			}
		})
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	m := update(t, newTestModel(), tea.WindowSizeMsg{Width: 120, Height: 40})
	if m.width != 120 || m.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", m.width, m.height)
	}
}

// =============================================================================
// Tests: Update - Run Events
// =============================================================================

func TestModel_Update_TrialLifecycle(t *testing.T) {
	c := trial.Candidate{Name: "general.bat"}
	m := update(t, newTestModel(),
		StateMsg{Old: supervisor.StateIdle, New: supervisor.StatePreflight},
		PreflightMsg{Verdict: preflight.Blocked, Results: []probe.Result{{Target: "discord.com:443", Outcome: probe.ConnectionReset}}},
		TrialStartMsg{Index: 0, Total: 4, Candidate: c},
		ProcessWaitMsg{Appeared: true, Waited: 800 * time.Millisecond},
		ProbeMsg{Result: probe.Result{Target: "discord.com:443", Outcome: probe.Timeout}},
	)

	if m.state != supervisor.StatePreflight {
		t.Errorf("state = %v", m.state)
	}
	if m.current == nil || m.current.Name != "general.bat" {
		t.Fatalf("current = %+v", m.current)
	}
	if !m.waitDone || !m.appeared || m.waited != 800*time.Millisecond {
		t.Errorf("wait = done:%v appeared:%v %v", m.waitDone, m.appeared, m.waited)
	}
	if len(m.probes) != 1 || len(m.preflight) != 1 {
		t.Errorf("probes=%d preflight=%d", len(m.probes), len(m.preflight))
	}

	m = update(t, m,
		TrialDoneMsg{Record: trial.Record{Index: 0, Candidate: c, Verdict: trial.Fail, Reason: "timeout"}},
		TrialStartMsg{Index: 1, Total: 4, Candidate: trial.Candidate{Name: "general_ALT.bat"}},
	)

	if m.tried != 1 || len(m.history) != 1 {
		t.Errorf("tried=%d history=%d", m.tried, len(m.history))
	}
	if m.waitDone || len(m.probes) != 0 {
		t.Error("trial start must reset the current trial")
	}
	if got := m.Progress(); got != 0.25 {
		t.Errorf("Progress() = %v, want 0.25", got)
	}
}

func TestModel_Update_HistoryBounded(t *testing.T) {
	m := newTestModel()
	for i := range historySize + 3 {
		m = update(t, m, TrialDoneMsg{Record: trial.Record{Index: i}})
	}
	if len(m.history) != historySize {
		t.Fatalf("history = %d, want %d", len(m.history), historySize)
	}
	if m.history[0].Index != 3 {
		t.Errorf("oldest kept index = %d, want 3", m.history[0].Index)
	}
	if m.tried != historySize+3 {
		t.Errorf("tried = %d", m.tried)
	}
}

func TestModel_Update_Done(t *testing.T) {
	winner := trial.Candidate{Name: "general_ALT.bat"}
	m := update(t, newTestModel(),
		TrialStartMsg{Index: 1, Total: 4, Candidate: winner},
		DoneMsg{Summary: &trial.Summary{Verdict: trial.Found, Winner: &winner, Duration: 3 * time.Second}},
	)

	if !m.Done() || m.current != nil || m.state != supervisor.StateDone {
		t.Errorf("done=%v current=%v state=%v", m.Done(), m.current, m.state)
	}
	if m.Elapsed() != 3*time.Second {
		t.Errorf("Elapsed() = %v, want summary duration", m.Elapsed())
	}

	_, cmd := m.Update(TickMsg(time.Now()))
	if cmd != nil {
		t.Error("tick after done should not schedule another tick")
	}

	view := m.View()
	for _, want := range []string{"FOUND", "general_ALT.bat"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_Update_QuitMsg(t *testing.T) {
	next, cmd := newTestModel().Update(QuitMsg{})
	if !next.(Model).quitting || cmd == nil {
		t.Error("QuitMsg should quit")
	}
}

// =============================================================================
// Tests: View
// =============================================================================

func TestModel_View(t *testing.T) {
	m := update(t, newTestModel(),
		tea.WindowSizeMsg{Width: 100, Height: 40},
		TrialStartMsg{Index: 0, Total: 4, Candidate: trial.Candidate{Name: "general.bat"}},
		ProbeMsg{Result: probe.Result{Target: "discord.com:443", Outcome: probe.ConnectionReset}},
		TrialDoneMsg{Record: trial.Record{Candidate: trial.Candidate{Name: "discord.bat"}, Verdict: trial.Skip, Reason: "launch failed"}},
	)

	view := m.View()
	for _, want := range []string{
		"preconfig-tester",
		"discord.com:443",
		"Trying 1/4",
		"general.bat",
		"connection reset",
		"SKIP",
		"launch failed",
		"http://localhost:9100/metrics",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_View_NotStarted(t *testing.T) {
	view := newTestModel().View()
	if !strings.Contains(view, "4 candidates queued") {
		t.Errorf("view = %q", view)
	}
	if strings.Contains(view, "Current Trial") {
		t.Error("no current trial expected")
	}
}

// =============================================================================
// Tests: Callbacks
// =============================================================================

func TestCallbacks(t *testing.T) {
	var s recordingSender
	cb := Callbacks(&s)
	c := trial.Candidate{Name: "a.bat"}

	cb.OnStateChange(supervisor.StateIdle, supervisor.StatePreflight)
	cb.OnPreflight(preflight.Blocked, nil)
	cb.OnTrialStart(0, 2, c)
	cb.OnProcessWait(c, false, time.Second)
	cb.OnProbe(c, probe.Result{Outcome: probe.Success})
	cb.OnTrialDone(trial.Record{Candidate: c})
	cb.OnDone(&trial.Summary{})

	want := []string{"StateMsg", "PreflightMsg", "TrialStartMsg", "ProcessWaitMsg", "ProbeMsg", "TrialDoneMsg", "DoneMsg"}
	if len(s.msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(s.msgs), len(want))
	}
	for i, msg := range s.msgs {
		var got string
		switch msg.(type) {
		case StateMsg:
			got = "StateMsg"
		case PreflightMsg:
			got = "PreflightMsg"
		case TrialStartMsg:
			got = "TrialStartMsg"
		case ProcessWaitMsg:
			got = "ProcessWaitMsg"
		case ProbeMsg:
			got = "ProbeMsg"
		case TrialDoneMsg:
			got = "TrialDoneMsg"
		case DoneMsg:
			got = "DoneMsg"
		}
		if got != want[i] {
			t.Errorf("msg[%d] = %T, want %s", i, msg, want[i])
		}
	}
}

// =============================================================================
// Tests: Formatting
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{time.Hour + time.Second, "01:00:01"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatMs(t *testing.T) {
	if got := formatMs(250 * time.Millisecond); got != "250 ms" {
		t.Errorf("formatMs = %q", got)
	}
	if got := formatMs(5 * time.Microsecond); got != "5 µs" {
		t.Errorf("formatMs = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"general_ALT2.bat", 8, "general…"},
		{"abc", 1, "…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
