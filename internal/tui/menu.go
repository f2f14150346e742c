package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-preconfig-tester/internal/config"
)

// ErrMenuExit is returned by RunMenu when the user leaves without choosing.
var ErrMenuExit = errors.New("menu exited")

const (
	customLabel = "Enter a custom domain"
	exitLabel   = "Exit"
)

// Menu lets the user pick a preset target domain or type one.
type Menu struct {
	choices []string
	cursor  int

	editing bool
	input   string
	err     string

	target string
	done   bool
}

// NewMenu returns a menu over the given preset domains.
func NewMenu(presets []string) Menu {
	choices := make([]string, 0, len(presets)+2)
	choices = append(choices, presets...)
	choices = append(choices, customLabel, exitLabel)
	return Menu{choices: choices}
}

// Target returns the normalized host:port the user chose, or "" if they
// exited.
func (m Menu) Target() string {
	return m.target
}

// Init initializes the menu.
func (m Menu) Init() tea.Cmd {
	return nil
}

// Update handles key presses.
func (m Menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.editing {
		return m.updateInput(key)
	}

	switch key.String() {
	case "q", "ctrl+c", "esc":
		m.done = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.choices)-1 {
			m.cursor++
		}
	case "enter":
		switch m.choices[m.cursor] {
		case exitLabel:
			m.done = true
			return m, tea.Quit
		case customLabel:
			m.editing = true
			m.input = ""
			m.err = ""
			return m, nil
		default:
			return m.choose(m.choices[m.cursor])
		}
	}
	return m, nil
}

func (m Menu) updateInput(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyCtrlC:
		m.done = true
		return m, tea.Quit
	case tea.KeyEsc:
		m.editing = false
		m.err = ""
		return m, nil
	case tea.KeyEnter:
		return m.choose(m.input)
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		return m, nil
	case tea.KeyRunes, tea.KeySpace:
		m.input += string(key.Runes)
		m.err = ""
		return m, nil
	}
	return m, nil
}

func (m Menu) choose(domain string) (tea.Model, tea.Cmd) {
	target, err := config.NormalizeDomain(domain)
	if err != nil {
		var inv *config.InvalidInputError
		if errors.As(err, &inv) {
			m.err = inv.Reason
		} else {
			m.err = err.Error()
		}
		return m, nil
	}
	m.target = target
	m.done = true
	return m, tea.Quit
}

// View renders the menu.
func (m Menu) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Which domain should the pre-configs unblock?"))
	b.WriteString("\n\n")

	if m.editing {
		fmt.Fprintf(&b, "  Domain: %s█\n", m.input)
		if m.err != "" {
			b.WriteString("  " + statusError.Render("✗ "+m.err) + "\n")
		}
		b.WriteString(footerStyle.Render("enter: confirm │ esc: back"))
		return b.String()
	}

	for i, c := range m.choices {
		line := "  " + c
		if i == m.cursor {
			line = selectedStyle.Render("▸ " + c)
		}
		b.WriteString(line + "\n")
	}
	if m.err != "" {
		b.WriteString("\n  " + statusError.Render("✗ "+m.err) + "\n")
	}
	b.WriteString(footerStyle.Render("↑/↓: move │ enter: select │ q: quit"))
	return b.String()
}

// RunMenu shows the domain menu on in/out and returns the chosen target.
func RunMenu(in io.Reader, out io.Writer) (string, error) {
	p := tea.NewProgram(NewMenu(config.PresetDomains), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("domain menu: %w", err)
	}
	m, ok := final.(Menu)
	if !ok || m.Target() == "" {
		return "", ErrMenuExit
	}
	return m.Target(), nil
}
