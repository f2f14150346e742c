// Package process launches candidate scripts and manages the bypass process
// they start.
//
// The bypass process is found and killed by executable name. Any process
// with that name is treated as owned by this tool for the duration of a
// run, including ones that were started by something else.
package process

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

// Runner creates executable commands for candidates.
type Runner interface {
	// BuildCommand returns a ready-to-start command for the candidate.
	// The command should NOT be started yet.
	BuildCommand(c trial.Candidate) (*exec.Cmd, error)

	// Name returns a human-readable name for this runner.
	Name() string
}

// ScriptRunner runs a candidate through the interpreter its extension needs.
type ScriptRunner struct{}

// Name implements Runner.
func (ScriptRunner) Name() string {
	return "script"
}

// BuildCommand implements Runner. The working directory is the script's
// directory so relative paths inside it resolve the way they do when the
// script is double-clicked.
func (ScriptRunner) BuildCommand(c trial.Candidate) (*exec.Cmd, error) {
	path, err := filepath.Abs(c.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", c.Path, err)
	}

	name, args := Interpreter(path)
	cmd := exec.Command(name, args...)
	cmd.Dir = filepath.Dir(path)
	return cmd, nil
}

// Interpreter returns the program and arguments that run the script at path.
func Interpreter(path string) (string, []string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bat", ".cmd":
		return "cmd", []string{"/C", path}
	case ".ps1":
		return "powershell", []string{"-NoProfile", "-ExecutionPolicy", "Bypass", "-File", path}
	case ".sh":
		return "sh", []string{path}
	default:
		return path, nil
	}
}
