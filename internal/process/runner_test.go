package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestInterpreter(t *testing.T) {
	tests := []struct {
		path     string
		wantName string
		wantArgs string
	}{
		{"/c/general.bat", "cmd", "/C /c/general.bat"},
		{"/c/GENERAL.CMD", "cmd", "/C /c/GENERAL.CMD"},
		{"/c/run.ps1", "powershell", "-NoProfile -ExecutionPolicy Bypass -File /c/run.ps1"},
		{"/c/run.sh", "sh", "/c/run.sh"},
		{"/c/winws-start", "/c/winws-start", ""},
	}

	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			name, args := Interpreter(tt.path)
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if got := strings.Join(args, " "); got != tt.wantArgs {
				t.Errorf("args = %q, want %q", got, tt.wantArgs)
			}
		})
	}
}

func TestScriptRunner_BuildCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "general (ALT).sh")
	writeFile(t, path, "#!/bin/sh\n")

	cmd, err := ScriptRunner{}.BuildCommand(trial.Candidate{Name: "general (ALT).sh", Path: path})
	if err != nil {
		t.Fatalf("BuildCommand error: %v", err)
	}
	if cmd.Dir != dir {
		t.Errorf("Dir = %q, want %q", cmd.Dir, dir)
	}
	if last := cmd.Args[len(cmd.Args)-1]; last != path {
		t.Errorf("script path argument = %q, want %q", last, path)
	}
	if cmd.Process != nil {
		t.Error("command must not be started")
	}
}

func TestLaunchError(t *testing.T) {
	err := &LaunchError{Candidate: "a.bat", Path: "/x/a.bat", Err: os.ErrPermission}
	if !strings.Contains(err.Error(), "a.bat") {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Unwrap() != os.ErrPermission {
		t.Error("Unwrap should return the cause")
	}
}
