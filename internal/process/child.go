package process

import (
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/randomizedcoder/go-preconfig-tester/internal/logging"
)

// Child is a launched candidate script. The zero value is a valid child
// that was never started; Kill on it does nothing.
type Child struct {
	cmd  *exec.Cmd
	pid  int
	name string

	done    chan struct{}
	exitErr error
	mu      sync.Mutex

	output []*logging.OutputHandler
}

func newChild(cmd *exec.Cmd, name string, output []*logging.OutputHandler) *Child {
	c := &Child{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		name:   name,
		done:   make(chan struct{}),
		output: output,
	}
	go c.reap()
	return c
}

// reap waits for the script so it does not linger as a zombie.
func (c *Child) reap() {
	err := c.cmd.Wait()
	for _, h := range c.output {
		h.Flush()
	}
	c.mu.Lock()
	c.exitErr = err
	c.mu.Unlock()
	close(c.done)
}

// PID returns the script's process ID, or 0 for a child never started.
func (c *Child) PID() int {
	if c == nil {
		return 0
	}
	return c.pid
}

// Name returns the candidate name.
func (c *Child) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Exited reports whether the script itself has exited. Scripts commonly
// exit right after starting the bypass process in the background. A child
// never started reports false.
func (c *Child) Exited() bool {
	if c == nil || c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the script's Wait error once it has exited.
func (c *Child) ExitErr() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitErr
}

// ExitSummary describes how the script ended, for trial reasons. It is
// empty while the script runs or when it was never started.
func (c *Child) ExitSummary() string {
	if !c.Exited() {
		return ""
	}
	err := c.ExitErr()
	if err == nil {
		return "script exited"
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return "script " + ee.ProcessState.String()
	}
	return "script: " + err.Error()
}

// Kill forcibly stops the script and its process group.
func (c *Child) Kill() error {
	if c == nil || c.cmd == nil || c.cmd.Process == nil {
		return nil
	}
	return killGroup(c.cmd)
}

// WaitExit waits up to timeout for the script to exit.
func (c *Child) WaitExit(timeout time.Duration) bool {
	if c == nil || c.done == nil {
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.done:
		return true
	case <-t.C:
		return false
	}
}

// RecentOutput returns up to n recent lines the script printed, when
// output capture is on.
func (c *Child) RecentOutput(n int) []string {
	if c == nil {
		return nil
	}
	var lines []string
	for _, h := range c.output {
		lines = append(lines, h.RecentLines(n)...)
	}
	return lines
}

// ErrorCounts tallies logging.ErrorPatterns across the captured output.
func (c *Child) ErrorCounts() map[string]int {
	if c == nil {
		return nil
	}
	counts := make(map[string]int)
	for _, h := range c.output {
		for pattern, n := range h.CountErrors() {
			counts[pattern] += n
		}
	}
	return counts
}
