package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	gproc "github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is one entry of a process table snapshot.
type ProcessInfo struct {
	PID  int
	Name string
}

// Table observes and kills OS processes.
type Table interface {
	// Snapshot lists the running processes.
	Snapshot(ctx context.Context) ([]ProcessInfo, error)

	// Kill forcibly terminates pid. A process that no longer exists is
	// not an error.
	Kill(ctx context.Context, pid int) error
}

// SystemTable is the real OS process table.
type SystemTable struct{}

// Snapshot implements Table. Processes whose name cannot be read (usually
// for lack of permission) are skipped, and so are zombies: a killed
// process stays listed until its parent reaps it, which can take forever
// under a PID 1 that does not reap.
func (SystemTable) Snapshot(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := gproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		if status, err := p.StatusWithContext(ctx); err == nil && isZombie(status) {
			continue
		}
		out = append(out, ProcessInfo{PID: int(p.Pid), Name: name})
	}
	return out, nil
}

// Kill implements Table.
func (SystemTable) Kill(ctx context.Context, pid int) error {
	p, err := gproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if isGone(err) {
			return nil
		}
		return fmt.Errorf("open pid %d: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil && !isGone(err) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

// isZombie reports whether a gopsutil status list marks an exited,
// unreaped process.
func isZombie(status []string) bool {
	for _, s := range status {
		if s == gproc.Zombie {
			return true
		}
	}
	return false
}

func isGone(err error) bool {
	return errors.Is(err, gproc.ErrorProcessNotRunning) || errors.Is(err, os.ErrProcessDone)
}

// MatchName reports whether a process name is the expected name. The
// comparison ignores case and tolerates a missing ".exe" on either side.
func MatchName(procName, want string) bool {
	return strings.EqualFold(trimExe(procName), trimExe(want))
}

func trimExe(name string) string {
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		return name[:len(name)-4]
	}
	return name
}

// Matches returns the entries of procs named name.
func Matches(procs []ProcessInfo, name string) []ProcessInfo {
	var out []ProcessInfo
	for _, p := range procs {
		if MatchName(p.Name, name) {
			out = append(out, p)
		}
	}
	return out
}
