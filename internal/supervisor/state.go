// Package supervisor holds the trial state machine and the bounded retry
// policy used when tearing down bypass processes.
package supervisor

// State is a step of the trial state machine.
//
//	Idle → Preflight → SelectingCandidate → Launching → WaitingForProcess →
//	Probing → RecordingResult → Cleanup → (SelectingCandidate | Done)
type State int

const (
	// StateIdle is the initial state before anything ran.
	StateIdle State = iota

	// StatePreflight probes the bare targets with no candidate running.
	StatePreflight

	// StateSelectingCandidate picks the next candidate in catalog order.
	StateSelectingCandidate

	// StateLaunching clears stale processes and starts the candidate script.
	StateLaunching

	// StateWaitingForProcess polls the process table for the bypass process.
	StateWaitingForProcess

	// StateProbing probes every target with the candidate running.
	StateProbing

	// StateRecordingResult seals the trial record with its verdict.
	StateRecordingResult

	// StateCleanup kills the candidate and terminates the bypass process.
	StateCleanup

	// StateDone is terminal.
	StateDone
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreflight:
		return "preflight"
	case StateSelectingCandidate:
		return "selecting_candidate"
	case StateLaunching:
		return "launching"
	case StateWaitingForProcess:
		return "waiting_for_process"
	case StateProbing:
		return "probing"
	case StateRecordingResult:
		return "recording_result"
	case StateCleanup:
		return "cleanup"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// IsActive returns true while a candidate may be running.
func (s State) IsActive() bool {
	return s >= StateLaunching && s <= StateCleanup
}

// IsTerminal returns true if the state is Done.
func (s State) IsTerminal() bool {
	return s == StateDone
}

// CanTransition reports whether the state machine allows moving from s to
// next.
func (s State) CanTransition(next State) bool {
	if next == StateDone {
		// Done is reachable after preflight, after cleanup, and from idle
		// when there is nothing to try.
		return s == StateIdle || s == StatePreflight || s == StateSelectingCandidate || s == StateCleanup
	}
	switch s {
	case StateIdle:
		return next == StatePreflight || next == StateSelectingCandidate
	case StatePreflight:
		return next == StateSelectingCandidate
	case StateSelectingCandidate:
		return next == StateLaunching
	case StateLaunching:
		return next == StateWaitingForProcess || next == StateRecordingResult
	case StateWaitingForProcess:
		return next == StateProbing || next == StateRecordingResult
	case StateProbing:
		return next == StateRecordingResult
	case StateRecordingResult:
		return next == StateCleanup
	case StateCleanup:
		return next == StateSelectingCandidate
	default:
		return false
	}
}
