package orchestrator

import "time"

// State is the lifecycle stage of one tracked process
type State int

const (
	StatePlaced State = iota
	StateLaunched
	StateTracked
	StateCleaned
	StateCleanupFailed
	// StateReplaced is an entry untracked because a newer start took over its artifact. The
	// process itself may still run.
	StateReplaced
)

func (s State) String() string {
	switch s {
	case StatePlaced:
		return "placed"
	case StateLaunched:
		return "launched"
	case StateTracked:
		return "tracked"
	case StateCleaned:
		return "cleaned"
	case StateCleanupFailed:
		return "cleanup_failed"
	case StateReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Dead reports whether s is terminal
func (s State) Dead() bool {
	return s == StateCleaned || s == StateCleanupFailed
}

// Recorder receives orchestrator events; *metrics.Collector implements it
type Recorder interface {
	ArtifactPlaced()
	Launch(err error)
	Tracked(n int)
	Sweep(d time.Duration, ended, cleanupFailures int, err error)
	CleanupFailed(n int)
	LockDegraded()
	Transition(from, to string)
}

type noopRecorder struct{}

func (noopRecorder) ArtifactPlaced() {}
func (noopRecorder) Launch(error) {}
func (noopRecorder) Tracked(int) {}
func (noopRecorder) Sweep(time.Duration, int, int, error) {}
func (noopRecorder) CleanupFailed(int) {}
func (noopRecorder) LockDegraded() {}
func (noopRecorder) Transition(string, string) {}
