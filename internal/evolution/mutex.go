package evolution

import "sync/atomic"

// runMutex guards the single public evolution coroutine: only one
// run_evolution may execute at a time, process-wide. Matches the
// teacher's pkg/ralph/control.go single-flight guard around its own
// background loop, reduced to the one bit SkillLite's evolution engine
// needs.
var runMutex atomic.Bool

// tryAcquire attempts to claim the evolution run slot, returning false if
// a run is already in progress.
func tryAcquire() bool {
	return runMutex.CompareAndSwap(false, true)
}

// release frees the evolution run slot.
func release() {
	runMutex.Store(false)
}
