package orchestrator

import "sync"

// tracker counts terminal provider outcomes for one request and decides
// when aggregation runs. Completion is level-triggered: the provider
// whose record call brings the terminal count to the expected total
// claims finalization, and the claim is handed out exactly once even if
// the deadline fires concurrently.
type tracker struct {
	mu        sync.Mutex
	expected  int
	terminal  int
	succeeded int
	finalized bool
}

func newTracker(expected int) *tracker {
	return &tracker{expected: expected}
}

// record marks one provider terminal. It returns true for the caller
// that should finalize the request; every other caller gets false.
func (t *tracker) record(succeeded bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.terminal++
	if succeeded {
		t.succeeded++
	}
	if t.finalized || t.terminal < t.expected {
		return false
	}
	t.finalized = true
	return true
}

// forceFinalize claims finalization regardless of outstanding providers,
// used when the request deadline expires. Returns false when the request
// already finalized normally.
func (t *tracker) forceFinalize() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finalized {
		return false
	}
	t.finalized = true
	return true
}

// successes reports how many providers completed with a parsed payload.
func (t *tracker) successes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.succeeded
}

// complete reports whether every expected provider reached a terminal
// state.
func (t *tracker) complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminal >= t.expected
}
