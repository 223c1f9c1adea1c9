package orchestration

import (
	"sync"
	"time"
)

// endpointTimer is a restartable one-shot countdown. Resetting it any number
// of times before it fires behaves like a single reset immediately before the
// last one; once it fires it stays quiet until the next reset.
type endpointTimer struct {
	mu         sync.Mutex
	timer      *time.Timer
	generation int

	onElapsed func()
}

func newEndpointTimer(onElapsed func()) *endpointTimer {
	return &endpointTimer{onElapsed: onElapsed}
}

func (t *endpointTimer) reset(threshold time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}

	t.generation++
	generation := t.generation
	t.timer = time.AfterFunc(threshold, func() {
		// A stale callback can still run after Stop lost the race; the
		// generation check drops it.
		t.mu.Lock()
		expired := generation == t.generation
		t.mu.Unlock()

		if expired {
			t.onElapsed()
		}
	})
}

func (t *endpointTimer) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
