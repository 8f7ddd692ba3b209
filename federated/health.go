package federated

import (
	"math/rand"
	"sync"
)

// healthTracker counts recent timeouts per peer and uses them to thin
// out calls to a flaky peer, without ever fully excluding it: a peer
// that has timed out N times in a row is skipped this round with
// probability N/(N+1) (equivalently: called with probability 1/(N+1)),
// so a peer that recovers is retried quickly while one that stays down
// contributes less and less wasted wait time to each query.
type healthTracker struct {
	mu       sync.Mutex
	timeouts map[string]int
}

func newHealthTracker() *healthTracker {
	return &healthTracker{timeouts: make(map[string]int)}
}

func (h *healthTracker) shouldSkip(urn string) bool {
	h.mu.Lock()
	n := h.timeouts[urn]
	h.mu.Unlock()
	if n == 0 {
		return false
	}
	return rand.Intn(n+1) != 0
}

func (h *healthTracker) recordTimeout(urn string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeouts[urn]++
}

func (h *healthTracker) recordSuccess(urn string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.timeouts, urn)
}
