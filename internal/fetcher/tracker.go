package fetcher

import (
	"context"
	"sync"

	"github.com/geowidget/tilefetch/internal/tile"
)

// handle represents one in-flight tile download. abort requests
// cooperative cancellation of the underlying HTTP operation; the
// completion handler still runs and must recognize that it lost its
// registration.
type handle struct {
	abort context.CancelFunc
}

// Tracker maps each in-flight tile coordinate to its outstanding
// network operation. At most one operation is registered per
// coordinate at any time.
type Tracker struct {
	mu      sync.Mutex
	pending map[tile.Coord]*handle
}

func NewTracker() *Tracker {
	return &Tracker{
		pending: make(map[tile.Coord]*handle),
	}
}

// Submit registers h under coord. An operation already registered for
// the same coordinate is cancelled first, so its completion handler
// can no longer deliver or touch the cache.
func (t *Tracker) Submit(coord tile.Coord, h *handle) {
	t.mu.Lock()
	prev := t.pending[coord]
	t.pending[coord] = h
	t.mu.Unlock()

	if prev != nil {
		prev.abort()
	}
}

// Cancel aborts and removes the operation registered for coord, if
// any. Idempotent: repeated calls and unknown coordinates are no-ops.
// Once Cancel returns, the operation's completion handler will find
// its registration gone and deliver nothing.
func (t *Tracker) Cancel(coord tile.Coord) {
	t.mu.Lock()
	h := t.pending[coord]
	delete(t.pending, coord)
	t.mu.Unlock()

	if h != nil {
		h.abort()
	}
}

// Complete removes the registration for coord if h is still the
// registered operation, and reports whether it was. A false return
// means the operation was cancelled or superseded while in flight;
// the caller must short-circuit without delivering.
func (t *Tracker) Complete(coord tile.Coord, h *handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending[coord] != h {
		return false
	}
	delete(t.pending, coord)
	return true
}

// InFlight reports the number of outstanding operations.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
