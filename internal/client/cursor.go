package client

import (
	"sort"
	"sync"
	"time"

	"github.com/manpreetbhatti/sketchroom/internal/model"
)

const DefaultCursorInterval = 80 * time.Millisecond

// Throttle emits at most one pointer position per interval. The first move
// opens a window; the emission at its end carries the latest position seen
// inside it.
type Throttle struct {
	interval time.Duration
	emit     func(x, y float64)

	mu         sync.Mutex
	x, y       float64
	pending    bool
	gen        uint64
	timer      *time.Timer
	suppressed bool
	stopped    bool
}

func NewThrottle(interval time.Duration, emit func(x, y float64)) *Throttle {
	if interval <= 0 {
		interval = DefaultCursorInterval
	}
	return &Throttle{interval: interval, emit: emit}
}

func (t *Throttle) Move(x, y float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.suppressed || t.stopped {
		return
	}
	t.x, t.y = x, y
	if t.pending {
		return
	}
	t.pending = true
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.interval, func() { t.fire(gen) })
}

func (t *Throttle) fire(gen uint64) {
	t.mu.Lock()
	if !t.pending || t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.pending = false
	x, y := t.x, t.y
	t.mu.Unlock()

	t.emit(x, y)
}

// SetSuppressed turns emission off while the user is drawing. Suppressing
// drops any emission still pending.
func (t *Throttle) SetSuppressed(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suppressed = on
	if on {
		t.cancelLocked()
	}
}

func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.cancelLocked()
}

func (t *Throttle) cancelLocked() {
	if !t.pending {
		return
	}
	t.pending = false
	t.gen++
	t.timer.Stop()
}

// CursorBatch coalesces inbound cursor events between frames, keeping the
// latest position per peer.
type CursorBatch struct {
	pending map[string]model.Cursor
}

func NewCursorBatch() *CursorBatch {
	return &CursorBatch{pending: make(map[string]model.Cursor)}
}

func (b *CursorBatch) Put(c model.Cursor) {
	b.pending[c.UserID] = c
}

func (b *CursorBatch) Remove(userID string) {
	delete(b.pending, userID)
}

func (b *CursorBatch) Len() int {
	return len(b.pending)
}

// Drain returns the batch and starts a new one.
func (b *CursorBatch) Drain() map[string]model.Cursor {
	out := b.pending
	b.pending = make(map[string]model.Cursor)
	return out
}

// Cursors is the render state of remote pointers.
type Cursors struct {
	byUser map[string]model.Cursor
}

func NewCursors() *Cursors {
	return &Cursors{byUser: make(map[string]model.Cursor)}
}

func (c *Cursors) Apply(batch map[string]model.Cursor) {
	for id, cur := range batch {
		c.byUser[id] = cur
	}
}

func (c *Cursors) Drop(userID string) bool {
	if _, ok := c.byUser[userID]; !ok {
		return false
	}
	delete(c.byUser, userID)
	return true
}

func (c *Cursors) Reset() {
	c.byUser = make(map[string]model.Cursor)
}

func (c *Cursors) Get(userID string) (model.Cursor, bool) {
	cur, ok := c.byUser[userID]
	return cur, ok
}

// All returns the cursors ordered by user id.
func (c *Cursors) All() []model.Cursor {
	out := make([]model.Cursor, 0, len(c.byUser))
	for _, cur := range c.byUser {
		out = append(out, cur)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
