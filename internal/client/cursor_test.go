package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/sketchroom/internal/model"
)

type emissions struct {
	points [][2]float64
	mu     sync.Mutex
}

func (e *emissions) record(x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.points = append(e.points, [2]float64{x, y})
}

func (e *emissions) get() [][2]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][2]float64, len(e.points))
	copy(out, e.points)
	return out
}

func TestThrottleEmitsLatestPositionOnce(t *testing.T) {
	var got emissions
	th := NewThrottle(30*time.Millisecond, got.record)
	defer th.Stop()

	th.Move(1, 2)
	th.Move(3, 4)

	assert.Empty(t, got.get(), "nothing is sent before the window closes")
	assert.Eventually(t, func() bool { return len(got.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, [][2]float64{{3, 4}}, got.get())
}

func TestThrottleOpensNewWindowAfterEmission(t *testing.T) {
	var got emissions
	th := NewThrottle(20*time.Millisecond, got.record)
	defer th.Stop()

	th.Move(1, 1)
	require.Eventually(t, func() bool { return len(got.get()) == 1 }, time.Second, 5*time.Millisecond)

	th.Move(2, 2)
	require.Eventually(t, func() bool { return len(got.get()) == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, [][2]float64{{1, 1}, {2, 2}}, got.get())
}

func TestThrottleSuppressedDropsPending(t *testing.T) {
	var got emissions
	th := NewThrottle(20*time.Millisecond, got.record)
	defer th.Stop()

	th.Move(1, 1)
	th.SetSuppressed(true)
	th.Move(2, 2)
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, got.get())

	th.SetSuppressed(false)
	th.Move(3, 3)
	require.Eventually(t, func() bool { return len(got.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, [][2]float64{{3, 3}}, got.get())
}

func TestThrottleStop(t *testing.T) {
	var got emissions
	th := NewThrottle(20*time.Millisecond, got.record)

	th.Move(1, 1)
	th.Stop()
	th.Move(2, 2)
	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, got.get())
}

func TestCursorBatchKeepsLatestPerPeer(t *testing.T) {
	b := NewCursorBatch()
	b.Put(model.Cursor{UserID: "a", X: 1, Y: 1})
	b.Put(model.Cursor{UserID: "b", X: 5, Y: 5})
	b.Put(model.Cursor{UserID: "a", X: 2, Y: 2})

	drained := b.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, float64(2), drained["a"].X)
	assert.Zero(t, b.Len())
}

func TestCursorBatchRemove(t *testing.T) {
	b := NewCursorBatch()
	b.Put(model.Cursor{UserID: "a"})
	b.Remove("a")
	b.Remove("missing")

	assert.Empty(t, b.Drain())
}

func TestCursorsApplyAndDrop(t *testing.T) {
	c := NewCursors()
	c.Apply(map[string]model.Cursor{
		"b": {UserID: "b", X: 1},
		"a": {UserID: "a", X: 2},
	})
	c.Apply(map[string]model.Cursor{"b": {UserID: "b", X: 3}})

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].UserID)
	assert.Equal(t, float64(3), all[1].X)

	assert.True(t, c.Drop("a"))
	assert.False(t, c.Drop("a"))
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Reset()
	assert.Empty(t, c.All())
}
