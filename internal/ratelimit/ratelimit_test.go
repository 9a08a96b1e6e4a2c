package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurst(t *testing.T) {
	l := NewLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(), "message %d within burst", i)
	}
	assert.False(t, l.Allow())
}

func TestLimiterCheckEscalates(t *testing.T) {
	l := NewLimiter(0.001, 1)

	d, _, _ := l.Check()
	assert.Equal(t, Allow, d)

	d, n, warn := l.Check()
	assert.Equal(t, Drop, d)
	assert.Equal(t, 1, n)
	assert.True(t, warn, "first violation warns")

	d, _, warn = l.Check()
	assert.Equal(t, Drop, d)
	assert.False(t, warn)

	for i := 0; i < disconnectAfter; i++ {
		d, _, _ = l.Check()
	}
	assert.Equal(t, Disconnect, d)
}

func TestClientLimitersPerKey(t *testing.T) {
	cl := NewClientLimiters(0.001, 1)
	defer cl.Stop()

	assert.True(t, cl.Allow("10.0.0.1"))
	assert.False(t, cl.Allow("10.0.0.1"))
	assert.True(t, cl.Allow("10.0.0.2"), "keys do not share a bucket")
	assert.Equal(t, 2, cl.Len())

	cl.Remove("10.0.0.1")
	assert.Equal(t, 1, cl.Len())
	assert.True(t, cl.Allow("10.0.0.1"))
}

func TestClientLimitersPrune(t *testing.T) {
	cl := NewClientLimiters(10, 10)
	defer cl.Stop()

	cl.Allow("old")
	cl.prune(time.Now().Add(time.Second))
	assert.Equal(t, 0, cl.Len())
}

func TestClientLimitersStopIsIdempotent(t *testing.T) {
	cl := NewClientLimiters(10, 10)
	cl.Stop()
	assert.NotPanics(t, cl.Stop)
}
