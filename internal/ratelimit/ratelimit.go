package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	warnEvery        = 100
	disconnectAfter  = 1000
	idleLimiterAfter = 10 * time.Minute
)

// Decision is the outcome of offering one inbound message to a Limiter.
type Decision int

const (
	Allow Decision = iota
	Drop
	Disconnect
)

// Limiter is a token bucket for one connection that also counts violations,
// so callers can escalate from dropping messages to closing the connection.
type Limiter struct {
	bucket     *rate.Limiter
	violations int
	mu         sync.Mutex
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}

// Check consumes a token. When none is available the violation counter is
// bumped; warn is true for the first violation and every hundredth after.
func (l *Limiter) Check() (d Decision, violations int, warn bool) {
	if l.bucket.Allow() {
		return Allow, 0, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.violations++
	if l.violations > disconnectAfter {
		return Disconnect, l.violations, true
	}
	return Drop, l.violations, l.violations%warnEvery == 1
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiters hands out one limiter per key (a remote host) and forgets
// keys that have been idle for a while.
type ClientLimiters struct {
	limiters        map[string]*entry
	rate            float64
	burst           int
	mu              sync.Mutex
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

func NewClientLimiters(perSecond float64, burst int) *ClientLimiters {
	cl := &ClientLimiters{
		limiters:        make(map[string]*entry),
		rate:            perSecond,
		burst:           burst,
		cleanupInterval: time.Minute,
		stop:            make(chan struct{}),
	}
	go cl.cleanup()
	return cl
}

// Allow reports whether key may proceed right now.
func (cl *ClientLimiters) Allow(key string) bool {
	cl.mu.Lock()
	e, ok := cl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(cl.rate), cl.burst)}
		cl.limiters[key] = e
	}
	e.lastSeen = time.Now()
	cl.mu.Unlock()

	return e.limiter.Allow()
}

func (cl *ClientLimiters) Remove(key string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.limiters, key)
}

func (cl *ClientLimiters) Len() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.limiters)
}

func (cl *ClientLimiters) Stop() {
	cl.stopOnce.Do(func() { close(cl.stop) })
}

func (cl *ClientLimiters) cleanup() {
	ticker := time.NewTicker(cl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.stop:
			return
		case now := <-ticker.C:
			cl.prune(now.Add(-idleLimiterAfter))
		}
	}
}

func (cl *ClientLimiters) prune(before time.Time) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for key, e := range cl.limiters {
		if e.lastSeen.Before(before) {
			delete(cl.limiters, key)
		}
	}
}
