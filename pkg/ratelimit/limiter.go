package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	errs "subarchive/pkg/errors"
)

// Policy names accepted by New
const (
	PolicyFixed    = "fixed"
	PolicySliding  = "sliding"
	PolicyAdaptive = "adaptive"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a call may proceed now, consuming the slot if so
	Allow() bool
	// Wait blocks until a call may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// Observer is implemented by limiters that adjust to upstream quota headers
type Observer interface {
	Observe(h http.Header)
}

// New builds a limiter for the named policy
func New(policy string, interval time.Duration, requestsPerMinute int) (Limiter, error) {
	if interval <= 0 {
		return nil, errs.Configuration("rate limit interval must be positive")
	}
	switch strings.ToLower(policy) {
	case PolicyFixed, "":
		return NewFixedInterval(interval), nil
	case PolicySliding:
		if requestsPerMinute <= 0 {
			return nil, errs.Configuration("requests per minute must be positive")
		}
		return NewSlidingWindow(requestsPerMinute, time.Minute), nil
	case PolicyAdaptive:
		return NewAdaptive(interval), nil
	default:
		return nil, errs.Configuration(fmt.Sprintf("unknown rate limit policy %q", policy))
	}
}

type clock struct {
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func realClock() clock {
	return clock{now: time.Now, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FixedInterval allows one call per interval; callers queue for consecutive slots
type FixedInterval struct {
	interval time.Duration
	next     time.Time
	clock    clock
	mu       sync.Mutex
}

// NewFixedInterval creates a limiter spacing calls at least interval apart
func NewFixedInterval(interval time.Duration) *FixedInterval {
	return &FixedInterval{interval: interval, clock: realClock()}
}

// Interval returns the configured spacing
func (f *FixedInterval) Interval() time.Duration {
	return f.interval
}

// Allow checks if a call can proceed without waiting
func (f *FixedInterval) Allow() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.now()
	if now.Before(f.next) {
		return false
	}
	f.next = now.Add(f.interval)
	return true
}

// Wait reserves the next free slot and sleeps until it arrives
func (f *FixedInterval) Wait(ctx context.Context) error {
	f.mu.Lock()
	now := f.clock.now()
	slot := f.next
	if slot.Before(now) {
		slot = now
	}
	f.next = slot.Add(f.interval)
	f.mu.Unlock()

	return f.clock.sleep(ctx, slot.Sub(now))
}

// Reset forgets the last reservation
func (f *FixedInterval) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = time.Time{}
}

// SlidingWindow implements a sliding window rate limiter
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	clock       clock
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
		clock:       realClock(),
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.now()
	sw.cleanOldRequests(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}

	return false
}

// Wait blocks until a request is allowed
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for !sw.Allow() {
		sw.mu.Lock()
		wait := 10 * time.Millisecond
		if len(sw.requests) > 0 {
			wait = sw.windowSize - sw.clock.now().Sub(sw.requests[0])
		}
		sw.mu.Unlock()

		if err := sw.clock.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}

// Adaptive is a token bucket refilled from X-Ratelimit-* response headers.
// Until the first response is observed it behaves like its floor FixedInterval.
type Adaptive struct {
	floor     *FixedInterval
	remaining float64
	known     bool
	resetAt   time.Time
	clock     clock
	mu        sync.Mutex
}

// NewAdaptive creates an adaptive limiter that never goes faster than floor
func NewAdaptive(floor time.Duration) *Adaptive {
	return &Adaptive{floor: NewFixedInterval(floor), clock: realClock()}
}

// Observe updates the bucket from upstream quota headers
func (a *Adaptive) Observe(h http.Header) {
	remaining, errRemaining := strconv.ParseFloat(strings.TrimSpace(h.Get("X-Ratelimit-Remaining")), 64)
	reset, errReset := strconv.ParseFloat(strings.TrimSpace(h.Get("X-Ratelimit-Reset")), 64)
	if errRemaining != nil || errReset != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.remaining = remaining
	a.resetAt = a.clock.now().Add(time.Duration(reset * float64(time.Second)))
	a.known = true
}

// Remaining returns the last observed quota and whether any was observed
func (a *Adaptive) Remaining() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining, a.known
}

// Allow checks both the bucket and the floor interval
func (a *Adaptive) Allow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.exhausted(a.clock.now()) || !a.floor.Allow() {
		return false
	}
	a.take()
	return true
}

// Wait sleeps out an exhausted quota, then honors the floor interval
func (a *Adaptive) Wait(ctx context.Context) error {
	a.mu.Lock()
	now := a.clock.now()
	var until time.Duration
	if a.exhausted(now) {
		until = a.resetAt.Sub(now)
	}
	a.mu.Unlock()

	if err := a.clock.sleep(ctx, until); err != nil {
		return err
	}
	if err := a.floor.Wait(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	a.take()
	a.mu.Unlock()
	return nil
}

// Reset drops observed quota and the floor reservation
func (a *Adaptive) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.known = false
	a.remaining = 0
	a.resetAt = time.Time{}
	a.floor.Reset()
}

func (a *Adaptive) exhausted(now time.Time) bool {
	if !a.known {
		return false
	}
	if !now.Before(a.resetAt) {
		// quota window rolled over; wait for the next header to learn the new budget
		a.known = false
		return false
	}
	return a.remaining < 1
}

func (a *Adaptive) take() {
	if a.known && a.remaining > 0 {
		a.remaining--
	}
}
