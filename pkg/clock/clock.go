// Package clock abstracts wall-clock time so components with expiry or
// cadence logic (spending-window rollover, hold expiry, the sweeper ticker)
// can be driven deterministically in tests.
package clock

import "time"

// Clock provides the current time and a ticker primitive.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors the subset of time.Ticker used by this service.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the production Clock backed by the standard library.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time  { return time.After(d) }
func (RealClock) NewTicker(d time.Duration) Ticker        { return &realTicker{t: time.NewTicker(d)} }

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// FixedClock is a test Clock that only advances when Advance is called.
type FixedClock struct {
	now     time.Time
	tickers []*fixedTicker
}

// NewFixedClock returns a FixedClock starting at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

func (f *FixedClock) Now() time.Time { return f.now }

func (f *FixedClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.now.Add(d)
	return ch
}

func (f *FixedClock) NewTicker(d time.Duration) Ticker {
	t := &fixedTicker{ch: make(chan time.Time, 1), interval: d}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the fixed clock forward by d and sends the new time to
// every ticker that has not been stopped; ticker intervals are not
// consulted.
func (f *FixedClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
	for _, t := range f.tickers {
		if !t.stopped {
			select {
			case t.ch <- f.now:
			default:
			}
		}
	}
}

type fixedTicker struct {
	ch       chan time.Time
	interval time.Duration
	stopped  bool
}

func (t *fixedTicker) C() <-chan time.Time { return t.ch }
func (t *fixedTicker) Stop()               { t.stopped = true }
