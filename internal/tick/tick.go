// Package tick provides the millisecond clock the GUI loop paces itself
// against. A Source goroutine advances a Counter; everyone else only reads.
package tick

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	appLog "hasptft/internal/log"
)

// Counter is a wrapping millisecond counter safe for concurrent Inc and
// Millis.
type Counter struct {
	ms atomic.Uint32
}

// Inc advances the counter by ms and returns the new value.
func (c *Counter) Inc(ms uint32) uint32 { return c.ms.Add(ms) }

// Millis returns the current value.
func (c *Counter) Millis() uint32 { return c.ms.Load() }

// Elapsed returns the milliseconds since an earlier Millis reading, correct
// across one wrap of the counter.
func (c *Counter) Elapsed(since uint32) uint32 { return c.ms.Load() - since }

// DefaultPeriod matches the GUI loop cadence.
const DefaultPeriod = 5 * time.Millisecond

// Source advances a Counter from a time.Ticker.
type Source struct {
	C      *Counter
	Period time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSource returns a stopped Source driving c.
func NewSource(c *Counter, period time.Duration) *Source {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Source{C: c, Period: period}
}

// Start launches the ticker goroutine. It runs until ctx is cancelled or
// Stop is called. Starting a running Source is a no-op.
func (s *Source) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	st := stepper{period: s.Period}
	appLog.Debug("tick: source started", "period", s.Period.String())
	go func(done chan struct{}) {
		defer close(done)
		t := time.NewTicker(s.Period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if ms := st.next(); ms > 0 {
					s.C.Inc(ms)
				}
			}
		}
	}(s.done)
}

// stepper turns ticker periods into whole milliseconds and carries the
// remainder to the next tick.
type stepper struct {
	period time.Duration
	carry  time.Duration
}

func (st *stepper) next() uint32 {
	st.carry += st.period
	ms := st.carry / time.Millisecond
	st.carry -= ms * time.Millisecond
	return uint32(ms)
}

// Stop halts the goroutine and waits for it to exit.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
