package touch

import (
	"context"
	"sync"
	"time"

	appLog "hasptft/internal/log"
)

// Poller samples a Reader on its own cadence and caches the latest point,
// so the GUI loop's poll never waits on the touch controller.
type Poller struct {
	R        Reader
	Interval time.Duration

	mu    sync.RWMutex
	last  Point
	err   error
	polls uint64
}

func NewPoller(r Reader, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return &Poller{R: r, Interval: interval}
}

// Run polls until ctx is cancelled. Read errors are logged once per
// distinct message and the last good point is released.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.Interval)
	defer t.Stop()
	var lastErr string
	for {
		p.poll(ctx, &lastErr)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, lastErr *string) {
	pt, err := p.R.ReadPoint(ctx)
	p.mu.Lock()
	p.polls++
	p.err = err
	if err != nil {
		p.last = Point{}
	} else {
		p.last = pt
	}
	p.mu.Unlock()

	if err != nil && err.Error() != *lastErr && ctx.Err() == nil {
		appLog.Error("touch: read failed", err)
	}
	if err != nil {
		*lastErr = err.Error()
	} else {
		*lastErr = ""
	}
}

// ReadPoint returns the cached point; it implements Reader.
func (p *Poller) ReadPoint(_ context.Context) (Point, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, nil
}

// Status returns the cached point, the poll count and the last read error.
func (p *Poller) Status() (Point, uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.polls, p.err
}
