package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "hasptft/internal/log"
)

// Refresher re-captures a page on a cron schedule and hands each image to
// Sink. Runs never overlap; a tick that finds a capture in flight is
// skipped.
type Refresher struct {
	// Options returns the capture options for the next run, so the viewport
	// follows rotation changes.
	Options func() Options
	Sink    func(image.Image)
	// Capture defaults to the chromedp Capture.
	Capture func(ctx context.Context, opts Options) (image.Image, error)

	expr  string
	sched cron.Schedule
	c     *cron.Cron

	running sync.Mutex
	mu      sync.Mutex
	last    time.Time
	lastErr error
}

// NewRefresher parses expr, a standard 5-field cron expression.
func NewRefresher(expr string, opts func() Options, sink func(image.Image)) (*Refresher, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("capture: invalid refresh schedule %q: %w", expr, err)
	}
	return &Refresher{Options: opts, Sink: sink, Capture: Capture, expr: expr, sched: sched}, nil
}

// Start captures once right away and then on schedule until ctx is
// cancelled or Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	r.c = cron.New()
	r.c.Schedule(r.sched, cron.FuncJob(func() { r.run(ctx) }))
	r.c.Start()
	go r.run(ctx)
	appLog.Info("capture: refresher started", "schedule", r.expr, "next", r.sched.Next(time.Now()).Format(time.RFC3339))
}

// Stop halts the schedule and waits for a running capture.
func (r *Refresher) Stop() {
	if r.c != nil {
		<-r.c.Stop().Done()
	}
	r.running.Lock()
	r.running.Unlock()
}

// RefreshNow captures immediately, waiting for any capture in flight.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	r.running.Lock()
	defer r.running.Unlock()
	return r.refresh(ctx)
}

func (r *Refresher) run(ctx context.Context) {
	if !r.running.TryLock() {
		appLog.Warn("capture: previous capture still running, skipping")
		return
	}
	defer r.running.Unlock()
	if ctx.Err() != nil {
		return
	}
	_ = r.refresh(ctx)
}

func (r *Refresher) refresh(ctx context.Context) error {
	opts := r.Options()
	start := time.Now()
	img, err := r.Capture(ctx, opts)

	r.mu.Lock()
	r.last, r.lastErr = time.Now(), err
	r.mu.Unlock()

	if err != nil {
		appLog.Error("capture: refresh failed", err, "url", opts.URL)
		return err
	}
	r.Sink(img)
	appLog.Info("capture: page rendered", "url", opts.URL, "took", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// Last returns when the last capture finished and its error.
func (r *Refresher) Last() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.lastErr
}
