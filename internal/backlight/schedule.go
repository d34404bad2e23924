package backlight

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "hasptft/internal/log"
)

// Schedule turns a backlight on and off at cron times, e.g. on at
// "0 7 * * *" and off at "0 23 * * *".
type Schedule struct {
	bl      Backlight
	on, off cron.Schedule
	onExpr  string
	offExpr string
	loc     *time.Location

	c *cron.Cron
}

// NewSchedule parses standard 5-field cron expressions in loc (nil means
// local time).
func NewSchedule(bl Backlight, onExpr, offExpr string, loc *time.Location) (*Schedule, error) {
	if loc == nil {
		loc = time.Local
	}
	on, err := cron.ParseStandard(onExpr)
	if err != nil {
		return nil, fmt.Errorf("backlight: parse on schedule %q: %w", onExpr, err)
	}
	off, err := cron.ParseStandard(offExpr)
	if err != nil {
		return nil, fmt.Errorf("backlight: parse off schedule %q: %w", offExpr, err)
	}
	return &Schedule{bl: bl, on: on, off: off, onExpr: onExpr, offExpr: offExpr, loc: loc}, nil
}

// OnAt reports whether the backlight should be on at t: the next off time
// comes before the next on time.
func (s *Schedule) OnAt(t time.Time) bool {
	t = t.In(s.loc)
	return s.off.Next(t).Before(s.on.Next(t))
}

// Start applies the state for now and fires the transitions until Stop.
func (s *Schedule) Start() {
	want := s.OnAt(time.Now())
	s.apply(want, "startup")

	s.c = cron.New(cron.WithLocation(s.loc))
	s.c.Schedule(s.on, cron.FuncJob(func() { s.apply(true, s.onExpr) }))
	s.c.Schedule(s.off, cron.FuncJob(func() { s.apply(false, s.offExpr) }))
	s.c.Start()
	appLog.Info("backlight: schedule started", "on", s.onExpr, "off", s.offExpr, "now_on", want)
}

func (s *Schedule) apply(on bool, why string) {
	if err := s.bl.Set(on); err != nil {
		appLog.Error("backlight: scheduled switch failed", err, "on", on, "trigger", why)
		return
	}
	appLog.Debug("backlight: switched", "on", on, "trigger", why)
}

// Stop halts the scheduler and waits for a running job.
func (s *Schedule) Stop() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
}
