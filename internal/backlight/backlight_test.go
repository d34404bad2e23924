package backlight

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

func TestGPIOActiveLow(t *testing.T) {
	pin := &gpiotest.Pin{N: "BL", L: gpio.Low}
	b := NewGPIO(pin, true)

	if err := b.Set(true); err != nil {
		t.Fatal(err)
	}
	if pin.Read() != gpio.Low || !b.State().On {
		t.Fatal("active-low on must drive low")
	}
	if err := b.SetLevel(0); err != nil {
		t.Fatal(err)
	}
	if pin.Read() != gpio.High || b.State().On {
		t.Fatal("level 0 must switch off")
	}
}

// pwmPin records PWM calls; gpiotest pins reject PWM.
type pwmPin struct {
	*gpiotest.Pin
	duty gpio.Duty
	freq physic.Frequency
}

func (p *pwmPin) PWM(d gpio.Duty, f physic.Frequency) error {
	p.duty, p.freq = d, f
	return nil
}

func TestPWMLevels(t *testing.T) {
	pin := &pwmPin{Pin: &gpiotest.Pin{N: "BL"}}
	b := NewPWM(pin, 0, false)

	if err := b.SetLevel(128); err != nil {
		t.Fatal(err)
	}
	want := gpio.Duty(128 * uint32(gpio.DutyMax) / 255)
	if pin.duty != want || pin.freq != DefaultPWMFrequency {
		t.Fatalf("duty %d freq %s", pin.duty, pin.freq)
	}

	if err := b.Set(false); err != nil {
		t.Fatal(err)
	}
	if pin.Read() != gpio.Low || b.State() != (State{On: false, Level: 128}) {
		t.Fatalf("off state %+v", b.State())
	}

	pin.duty = 0
	if err := b.Set(true); err != nil {
		t.Fatal(err)
	}
	if pin.duty != want {
		t.Fatal("Set(true) must restore the previous level")
	}

	if err := b.SetLevel(255); err != nil {
		t.Fatal(err)
	}
	if pin.Read() != gpio.High {
		t.Fatal("full level should drive the pin steadily")
	}
}

func TestScheduleOnAt(t *testing.T) {
	s, err := NewSchedule(&None{}, "0 7 * * *", "0 23 * * *", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	day := func(h, m int) time.Time { return time.Date(2026, 3, 1, h, m, 0, 0, time.UTC) }
	tests := []struct {
		at   time.Time
		want bool
	}{
		{day(6, 59), false},
		{day(7, 0), true},
		{day(12, 0), true},
		{day(22, 59), true},
		{day(23, 30), false},
		{day(2, 0), false},
	}
	for _, tt := range tests {
		if got := s.OnAt(tt.at); got != tt.want {
			t.Fatalf("OnAt(%s) = %v", tt.at.Format("15:04"), got)
		}
	}
}

func TestScheduleStartAppliesCurrentState(t *testing.T) {
	bl := &None{}
	// On every minute, off never within a year: always on.
	s, err := NewSchedule(bl, "* * * * *", "0 0 29 2 *", nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()
	if !bl.State().On {
		t.Fatal("schedule did not switch the backlight on at start")
	}
}

func TestScheduleBadSpec(t *testing.T) {
	if _, err := NewSchedule(&None{}, "nope", "0 0 * * *", nil); err == nil {
		t.Fatal("expected parse error")
	}
}
