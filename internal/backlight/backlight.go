// Package backlight drives the panel backlight, a side channel of the pixel
// pipeline: it is toggled independently and never waits on a flush.
package backlight

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// State is the current backlight setting.
type State struct {
	On    bool  `json:"on"`
	Level uint8 `json:"level"`
}

// Backlight switches or dims the panel backlight. Implementations are safe
// for concurrent use.
type Backlight interface {
	Set(on bool) error
	SetLevel(l uint8) error
	State() State
}

// GPIO is an on/off backlight on one pin. Any non-zero level means on.
type GPIO struct {
	pin       gpio.PinOut
	activeLow bool

	mu sync.Mutex
	st State
}

func NewGPIO(pin gpio.PinOut, activeLow bool) *GPIO {
	return &GPIO{pin: pin, activeLow: activeLow, st: State{Level: 0xFF}}
}

func (b *GPIO) Set(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.pin.Out(gpio.Level(on != b.activeLow)); err != nil {
		return fmt.Errorf("backlight: set %s: %w", b.pin, err)
	}
	b.st.On = on
	return nil
}

func (b *GPIO) SetLevel(l uint8) error {
	if err := b.Set(l > 0); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if l > 0 {
		b.st.Level = 0xFF
	}
	return nil
}

func (b *GPIO) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

// DefaultPWMFrequency is above the flicker range of typical LED drivers.
const DefaultPWMFrequency = 20 * physic.KiloHertz

// PWM dims the backlight with a hardware PWM pin.
type PWM struct {
	pin       gpio.PinOut
	freq      physic.Frequency
	activeLow bool

	mu sync.Mutex
	st State
}

func NewPWM(pin gpio.PinOut, freq physic.Frequency, activeLow bool) *PWM {
	if freq <= 0 {
		freq = DefaultPWMFrequency
	}
	return &PWM{pin: pin, freq: freq, activeLow: activeLow, st: State{Level: 0xFF}}
}

func (b *PWM) apply(on bool, l uint8) error {
	if !on || l == 0 {
		return b.pin.Out(gpio.Level(b.activeLow))
	}
	if l == 0xFF {
		return b.pin.Out(gpio.Level(!b.activeLow))
	}
	duty := gpio.Duty(uint32(l) * uint32(gpio.DutyMax) / 0xFF)
	if b.activeLow {
		duty = gpio.DutyMax - duty
	}
	return b.pin.PWM(duty, b.freq)
}

// Set switches the backlight on at the last level, or off.
func (b *PWM) Set(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.apply(on, b.st.Level); err != nil {
		return fmt.Errorf("backlight: pwm %s: %w", b.pin, err)
	}
	b.st.On = on
	return nil
}

// SetLevel sets the brightness; 0 turns the backlight off and keeps the
// previous level for the next Set(true).
func (b *PWM) SetLevel(l uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.apply(l > 0, l); err != nil {
		return fmt.Errorf("backlight: pwm %s: %w", b.pin, err)
	}
	b.st.On = l > 0
	if l > 0 {
		b.st.Level = l
	}
	return nil
}

func (b *PWM) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

// None is used when no backlight pin is wired; it only remembers the
// requested state.
type None struct {
	mu sync.Mutex
	st State
}

func (n *None) Set(on bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.st.On = on
	return nil
}

func (n *None) SetLevel(l uint8) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.st.On, n.st.Level = l > 0, l
	return nil
}

func (n *None) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.st
}
