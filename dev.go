// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ktd202x

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c"
)

// DefaultAddr is the 7-bit bus address both chip variants respond to.
const DefaultAddr uint16 = 0x30

// MaxBrightness is the highest logical brightness. It matches the 192 output
// current steps of the chip's DAC; SetBrightness clamps to it.
const MaxBrightness display.Intensity = 192

// The post-reset settle time. The chip does not respond on the bus while its
// internal reset runs.
const _resetSettle = 250 * time.Microsecond

// Variant selects the chip flavor.
type Variant int

const (
	// KTD2026 has three channels.
	KTD2026 Variant = iota
	// KTD2027 has four channels.
	KTD2027
)

func (v Variant) channels() int {
	if v == KTD2027 {
		return 4
	}
	return 3
}

func (v Variant) String() string {
	if v == KTD2027 {
		return "KTD2027"
	}
	return "KTD2026"
}

// Color tags the LED color wired to a channel. It is informative only; the
// chip itself is color-agnostic.
type Color int

const (
	Red Color = iota
	Green
	Blue
	White
)

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case White:
		return "white"
	}
	return fmt.Sprintf("Color(%d)", int(c))
}

// ChannelConfig assigns one chip output to a logical LED.
type ChannelConfig struct {
	// Channel is the output index, 0 to the chip's channel count minus one.
	Channel int
	// Color of the LED wired to this output.
	Color Color
	// Intensity weights this channel when scaling the LED's overall
	// brightness, 0..255. Ignored for single-channel LEDs.
	Intensity uint8
}

// LedConfig describes one logical LED. A single entry in Channels makes a
// plain single-color LED; several entries make one multicolor LED whose
// channels are driven and blinked together.
type LedConfig struct {
	Channels []ChannelConfig
}

// Opts holds the board-level configuration of the chip.
type Opts struct {
	// Addr is the bus address. 0 means DefaultAddr.
	Addr uint16
	// Variant of the chip.
	Variant Variant
	// Leds lists the logical LEDs wired to the chip.
	Leds []LedConfig
	// Power controls the chip's supply. nil means Always.
	Power PowerSource
}

var (
	errNoLeds           = errors.New("ktd202x: no LEDs configured")
	errTooManyLeds      = errors.New("ktd202x: more LEDs than chip channels")
	errEmptyLed         = errors.New("ktd202x: LED with no channels")
	errTooManyChannels  = errors.New("ktd202x: multicolor LED with more channels than the chip")
	errInvalidChannel   = errors.New("ktd202x: channel index out of range")
	errDuplicateChannel = errors.New("ktd202x: channel assigned to two LEDs")
)

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ktd202x: %w", err)
}

// Dev represents one KTD2026/KTD2027 on a bus.
type Dev struct {
	variant Variant
	power   PowerSource
	leds    []*Led

	// mu serializes every register mutation and power state transition.
	// The channel control register is shared across channels, so there is
	// nothing to gain from finer locking.
	mu      sync.Mutex
	regs    *regmap
	enabled bool
}

// New returns a Dev for the chip at opts.Addr, reset to its power-on state.
//
// The configuration is validated before the bus is touched; an invalid
// configuration registers nothing. The chip is left powered down; it wakes on
// the first brightness or blink write that turns a channel on.
func New(bus i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil || len(opts.Leds) == 0 {
		return nil, errNoLeds
	}
	if err := validateConfig(opts.Variant, opts.Leds); err != nil {
		return nil, err
	}
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	power := opts.Power
	if power == nil {
		power = Always{}
	}
	d := &Dev{
		variant: opts.Variant,
		power:   power,
		regs:    newRegmap(bus, addr),
	}
	for _, lc := range opts.Leds {
		channels := make([]ChannelConfig, len(lc.Channels))
		copy(channels, lc.Channels)
		if len(channels) == 1 && channels[0].Intensity == 0 {
			// A single-color LED gets the full brightness scale.
			channels[0].Intensity = 255
		}
		d.leds = append(d.leds, &Led{dev: d, channels: channels})
	}
	if err := power.Enable(); err != nil {
		return nil, wrap(err)
	}
	if err := d.reset(); err != nil {
		_ = power.Disable()
		return nil, wrap(err)
	}
	if err := power.Disable(); err != nil {
		return nil, wrap(err)
	}
	return d, nil
}

func validateConfig(variant Variant, leds []LedConfig) error {
	n := variant.channels()
	if len(leds) > n {
		return errTooManyLeds
	}
	var seen [4]bool
	for _, lc := range leds {
		if len(lc.Channels) == 0 {
			return errEmptyLed
		}
		if len(lc.Channels) > n {
			return errTooManyChannels
		}
		for _, cc := range lc.Channels {
			if cc.Channel < 0 || cc.Channel >= n {
				return errInvalidChannel
			}
			if seen[cc.Channel] {
				return errDuplicateChannel
			}
			seen[cc.Channel] = true
		}
	}
	return nil
}

// Leds returns the logical LEDs in the order they were configured.
func (d *Dev) Leds() []*Led {
	return d.leds
}

// reset issues the chip reset command and realigns the shadow cache with the
// reloaded hardware defaults. Callers must hold d.mu (or be the only
// reference, during New).
func (d *Dev) reset() error {
	if err := d.regs.write(_REG_RESET_CONTROL, _RSTR_RESET); err != nil {
		return err
	}
	d.regs.resetCache()
	time.Sleep(_resetSettle)
	return nil
}

// inUse reports whether any LED is lit. Callers must hold d.mu.
func (d *Dev) inUse() bool {
	for _, led := range d.leds {
		if led.brightness != 0 {
			return true
		}
	}
	return false
}

// enable powers the chip and takes it out of sleep. No-op when already
// enabled. Callers must hold d.mu.
func (d *Dev) enable() error {
	if d.enabled {
		return nil
	}
	if err := d.power.Enable(); err != nil {
		return err
	}
	d.enabled = true
	if err := d.regs.write(_REG_RESET_CONTROL, _ENABLE_CTRL_WAKE); err != nil {
		// Do not leave the supply up with an unresponsive chip.
		d.disable()
		return err
	}
	return nil
}

// disable puts the chip to sleep and cuts its supply. No-op when already
// disabled. The sleep command is best effort: the supply is dropped even if
// it fails. Callers must hold d.mu.
func (d *Dev) disable() {
	if !d.enabled {
		return
	}
	if err := d.regs.write(_REG_RESET_CONTROL, _ENABLE_CTRL_SLEEP); err != nil {
		log.Printf("ktd202x: sleep command failed: %v", err)
	}
	if err := d.power.Disable(); err != nil {
		log.Printf("ktd202x: failed to disable power source: %v", err)
		return
	}
	d.enabled = false
}

// Halt resets the chip, which turns every channel off and selects the lowest
// power state, then cuts the supply. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.reset()
	for _, led := range d.leds {
		led.brightness = 0
	}
	if d.enabled {
		if derr := d.power.Disable(); derr != nil {
			log.Printf("ktd202x: failed to disable power source: %v", derr)
		} else {
			d.enabled = false
		}
	}
	return wrap(err)
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s: %s", d.variant, d.regs.d.String())
}

var _ conn.Resource = &Dev{}
var _ fmt.Stringer = &Dev{}
