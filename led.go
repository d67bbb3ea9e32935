// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ktd202x

import (
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
)

// The chip's blink timing grid: the flash period register holds a step count
// n, giving a period of n*128ms+256ms, and the PWM timer register holds the
// on fraction in 1/256ths of the period.
const (
	_blinkPeriodMin  = 256 * time.Millisecond
	_blinkPeriodStep = 128 * time.Millisecond
	_blinkStepsMax   = 126
	_blinkOnMax      = 256
)

// _defaultBlink is substituted when a blink is requested with no timing: 1 Hz
// at 50% duty.
const _defaultBlink = 500 * time.Millisecond

// Led is one logical LED: either a single chip channel, or a color group of
// channels driven together as one multicolor LED.
type Led struct {
	dev      *Dev
	channels []ChannelConfig
	// Logical brightness, 0..MaxBrightness. Guarded by dev.mu.
	brightness display.Intensity
}

// Channels returns the chip outputs backing this LED.
func (l *Led) Channels() []ChannelConfig {
	return l.channels
}

// Brightness returns the LED's current logical brightness.
func (l *Led) Brightness() display.Intensity {
	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	return l.brightness
}

// SetBrightness sets the LED's overall brightness. 0 turns the LED off;
// values above MaxBrightness are clamped.
//
// For a multicolor LED the brightness is split across the member channels in
// proportion to their configured Intensity weights.
//
// The chip is woken first if this write lights the first active channel, and
// put back to sleep if it turns the last one off.
func (l *Led) SetBrightness(b display.Intensity) error {
	if b < 0 {
		b = 0
	}
	if b > MaxBrightness {
		b = MaxBrightness
	}
	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	return wrap(l.setBrightness(b))
}

// scaleChannel splits an overall brightness onto one member channel.
func scaleChannel(b display.Intensity, weight uint8) byte {
	return byte(int(b) * int(weight) / 255)
}

// setBrightness is SetBrightness without clamping or locking. Callers must
// hold dev.mu.
//
// A bus failure aborts the remaining writes. There is no rollback: a channel
// can be left with its output current written but its control field stale.
// The next successful write repairs it.
func (l *Led) setBrightness(b display.Intensity) error {
	l.brightness = b
	if l.dev.inUse() {
		if err := l.dev.enable(); err != nil {
			return err
		}
	}
	for _, cc := range l.channels {
		out := scaleChannel(b, cc.Intensity)
		// The output current register is 1-indexed against the logical
		// scale: logical 0 maps to register 0.
		iout := out
		if out != 0 {
			iout = out - 1
		}
		if err := l.dev.regs.write(_REG_LED_IOUT+byte(cc.Channel), iout); err != nil {
			return err
		}
		mode := _CTRL_OFF
		if out != 0 {
			mode = _CTRL_ON
		}
		if err := l.dev.regs.updateBits(_REG_CHANNEL_CTRL, ctrlMask(cc.Channel), ctrlValue(mode, cc.Channel)); err != nil {
			return err
		}
	}
	if !l.dev.inUse() {
		// Best effort: the brightness write already took effect.
		l.dev.disable()
	}
	return nil
}

// SetBlink makes the LED blink autonomously and returns the timing the chip
// actually achieves, which is the requested one quantized onto the 128 ms
// grid with a 384 ms minimum period.
//
// Special cases:
//   - on == 0 && off == 0 requests the default pattern, 500ms/500ms.
//   - off == 0 stops blinking and leaves the LED on; timing registers are
//     untouched and the request echoes back unchanged.
//   - on == 0 turns the LED off entirely, like SetBrightness(0).
//
// An LED that is currently off is first raised to MaxBrightness, so a bare
// SetBlink is visible. All channels of a multicolor LED start their pattern
// in the same register write.
func (l *Led) SetBlink(on, off time.Duration) (time.Duration, time.Duration, error) {
	if on < 0 {
		on = 0
	}
	if off < 0 {
		off = 0
	}
	if on == 0 && off == 0 {
		on = _defaultBlink
		off = _defaultBlink
	}
	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	if l.brightness == 0 {
		if err := l.setBrightness(MaxBrightness); err != nil {
			return 0, 0, wrap(err)
		}
	}
	if on == 0 {
		// Never on: same as turning the LED off.
		if err := l.setBrightness(0); err != nil {
			return 0, 0, wrap(err)
		}
		return 0, 0, nil
	}
	var mask, ctl byte
	for _, cc := range l.channels {
		mask |= ctrlMask(cc.Channel)
	}
	if off == 0 {
		// Never off: stop the pattern, keep the brightness.
		for _, cc := range l.channels {
			ctl |= ctrlValue(_CTRL_ON, cc.Channel)
		}
		if err := l.dev.regs.updateBits(_REG_CHANNEL_CTRL, mask, ctl); err != nil {
			return 0, 0, wrap(err)
		}
		return on, off, nil
	}
	steps, onCode, actualOn, actualOff := quantizeBlink(on, off)
	if err := l.dev.regs.write(_REG_FLASH_PERIOD, steps); err != nil {
		return 0, 0, wrap(err)
	}
	if err := l.dev.regs.write(_REG_PWM1_TIMER, onCode); err != nil {
		return 0, 0, wrap(err)
	}
	for _, cc := range l.channels {
		ctl |= ctrlValue(_CTRL_PWM1, cc.Channel)
	}
	if err := l.dev.regs.updateBits(_REG_CHANNEL_CTRL, mask, ctl); err != nil {
		return 0, 0, wrap(err)
	}
	return actualOn, actualOff, nil
}

// quantizeBlink maps a requested on/off pair onto the chip's timing grid.
//
// The period is rounded up to the next achievable step and clamped to the
// register range. The duty code keeps the requested on/off ratio, not the
// quantized one, so short patterns keep their shape even when the period
// stretches to the 384 ms minimum.
func quantizeBlink(on, off time.Duration) (steps, onCode byte, actualOn, actualOff time.Duration) {
	total := on + off
	n := int((total-_blinkPeriodMin+_blinkPeriodStep-1)/_blinkPeriodStep) + 1
	if n < 1 {
		n = 1
	}
	if n > _blinkStepsMax {
		n = _blinkStepsMax
	}
	// off > 0 here, so the code stays below 256.
	code := int64(on) * _blinkOnMax / int64(total)

	period := time.Duration(n)*_blinkPeriodStep + _blinkPeriodMin
	actualOn = period * time.Duration(code) / _blinkOnMax
	actualOff = period - actualOn
	return byte(n), byte(code), actualOn, actualOff
}

// CurrentForBrightness returns the current a channel sinks at a given
// brightness: the chip's DAC steps 0.125 mA per count, 24 mA full scale.
func CurrentForBrightness(b display.Intensity) physic.ElectricCurrent {
	if b < 0 {
		b = 0
	}
	if b > MaxBrightness {
		b = MaxBrightness
	}
	return physic.ElectricCurrent(b) * 125 * physic.MicroAmpere
}
