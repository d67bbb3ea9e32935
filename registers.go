// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ktd202x

import (
	"periph.io/x/conn/v3/i2c"
)

const (
	// Register offsets from the datasheet.
	_REG_RESET_CONTROL byte = 0x00
	_REG_FLASH_PERIOD  byte = 0x01
	_REG_PWM1_TIMER    byte = 0x02
	_REG_PWM2_TIMER    byte = 0x03
	_REG_CHANNEL_CTRL  byte = 0x04
	_REG_TRISE_FALL    byte = 0x05
	// First of one output-current register per channel.
	_REG_LED_IOUT byte = 0x06

	// Values for the reset/enable control register.
	_RSTR_RESET        byte = 0x07
	_ENABLE_CTRL_WAKE  byte = 0x00 // SCL & SDA high while the bus is idle
	_ENABLE_CTRL_SLEEP byte = 0x08 // SCL high & SDA toggling

	// 2-bit channel modes packed into the channel control register.
	_CTRL_OFF  byte = 0x0
	_CTRL_ON   byte = 0x1
	_CTRL_PWM1 byte = 0x2
	_CTRL_PWM2 byte = 0x3
)

// Power-on defaults, one entry per register starting at offset 0.
var _regDefaults = [...]byte{
	_REG_RESET_CONTROL: 0x00,
	_REG_FLASH_PERIOD:  0x00,
	_REG_PWM1_TIMER:    0x01,
	_REG_PWM2_TIMER:    0x01,
	_REG_CHANNEL_CTRL:  0x00,
	_REG_TRISE_FALL:    0x00,
	_REG_LED_IOUT:      0x4f,
	_REG_LED_IOUT + 1:  0x4f,
	_REG_LED_IOUT + 2:  0x4f,
	_REG_LED_IOUT + 3:  0x4f,
}

func ctrlMask(channel int) byte {
	return 0x3 << (2 * channel)
}

func ctrlValue(mode byte, channel int) byte {
	return mode << (2 * channel)
}

// regmap is the driver's view of the chip's register file.
//
// The KTD202x registers are write-only on the bus, so reads are served from a
// shadow cache seeded with the power-on defaults. The cache is mutated only
// while the chip mutex is held, which keeps read-modify-write updates of the
// shared channel control register from clobbering sibling channels.
type regmap struct {
	d     i2c.Dev
	cache [len(_regDefaults)]byte
}

func newRegmap(bus i2c.Bus, addr uint16) *regmap {
	r := &regmap{d: i2c.Dev{Bus: bus, Addr: addr}}
	r.resetCache()
	return r
}

// resetCache reverts the shadow to the power-on defaults. Must be called
// after a chip reset command, since the hardware reloads its defaults too.
func (r *regmap) resetCache() {
	copy(r.cache[:], _regDefaults[:])
}

func (r *regmap) read(reg byte) byte {
	return r.cache[reg]
}

func (r *regmap) write(reg, val byte) error {
	if err := r.d.Tx([]byte{reg, val}, nil); err != nil {
		return err
	}
	r.cache[reg] = val
	return nil
}

// updateBits rewrites only the masked bits of reg. The bus write is skipped
// when the masked bits already hold the wanted value.
func (r *regmap) updateBits(reg, mask, val byte) error {
	next := (r.cache[reg] &^ mask) | (val & mask)
	if next == r.cache[reg] {
		return nil
	}
	return r.write(reg, next)
}
