// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ktd202xsim emulates the register file of a Kinetic KTD2026/KTD2027
// LED driver and renders the resulting LED states to a terminal (stdout)
// using ANSI color codes.
//
// It implements i2c.Bus, so the ktd202x driver can run against it unchanged.
// Useful while you are waiting for your LED board to come by mail.
package ktd202xsim

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"sync"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// The chip's register file, modeled from the datasheet.
const (
	_regResetControl byte = 0x00
	_regFlashPeriod  byte = 0x01
	_regPWM1Timer    byte = 0x02
	_regPWM2Timer    byte = 0x03
	_regChannelCtrl  byte = 0x04
	_regTriseFall    byte = 0x05
	_regLedIout      byte = 0x06

	_rstrReset  byte = 0x07
	_enterSleep byte = 0x08
	_wake       byte = 0x00
)

var _regDefaults = [10]byte{0x00, 0x00, 0x01, 0x01, 0x00, 0x00, 0x4f, 0x4f, 0x4f, 0x4f}

// Mode is the 2-bit state of one channel in the control register.
type Mode byte

const (
	ModeOff Mode = iota
	ModeOn
	ModePWM1
	ModePWM2
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeOn:
		return "on"
	case ModePWM1:
		return "pwm1"
	case ModePWM2:
		return "pwm2"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

var (
	errWrongAddress = errors.New("ktd202xsim: no device at this address")
	errReadback     = errors.New("ktd202xsim: chip registers are write-only")
	errBadFrame     = errors.New("ktd202xsim: expected a register/value write pair")
	errBadRegister  = errors.New("ktd202xsim: register out of range")
)

// Opts represents the options available for the emulated chip.
type Opts struct {
	// Addr is the emulated bus address. 0 means 0x30.
	Addr uint16
	// Channels is the number of outputs, 3 (KTD2026) or 4 (KTD2027).
	// 0 means 4.
	Channels int
	// Colors of the LEDs fitted on each output. Defaults to red, green,
	// blue, white.
	Colors []color.RGBA
	// W receives the rendering. nil means colorable stdout.
	W io.Writer
	// Palette used for rendering. nil means ansi256.Default.
	Palette *ansi256.Palette
}

// Dev emulates one KTD2026/KTD2027 and renders its channels as one ANSI
// colored cell each, in the style of a 1D LED strip.
type Dev struct {
	addr     uint16
	channels int
	colors   [4]color.NRGBA
	w        io.Writer
	palette  ansi256.Palette

	mu     sync.Mutex
	regs   [10]byte
	asleep bool
	buf    bytes.Buffer
}

// New returns an emulated chip ready to be passed to ktd202x.New as its bus.
func New(opts *Opts) *Dev {
	if opts == nil {
		opts = &Opts{}
	}
	d := &Dev{
		addr:     opts.Addr,
		channels: opts.Channels,
		w:        opts.W,
		colors: [4]color.NRGBA{
			{R: 255, A: 255},
			{G: 255, A: 255},
			{B: 255, A: 255},
			{R: 255, G: 255, B: 255, A: 255},
		},
	}
	if d.addr == 0 {
		d.addr = 0x30
	}
	if d.channels == 0 {
		d.channels = 4
	}
	for i, c := range opts.Colors {
		if i >= len(d.colors) {
			break
		}
		d.colors[i] = color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
	}
	if d.w == nil {
		d.w = colorable.NewColorableStdout()
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	d.palette = *p
	d.reset()
	return d
}

func (d *Dev) String() string {
	return fmt.Sprintf("ktd202xsim{%d channels at %#02x}", d.channels, d.addr)
}

// SetSpeed implements i2c.Bus. The emulation has no timing to adjust.
func (d *Dev) SetSpeed(f physic.Frequency) error {
	return nil
}

// Tx implements i2c.Bus. Only register/value write pairs are accepted, which
// mirrors the real chip: its registers cannot be read back.
func (d *Dev) Tx(addr uint16, w, r []byte) error {
	if addr != d.addr {
		return errWrongAddress
	}
	if len(r) != 0 {
		return errReadback
	}
	if len(w) != 2 {
		return errBadFrame
	}
	reg, val := w[0], w[1]
	if int(reg) >= len(d.regs) {
		return errBadRegister
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if reg == _regResetControl {
		switch val {
		case _rstrReset:
			d.reset()
		case _enterSleep:
			d.asleep = true
		case _wake:
			d.asleep = false
		default:
			d.regs[reg] = val
		}
	} else {
		d.regs[reg] = val
	}
	return d.refresh()
}

// reset reloads the power-on defaults. Callers must hold d.mu (or be the
// only reference, during New).
func (d *Dev) reset() {
	copy(d.regs[:], _regDefaults[:])
	d.asleep = false
}

// Register returns the current value of a register, for tests.
func (d *Dev) Register(reg byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg]
}

// Asleep reports whether the chip was put in its sleep state.
func (d *Dev) Asleep() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.asleep
}

// ChannelMode returns the 2-bit control field of one channel.
func (d *Dev) ChannelMode(channel int) Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Mode((d.regs[_regChannelCtrl] >> (2 * channel)) & 0x3)
}

// channelLevel returns the time-averaged output level of a channel, 0..255.
func (d *Dev) channelLevel(channel int) int {
	if d.asleep {
		return 0
	}
	duty := 0
	switch Mode((d.regs[_regChannelCtrl] >> (2 * channel)) & 0x3) {
	case ModeOff:
		return 0
	case ModeOn:
		duty = 256
	case ModePWM1:
		duty = int(d.regs[_regPWM1Timer])
	case ModePWM2:
		duty = int(d.regs[_regPWM2Timer])
	}
	// The current DAC counts 1-indexed steps, 192 full scale.
	level := int(d.regs[_regLedIout+byte(channel)]) + 1
	if level > 192 {
		level = 192
	}
	return level * 255 / 192 * duty / 256
}

// refresh redraws one cell per channel. Callers must hold d.mu.
func (d *Dev) refresh() error {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for i := 0; i < d.channels; i++ {
		level := d.channelLevel(i)
		c := d.colors[i]
		c.R = byte(int(c.R) * level / 255)
		c.G = byte(int(c.G) * level / 255)
		c.B = byte(int(c.B) * level / 255)
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ i2c.Bus = &Dev{}
var _ fmt.Stringer = &Dev{}
