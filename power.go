// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ktd202x

import (
	"periph.io/x/conn/v3/gpio"
)

// PowerSource controls the supply feeding the chip's VIN pin.
//
// The driver cuts the supply whenever every channel is off and restores it on
// the first write that turns a channel on, so implementations must tolerate
// frequent Enable/Disable cycles.
type PowerSource interface {
	Enable() error
	Disable() error
}

// Always is the PowerSource for boards where VIN is hardwired to a rail.
// The chip still enters its low-power sleep state while unused.
type Always struct{}

// Enable implements PowerSource.
func (Always) Enable() error { return nil }

// Disable implements PowerSource.
func (Always) Disable() error { return nil }

// GPIOPower drives the enable line of a load switch or LDO feeding the chip.
type GPIOPower struct {
	// EN is the active-high enable line.
	EN gpio.PinOut
}

// Enable implements PowerSource.
func (p GPIOPower) Enable() error { return p.EN.Out(gpio.High) }

// Disable implements PowerSource.
func (p GPIOPower) Disable() error { return p.EN.Out(gpio.Low) }

var _ PowerSource = Always{}
var _ PowerSource = GPIOPower{}
