// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ktd202x controls a Kinetic KTD2026 or KTD2027 LED driver over I2C.
//
// The chip sinks current for up to three (KTD2026) or four (KTD2027)
// LED channels. Channels can be driven individually or grouped into one
// logical multicolor LED, and the chip can blink them autonomously on a
// 128 ms timing grid.
//
// The chip is powered down whenever every channel is off, and woken
// transparently on the first write that turns a channel on.
//
// Package ktd202xsim in this module emulates the chip's register file and
// renders it to a terminal, which permits developing against the driver
// without hardware.
//
// # Datasheet
//
// https://www.kinet-ic.com/uploads/web/KTD2026-7/KTD2026-7-04h.pdf
package ktd202x
