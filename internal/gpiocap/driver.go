// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpiocap abstracts the GPIO capability the MDB engine needs: pin
// direction, a software-UART receiver, and the pigpio queued-waveform
// transmitter. It exists so the engine never calls pigpio directly and can
// be driven against an in-memory fake (see the fake subpackage) in tests.
package gpiocap

import "time"

// WaveMode selects how a waveform is transmitted.
type WaveMode int

// OneShotSync is the only mode the engine uses: transmit the waveform once
// and block the caller's poll loop until it completes.
const OneShotSync WaveMode = 0

// Wave is a handle to a queued waveform built by WaveAddSerial and
// WaveCreate. It must be
// released exactly once via Driver.WaveDelete.
type Wave uint32

// Driver is the narrow capability surface spec.md §2 requires of the
// underlying GPIO/pigpio library. Implementations: pigpio (real hardware,
// linux/arm, cgo) and fake (in-memory, for tests).
type Driver interface {
	// SetMode configures pin as input (false) or output (true).
	SetMode(pin uint16, output bool) error
	// Write drives pin high (true) or low (false). Only valid on output pins.
	Write(pin uint16, high bool) error

	// SerialReadOpen opens a software-UART receiver on pin at baud with the
	// given bit-per-word width (DATA_BITS, 9 for MDB).
	SerialReadOpen(pin uint16, baud uint32, dataBits uint32) error
	// SerialReadClose releases the receiver opened by SerialReadOpen.
	SerialReadClose(pin uint16) error
	// SerialRead drains buffered bytes into buf, returning the number of
	// bytes written. Each 9-bit word is delivered as a (value, modeFlag)
	// byte pair; a short or empty read is not an error.
	SerialRead(pin uint16, buf []byte) (int, error)

	// WaveAddSerial stages a serial byte stream (words, 2 bytes per 9-bit
	// word: low byte value, high byte bit0 = mode flag) for transmission on
	// pin, then WaveCreate commits it to a reusable handle.
	WaveAddSerial(pin uint16, baud uint32, dataBits, stopBits uint32, words []byte) error
	WaveCreate() (Wave, error)
	// WaveDelete releases a waveform handle. Idempotent.
	WaveDelete(w Wave) error

	// WaveTxSend starts transmission of w in the given mode.
	WaveTxSend(w Wave, mode WaveMode) error
	// WaveTxBusy reports whether a waveform transmission is in flight.
	WaveTxBusy() (bool, error)
	// WaveTxStop aborts any in-flight transmission; a no-op if idle.
	WaveTxStop() error

	// Tick returns the driver's free-running microsecond counter. It wraps
	// every 2^32 microseconds (~71 minutes); callers must use wrapping
	// subtraction when comparing two tick values.
	Tick() uint32
	// Delay busy-sleeps for approximately us microseconds and returns the
	// actual elapsed time, mirroring pigpio's gpioDelay.
	Delay(us uint32) uint32
}

// TickSince returns the number of microseconds elapsed since start,
// correctly handling wraparound of the 32-bit tick counter.
func TickSince(d Driver, start uint32) uint32 {
	return d.Tick() - start
}

// DurationToMicros32 converts d to a uint32 microsecond count, matching the
// original implementation's overflow check: values at or above the 32-bit
// range are rejected rather than silently truncated.
func DurationToMicros32(d time.Duration) (uint32, error) {
	us := d.Microseconds()
	if us < 0 || us >= 1<<32 {
		return 0, ErrDurationOverflow
	}
	return uint32(us), nil
}
