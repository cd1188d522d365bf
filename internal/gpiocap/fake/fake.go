// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fake is an in-memory gpiocap.Driver for testing the mdb engine
// and the dispatcher's mock mode without real hardware, grounded on the
// original implementation's own pigpio mock (every call is a harmless
// no-op returning success) but extended to actually simulate bus
// transactions: recorded waveforms and a scripted RX byte stream.
package fake

import (
	"sync"

	"github.com/vending/iodin/internal/gpiocap"
)

// RecordedWave captures the arguments of one WaveAddSerial call, for tests
// to assert on what the engine asked to transmit.
type RecordedWave struct {
	Pin      uint16
	Baud     uint32
	DataBits uint32
	StopBits uint32
	Words    []byte // copy of the serial words passed to WaveAddSerial
}

// Driver is a gpiocap.Driver double. Construct it with New (the zero value
// has nil maps and is not usable); configure RX bytes with QueueRX and read
// back transmitted waveforms via SentWaves.
type Driver struct {
	mu sync.Mutex

	tick uint32 // advanced by Delay

	pinMode map[uint16]bool // true = output
	pinVal  map[uint16]bool

	serialOpen map[uint16]bool
	rxQueue    map[uint16][]byte // bytes waiting to be returned by SerialRead

	waves        map[gpiocap.Wave][]byte
	pendingWords []byte // staged by the most recent WaveAddSerial, consumed by WaveCreate
	nextWaveID   gpiocap.Wave
	sent         []RecordedWave
	txBusyUntil  int // number of remaining WaveTxBusy()==true calls after a send

	// busyCountdown, when > 0, makes WaveTxBusy report true exactly that
	// many times after the most recent WaveTxSend before going idle. It lets
	// tests exercise the send-deadline busy-wait loop.
	busyCountdown int
}

// New returns a ready-to-use fake driver.
func New() *Driver {
	return &Driver{
		pinMode:    map[uint16]bool{},
		pinVal:     map[uint16]bool{},
		serialOpen: map[uint16]bool{},
		rxQueue:    map[uint16][]byte{},
		waves:      map[gpiocap.Wave][]byte{},
	}
}

// QueueRX appends raw (value, modeFlag) word-pair bytes that SerialRead
// will return for pin, honoring the 9-bit pair encoding: callers build this
// with the same layout the engine expects to read.
func (d *Driver) QueueRX(pin uint16, words []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rxQueue[pin] = append(d.rxQueue[pin], words...)
}

// SetBusyFor makes the next WaveTxSend's WaveTxBusy polling report busy for
// n calls before reporting idle, to exercise timeout/retry paths.
func (d *Driver) SetBusyFor(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busyCountdown = n
}

// SentWaves returns a copy of every waveform built via WaveAddSerial+WaveCreate,
// in call order, regardless of whether it was ever sent or deleted.
func (d *Driver) SentWaves() []RecordedWave {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RecordedWave, len(d.sent))
	copy(out, d.sent)
	return out
}

// PinValue reports the last value written to pin via Write, for bus_reset
// timing assertions.
func (d *Driver) PinValue(pin uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pinVal[pin]
}

func (d *Driver) SetMode(pin uint16, output bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pinMode[pin] = output
	return nil
}

func (d *Driver) Write(pin uint16, high bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pinVal[pin] = high
	return nil
}

func (d *Driver) SerialReadOpen(pin uint16, baud uint32, dataBits uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serialOpen[pin] = true
	return nil
}

func (d *Driver) SerialReadClose(pin uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.serialOpen, pin)
	return nil
}

func (d *Driver) SerialRead(pin uint16, buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.rxQueue[pin]
	if len(q) == 0 {
		return 0, nil
	}
	n := copy(buf, q)
	d.rxQueue[pin] = q[n:]
	return n, nil
}

func (d *Driver) WaveAddSerial(pin uint16, baud uint32, dataBits, stopBits uint32, words []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(words))
	copy(cp, words)
	d.sent = append(d.sent, RecordedWave{Pin: pin, Baud: baud, DataBits: dataBits, StopBits: stopBits, Words: cp})
	d.pendingWords = cp
	return nil
}

func (d *Driver) WaveCreate() (gpiocap.Wave, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextWaveID++
	id := d.nextWaveID
	d.waves[id] = d.pendingWords
	d.pendingWords = nil
	return id, nil
}

func (d *Driver) WaveDelete(w gpiocap.Wave) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.waves, w)
	return nil
}

func (d *Driver) WaveTxSend(w gpiocap.Wave, mode gpiocap.WaveMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txBusyUntil = d.busyCountdown
	d.busyCountdown = 0
	return nil
}

func (d *Driver) WaveTxBusy() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.txBusyUntil > 0 {
		d.txBusyUntil--
		return true, nil
	}
	return false, nil
}

func (d *Driver) WaveTxStop() error {
	return nil
}

func (d *Driver) Tick() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tick
}

func (d *Driver) Delay(us uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tick += us
	return us
}

var _ gpiocap.Driver = (*Driver)(nil)
