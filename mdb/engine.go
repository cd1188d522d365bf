// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mdb

import (
	"fmt"
	"time"

	"github.com/vending/iodin/internal/gpiocap"
)

// State is the engine's current phase in its transaction state machine:
// Idle -> Sending -> AwaitingFirstByte -> ReceivingBody ->
// ReplyingAck|ReplyingNak -> Idle, terminal Closed. It exists for
// diagnostics/logging; callers never drive it directly.
type State int

const (
	Idle State = iota
	Sending
	AwaitingFirstByte
	ReceivingBody
	ReplyingAck
	ReplyingNak
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case AwaitingFirstByte:
		return "awaiting_first_byte"
	case ReceivingBody:
		return "receiving_body"
	case ReplyingAck:
		return "replying_ack"
	case ReplyingNak:
		return "replying_nak"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Engine is bound to one rx/tx GPIO pin pair for its lifetime. It is not
// safe for concurrent use; the dispatcher serialises all calls.
type Engine struct {
	driver gpiocap.Driver

	rxPin, txPin uint16
	waveAck      gpiocap.Wave
	waveNak      gpiocap.Wave
	waveRet      gpiocap.Wave // reserved, see open question in SPEC_FULL.md §9
	waitStepUs   uint32
	scratch      []byte

	state State
}

// Open binds a new engine to rxPin/txPin. waitStepUs is the busy-wait
// polling granularity; 0 selects the default of 101µs.
func Open(driver gpiocap.Driver, rxPin, txPin uint16, waitStepUs uint32) (*Engine, error) {
	if waitStepUs == 0 {
		waitStepUs = defaultWaitStepUs
	}
	if err := driver.SetMode(rxPin, false); err != nil {
		return nil, DriverError{"SetMode(rx)", err}
	}
	if err := driver.SetMode(txPin, true); err != nil {
		return nil, DriverError{"SetMode(tx)", err}
	}
	if err := driver.SerialReadOpen(rxPin, Baud, DataBits); err != nil {
		return nil, DriverError{"SerialReadOpen", err}
	}
	if err := driver.WaveTxStop(); err != nil {
		_ = driver.SerialReadClose(rxPin)
		return nil, DriverError{"WaveTxStop", err}
	}

	e := &Engine{
		driver:     driver,
		rxPin:      rxPin,
		txPin:      txPin,
		waitStepUs: waitStepUs,
		scratch:    make([]byte, bufSize),
	}

	var err error
	if e.waveAck, err = buildAckWave(driver, txPin, ResponseACK); err != nil {
		_ = driver.SerialReadClose(rxPin)
		return nil, err
	}
	if e.waveNak, err = buildAckWave(driver, txPin, ResponseNAK); err != nil {
		_ = driver.WaveDelete(e.waveAck)
		_ = driver.SerialReadClose(rxPin)
		return nil, err
	}
	if e.waveRet, err = buildAckWave(driver, txPin, ResponseRET); err != nil {
		_ = driver.WaveDelete(e.waveAck)
		_ = driver.WaveDelete(e.waveNak)
		_ = driver.SerialReadClose(rxPin)
		return nil, err
	}
	return e, nil
}

func buildAckWave(driver gpiocap.Driver, txPin uint16, value byte) (gpiocap.Wave, error) {
	words := []byte{value, 0x00} // single 9-bit word, mode bit cleared per spec.md §3
	if err := driver.WaveAddSerial(txPin, Baud, DataBits, StopBits, words); err != nil {
		return 0, DriverError{"WaveAddSerial(ack)", err}
	}
	w, err := driver.WaveCreate()
	if err != nil {
		return 0, DriverError{"WaveCreate(ack)", err}
	}
	return w, nil
}

// State reports the engine's current phase, for logging and diagnostics.
func (e *Engine) State() State { return e.state }

// BusReset drives tx_pin high for duration, then low. The MDB spec mandates
// duration >= 100ms; this is not enforced here, only documented (see
// SPEC_FULL.md §9 open question).
func (e *Engine) BusReset(duration time.Duration) error {
	durationUs, err := gpiocap.DurationToMicros32(duration)
	if err != nil {
		return err
	}
	if err := e.driver.Write(e.txPin, true); err != nil {
		return DriverError{"Write(high)", err}
	}
	e.driver.Delay(durationUs)
	if err := e.driver.Write(e.txPin, false); err != nil {
		return DriverError{"Write(low)", err}
	}
	return nil
}

// Tx encodes request as an MDB block, transmits it, and waits for the
// peripheral's reply, returning its data bytes (terminator and checksum
// stripped) or an error per SPEC_FULL.md/spec.md §4.1.3 and §7.
func (e *Engine) Tx(request []byte, timeout time.Duration) ([]byte, error) {
	if len(request) == 0 {
		return nil, fmt.Errorf("mdb: request must not be empty")
	}
	if len(request) >= BlockMaxLength {
		return nil, fmt.Errorf("mdb: request length %d >= BlockMaxLength", len(request))
	}
	timeoutUs, err := gpiocap.DurationToMicros32(timeout)
	if err != nil {
		return nil, err
	}

	e.state = Sending

	reqWordsLen := len(request) * wordSize
	e.scratch[0] = request[0]
	e.scratch[1] = 0x01 // address byte: mode bit set
	for i := 1; i < len(request); i++ {
		e.scratch[i*wordSize] = request[i]
		e.scratch[i*wordSize+1] = 0x00
	}
	chk := checksum(request)
	e.scratch[reqWordsLen] = chk
	e.scratch[reqWordsLen+1] = 0x00

	if err := e.driver.WaveAddSerial(e.txPin, Baud, DataBits, StopBits, e.scratch[:reqWordsLen+wordSize]); err != nil {
		e.state = Idle
		return nil, DriverError{"WaveAddSerial(tx)", err}
	}
	wave, err := e.driver.WaveCreate()
	if err != nil {
		e.state = Idle
		return nil, DriverError{"WaveCreate(tx)", err}
	}
	defer e.driver.WaveDelete(wave)

	timeoutSmallUs := timeoutUs
	if timeoutSmallUs > TimeoutSmallUs {
		timeoutSmallUs = TimeoutSmallUs
	}
	ioStart := e.driver.Tick()
	sendThresholdUs := TimeoutCharUs * uint32(len(request))

	if err := e.sendWaveWait(wave, sendThresholdUs, "send request"); err != nil {
		e.state = Idle
		return nil, err
	}

	e.state = AwaitingFirstByte
	n, err := e.waitReceive(ioStart, timeoutUs)
	if err != nil {
		e.state = Idle
		return nil, err
	}
	e.state = ReceivingBody
	bodyStart := e.driver.Tick()

	response := make([]byte, 0, BlockMaxLength-1)
	var endByte byte
	for {
		var terminated bool
		terminated, endByte, err = e.consumeBatch(n, &response)
		if err != nil {
			e.state = Idle
			return nil, err
		}
		if terminated {
			break
		}
		n, err = e.waitReceive(bodyStart, TimeoutReceiveUs)
		if err != nil {
			e.state = Idle
			return nil, err
		}
	}

	if len(response) == 0 {
		switch endByte {
		case ResponseACK:
			e.state = Idle
			return response, nil
		case ResponseNAK:
			e.state = Idle
			return nil, NakError{}
		default:
			e.state = Idle
			return nil, InvalidResponseError{Byte: endByte}
		}
	}

	computed := checksum(response)
	if computed == endByte {
		e.state = ReplyingAck
		if err := e.sendWaveWait(e.waveAck, timeoutSmallUs, "send ACK"); err != nil {
			e.state = Idle
			return nil, err
		}
		e.state = Idle
		return response, nil
	}
	e.state = ReplyingNak
	if err := e.sendWaveWait(e.waveNak, timeoutSmallUs, "send NAK"); err != nil {
		e.state = Idle
		return nil, err
	}
	e.state = Idle
	return nil, ChecksumError{Computed: computed, Received: endByte, Response: response}
}

// consumeBatch scans n bytes of e.scratch as (value, flag) word pairs,
// appending data bytes to *response until a terminator (flag==1) is found
// or the batch is exhausted. Trailing bytes in the same batch after a
// terminator are protocol violations and are ignored per spec.md §4.1.3.
func (e *Engine) consumeBatch(n int, response *[]byte) (terminated bool, endByte byte, err error) {
	for i := 0; i+1 < n; i += 2 {
		bvalue, bflag := e.scratch[i], e.scratch[i+1]
		if bflag == 1 {
			return true, bvalue, nil
		}
		if len(*response) >= BlockMaxLength-1 {
			return false, 0, InvalidResponseError{Byte: bvalue}
		}
		*response = append(*response, bvalue)
	}
	return false, 0, nil
}

// waitReceive polls for received bytes until some arrive or thresholdUs
// microseconds have elapsed since start. The elapsed time is computed via
// gpiocap.TickSince's wrapping subtraction, per spec.md §4.1.3/§9, so a
// tick-counter wrap partway through the wait never produces a spurious
// timeout or an unbounded wait.
func (e *Engine) waitReceive(start, thresholdUs uint32) (int, error) {
	for {
		n, err := e.driver.SerialRead(e.rxPin, e.scratch)
		if err != nil {
			return 0, DriverError{"SerialRead", err}
		}
		if n > 0 {
			return n, nil
		}
		if gpiocap.TickSince(e.driver, start) > thresholdUs {
			return 0, TimeoutError{Phase: "recv"}
		}
		e.driver.Delay(e.waitStepUs)
	}
}

// sendWaveWait starts wave in one-shot-sync mode and busy-waits for it to
// finish, failing with a TimeoutError{phase} if more than thresholdUs
// microseconds elapse. It always issues WaveTxStop before returning,
// successful or not, leaving the bus quiescent.
func (e *Engine) sendWaveWait(wave gpiocap.Wave, thresholdUs uint32, phase string) error {
	start := e.driver.Tick()
	if err := e.driver.WaveTxSend(wave, gpiocap.OneShotSync); err != nil {
		_ = e.driver.WaveTxStop()
		return DriverError{"WaveTxSend", err}
	}
	var timedOut bool
	for {
		e.driver.Delay(e.waitStepUs)
		busy, err := e.driver.WaveTxBusy()
		if err != nil {
			_ = e.driver.WaveTxStop()
			return DriverError{"WaveTxBusy", err}
		}
		if !busy {
			break
		}
		if gpiocap.TickSince(e.driver, start) > thresholdUs {
			timedOut = true
			break
		}
	}
	if err := e.driver.WaveTxStop(); err != nil {
		return DriverError{"WaveTxStop", err}
	}
	if timedOut {
		return TimeoutError{Phase: phase}
	}
	return nil
}

// Close stops transmission, closes the RX reader, and releases the
// acknowledgement waveforms. Idempotent: a second call is a harmless no-op.
func (e *Engine) Close() error {
	if e.state == Closed {
		return nil
	}
	_ = e.driver.WaveTxStop()
	_ = e.driver.SerialReadClose(e.rxPin)
	_ = e.driver.WaveDelete(e.waveAck)
	_ = e.driver.WaveDelete(e.waveNak)
	_ = e.driver.WaveDelete(e.waveRet)
	e.state = Closed
	return nil
}

// checksum computes the arithmetic 8-bit checksum spec.md §3/§8 define:
// (sum of bytes) mod 256.
func checksum(b []byte) byte {
	var sum byte
	for _, x := range b {
		sum += x
	}
	return sum
}
