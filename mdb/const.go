// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mdb implements the MDB (Multi-Drop Bus) transaction engine: 9-bit
// serial framing over an 8-bit GPIO waveform primitive, the send/receive/
// acknowledge state machine, and the checksum/ACK/NAK protocol semantics
// used by vending-machine peripherals.
package mdb

// BlockMaxLength bounds both a request and a peripheral's data response:
// length must be >= 1 and < BlockMaxLength.
const BlockMaxLength = 40

// Bus electrical/framing parameters. MDB is fixed at 9600 8N2 with a 9th
// mode bit; no other shape is supported.
const (
	Baud      = 9600
	DataBits  = 9
	StopBits  = 2
	wordSize  = 2 // pigpio encodes one 9-bit word as two 8-bit bytes
	bufSize   = BlockMaxLength * wordSize
)

// Peripheral acknowledgement byte values, sent with the mode bit set.
const (
	ResponseACK = 0x00
	ResponseNAK = 0xff
	ResponseRET = 0xaa // "resend last reply"; built but never emitted, see open question
)

// Timeouts, all in microseconds.
const (
	TimeoutSmallUs = 10_000

	// TimeoutCharUs is the time to send one 9-bit word plus 2 stop bits, plus
	// a 2ms inter-byte allowance.
	TimeoutCharUs = (1_000_000*(DataBits+2))/Baud + 2000

	// TimeoutReceiveUs bounds receiving the remainder of a reply once the
	// first byte has arrived.
	TimeoutReceiveUs = BlockMaxLength * TimeoutCharUs
)

const defaultWaitStepUs = 101
