// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mdb

import "fmt"

// NakError is returned by Tx when the peripheral answered with NAK.
type NakError struct{}

func (NakError) Error() string { return "MDB received NAK, probably invalid command" }

// InvalidResponseError is returned when the terminator byte of an empty
// reply was neither ACK nor NAK, or when a data reply carries a further data
// byte after BlockMaxLength-1 data bytes (Byte is then that extra byte).
type InvalidResponseError struct {
	Byte byte
}

func (e InvalidResponseError) Error() string {
	return fmt.Sprintf("MDB expected ACK/NAK, received unknown byte %#02x", e.Byte)
}

// ChecksumError is returned when a data reply's trailing checksum byte
// doesn't match the computed sum. Response holds the data bytes received so
// far, for diagnostics.
type ChecksumError struct {
	Computed byte
	Received byte
	Response []byte
}

func (e ChecksumError) Error() string {
	return fmt.Sprintf("MDB invalid checksum recv=%#02x comp=%#02x response=%#02x", e.Received, e.Computed, e.Response)
}

// TimeoutError is returned when a deadline was crossed during Tx. Phase
// names the I/O phase that timed out: "send request", "send ACK",
// "send NAK", or "recv".
type TimeoutError struct {
	Phase string
}

func (e TimeoutError) Error() string { return e.Phase + " timeout" }

// DriverError wraps a failure surfaced by the underlying gpiocap.Driver.
type DriverError struct {
	Op  string
	Err error
}

func (e DriverError) Error() string { return fmt.Sprintf("mdb: %s: %v", e.Op, e.Err) }
func (e DriverError) Unwrap() error { return e.Err }
