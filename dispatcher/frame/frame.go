// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package frame implements the control channel's wire format: a 32-bit
// little-endian fixed length prefix (never varint, per spec.md §6) followed
// by a CBOR-encoded payload.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Command enumerates the request command codes from spec.md §6.
type Command uint8

const (
	CommandInvalid Command = iota
	CommandMdbOpen
	CommandMdbReset
	CommandMdbTx
	CommandStop
)

// Status enumerates the response status codes from spec.md §6.
type Status uint8

const (
	StatusInvalid Status = iota
	StatusOK
	StatusErrInput
	StatusErrHardware
)

// Request is the schema-agnostic request payload of spec.md §6, made
// concrete: Command selects the operation, ArgBytes/ArgUint carry its
// argument.
type Request struct {
	Command  Command `cbor:"1,keyasint"`
	ArgBytes []byte  `cbor:"2,keyasint"`
	ArgUint  uint32  `cbor:"3,keyasint"`
}

// Response is the concrete response payload of spec.md §6.
type Response struct {
	Status    Status `cbor:"1,keyasint"`
	Error     string `cbor:"2,keyasint"`
	DataBytes []byte `cbor:"3,keyasint"`
}

// MaxMessageLength bounds a single message's payload size, guarding
// against a corrupt or hostile length prefix (or an oversized datagram)
// causing an unbounded allocation.
const MaxMessageLength = 1 << 20

// ReadMessage reads one length-prefixed frame and returns its raw payload
// bytes. An EOF before any byte of the length prefix is read is returned
// as io.EOF (clean end of stream); any other short read is
// io.ErrUnexpectedEOF, per spec.md §8 scenario 7. This framing is used by
// the stdio transport of spec.md §6(a) only — the datagram transport of
// §6(b) carries one message per datagram and uses DecodeRequest/
// EncodeResponse directly, with no length prefix, since the datagram
// itself already delimits the message.
func ReadMessage(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		// A clean io.EOF here means the stream ended between messages; any
		// other error (including io.ErrUnexpectedEOF, a prefix cut short)
		// propagates as-is.
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxMessageLength {
		return nil, fmt.Errorf("frame: message length %d exceeds maximum %d", n, MaxMessageLength)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteMessage writes payload as one length-prefixed frame.
func WriteMessage(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// DecodeRequest CBOR-decodes a Request from a raw payload — the body of a
// length-prefixed frame, or, on the datagram transport, an entire
// datagram.
func DecodeRequest(payload []byte) (*Request, error) {
	var req Request
	if err := cbor.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("frame: decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse CBOR-encodes resp to a raw payload, the inverse of
// DecodeRequest.
func EncodeResponse(resp *Response) ([]byte, error) {
	payload, err := cbor.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("frame: encode response: %w", err)
	}
	return payload, nil
}

// ReadRequest reads and CBOR-decodes one length-prefixed Request frame.
func ReadRequest(r io.Reader) (*Request, error) {
	payload, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(payload)
}

// WriteResponse CBOR-encodes and writes one length-prefixed Response
// frame.
func WriteResponse(w io.Writer, resp *Response) error {
	payload, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return WriteMessage(w, payload)
}
