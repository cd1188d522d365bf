// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dispatcher decodes framed requests, routes them to the mdb
// engine, and writes framed responses, per spec.md §4.2.
package dispatcher

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/vending/iodin/dispatcher/frame"
	"github.com/vending/iodin/internal/gpiocap"
	"github.com/vending/iodin/mdb"
)

// MdbTimeout is the fixed per-transaction timeout spec.md §4.2 mandates for
// MDB_TX.
const MdbTimeout = 300 * time.Millisecond

// Dispatcher owns at most one open mdb.Engine and serves the command loop
// described in spec.md §4.2. It is not safe for concurrent use.
type Dispatcher struct {
	driver gpiocap.Driver
	log    *zap.Logger
	mock   bool

	engine     *mdb.Engine
	running    bool
	waitStepUs uint32
}

// SetWaitStepUs overrides the busy-wait polling granularity passed to
// mdb.Open on the next MDB_OPEN, per the iodin_mdb_wait_step setting of
// spec.md §6. Zero keeps the engine's built-in default.
func (d *Dispatcher) SetWaitStepUs(us uint32) {
	d.waitStepUs = us
}

// New returns a Dispatcher bound to driver. When mock is true, MDB_OPEN and
// MDB_RESET succeed vacuously and MDB_TX echoes ArgBytes back without
// touching the engine or the driver — spec.md §4.2's "mock mode for unit
// tests", used without initialising real hardware.
func New(driver gpiocap.Driver, log *zap.Logger, mock bool) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{driver: driver, log: log, mock: mock}
}

// Run reads framed requests from r and writes framed responses to w until a
// STOP command is processed, the input is exhausted, or an unrecoverable
// write error occurs.
func (d *Dispatcher) Run(r io.Reader, w io.Writer) error {
	d.running = true
	for d.running {
		req, err := frame.ReadRequest(r)
		if errors.Is(err, io.EOF) {
			// The control channel only exits cleanly via STOP (spec.md §6);
			// the stream ending first, even before any byte arrives, is the
			// unexpected-EOF condition of spec.md §8 scenario 7 and must
			// surface as a run error so the process exits non-zero.
			return fmt.Errorf("dispatcher: control channel closed before stop: %w", io.ErrUnexpectedEOF)
		}
		resp := &frame.Response{}
		if err != nil {
			resp.Status = frame.StatusErrInput
			resp.Error = err.Error()
			d.log.Error("decode request failed", zap.Error(err))
		} else {
			d.exec(req, resp)
		}
		if err := frame.WriteResponse(w, resp); err != nil {
			return fmt.Errorf("dispatcher: write response: %w", err)
		}
	}
	return nil
}

// RunDatagram serves the datagram-socket transport of spec.md §6(b): each
// rw.Read returns exactly one whole message (the socket preserves
// datagram boundaries), so unlike Run it decodes the read buffer directly
// with frame.DecodeRequest instead of applying the length-prefixed
// framing Run uses for the stdio transport, and writes each response back
// as a single rw.Write call so it goes out as one datagram.
func (d *Dispatcher) RunDatagram(rw io.ReadWriter) error {
	d.running = true
	buf := make([]byte, frame.MaxMessageLength)
	for d.running {
		n, err := rw.Read(buf)
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("dispatcher: control channel closed before stop: %w", io.ErrUnexpectedEOF)
		}
		resp := &frame.Response{}
		if err != nil {
			resp.Status = frame.StatusErrInput
			resp.Error = err.Error()
			d.log.Error("read datagram failed", zap.Error(err))
		} else if req, derr := frame.DecodeRequest(buf[:n]); derr != nil {
			resp.Status = frame.StatusErrInput
			resp.Error = derr.Error()
			d.log.Error("decode request failed", zap.Error(derr))
		} else {
			d.exec(req, resp)
		}
		payload, err := frame.EncodeResponse(resp)
		if err != nil {
			return fmt.Errorf("dispatcher: encode response: %w", err)
		}
		if _, err := rw.Write(payload); err != nil {
			return fmt.Errorf("dispatcher: write response: %w", err)
		}
	}
	return nil
}

// exec implements the command table of spec.md §4.2. resp.Status is always
// left in a non-INVALID state on return.
func (d *Dispatcher) exec(req *frame.Request, resp *frame.Response) {
	switch req.Command {
	case frame.CommandInvalid:
		resp.Status = frame.StatusErrInput
		resp.Error = "invalid command"

	case frame.CommandStop:
		d.running = false
		resp.Status = frame.StatusOK

	case frame.CommandMdbOpen:
		d.execOpen(req, resp)

	case frame.CommandMdbReset:
		d.execReset(req, resp)

	case frame.CommandMdbTx:
		d.execTx(req, resp)

	default:
		resp.Status = frame.StatusErrInput
		resp.Error = "invalid command"
	}
}

func (d *Dispatcher) execOpen(req *frame.Request, resp *frame.Response) {
	if len(req.ArgBytes) != 2 {
		resp.Status = frame.StatusErrInput
		resp.Error = "invalid arg_bytes"
		return
	}
	if d.engine != nil {
		_ = d.engine.Close()
		d.engine = nil
	}
	if d.mock {
		resp.Status = frame.StatusOK
		return
	}
	rx, tx := uint16(req.ArgBytes[0]), uint16(req.ArgBytes[1])
	e, err := mdb.Open(d.driver, rx, tx, d.waitStepUs)
	if err != nil {
		resp.Status = frame.StatusErrHardware
		resp.Error = err.Error()
		d.log.Error("mdb open failed", zap.Error(err), zap.Uint16("rx", rx), zap.Uint16("tx", tx))
		return
	}
	d.engine = e
	resp.Status = frame.StatusOK
}

func (d *Dispatcher) execReset(req *frame.Request, resp *frame.Response) {
	if d.mock {
		resp.Status = frame.StatusOK
		return
	}
	if d.engine == nil {
		resp.Status = frame.StatusErrInput
		resp.Error = "must mdb_open"
		return
	}
	duration := time.Duration(req.ArgUint) * time.Millisecond
	if _, err := gpiocap.DurationToMicros32(duration); err != nil {
		resp.Status = frame.StatusErrInput
		resp.Error = "invalid arg_uint"
		return
	}
	if err := d.engine.BusReset(duration); err != nil {
		resp.Status = frame.StatusErrHardware
		resp.Error = err.Error()
		d.log.Error("mdb bus_reset failed", zap.Error(err))
		return
	}
	resp.Status = frame.StatusOK
}

func (d *Dispatcher) execTx(req *frame.Request, resp *frame.Response) {
	if d.mock {
		resp.Status = frame.StatusOK
		resp.DataBytes = append([]byte{}, req.ArgBytes...)
		return
	}
	if d.engine == nil {
		resp.Status = frame.StatusErrInput
		resp.Error = "must mdb_open"
		return
	}
	if len(req.ArgBytes) == 0 || len(req.ArgBytes) >= mdb.BlockMaxLength {
		resp.Status = frame.StatusErrInput
		resp.Error = "invalid arg_bytes"
		return
	}
	data, err := d.engine.Tx(req.ArgBytes, MdbTimeout)
	if err != nil {
		// Every mdb error (NAK, checksum, timeout, driver failure) reaches
		// this point only after the request shape has already been
		// validated, so per spec.md §7 it's always a hardware/protocol
		// failure, never a request-shape error.
		resp.Status = frame.StatusErrHardware
		resp.Error = err.Error()
		d.log.Error("mdb tx failed", zap.Error(err))
		return
	}
	resp.Status = frame.StatusOK
	resp.DataBytes = data
}
