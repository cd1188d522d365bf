// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dispatcher

import (
	"bytes"
	"io"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vending/iodin/dispatcher/frame"
	gfake "github.com/vending/iodin/internal/gpiocap/fake"
)

func newMockDispatcher() *Dispatcher {
	return New(gfake.New(), nil, true)
}

// TestExecInvalidCommand matches spec.md §8 scenario 1.
func TestExecInvalidCommand(t *testing.T) {
	d := newMockDispatcher()
	resp := &frame.Response{}
	d.exec(&frame.Request{Command: frame.CommandInvalid}, resp)
	assert.Equal(t, frame.StatusErrInput, resp.Status)
	assert.Equal(t, "invalid command", resp.Error)
}

// TestRunStopCleanShutdown matches spec.md §8 scenario 2.
func TestRunStopCleanShutdown(t *testing.T) {
	d := newMockDispatcher()
	var in, out bytes.Buffer
	writeRequest(t, &in, &frame.Request{Command: frame.CommandStop})

	require.NoError(t, d.Run(&in, &out))

	resp := readResponse(t, &out)
	assert.Equal(t, frame.StatusOK, resp.Status)
	assert.False(t, d.running)
}

// TestExecOpenBadArg matches spec.md §8 scenario 3.
func TestExecOpenBadArg(t *testing.T) {
	d := newMockDispatcher()
	resp := &frame.Response{}
	d.exec(&frame.Request{Command: frame.CommandMdbOpen, ArgBytes: []byte{7}}, resp)
	assert.Equal(t, frame.StatusErrInput, resp.Status)
	assert.Equal(t, "invalid arg_bytes", resp.Error)
}

// TestMockEcho matches spec.md §8 scenario 4.
func TestMockEcho(t *testing.T) {
	d := newMockDispatcher()
	var in, out bytes.Buffer
	writeRequest(t, &in, &frame.Request{Command: frame.CommandMdbOpen, ArgBytes: []byte{15, 14}})
	writeRequest(t, &in, &frame.Request{Command: frame.CommandMdbTx, ArgBytes: []byte{0x30, 0x01}})
	writeRequest(t, &in, &frame.Request{Command: frame.CommandStop})

	require.NoError(t, d.Run(&in, &out))

	resp1 := readResponse(t, &out)
	assert.Equal(t, frame.StatusOK, resp1.Status)

	resp2 := readResponse(t, &out)
	assert.Equal(t, frame.StatusOK, resp2.Status)
	assert.Equal(t, []byte{0x30, 0x01}, resp2.DataBytes)

	resp3 := readResponse(t, &out)
	assert.Equal(t, frame.StatusOK, resp3.Status)
}

// TestRunEOFOnEmptyInput matches spec.md §8 scenario 7: an empty stream
// surfaces an unexpected-EOF run error rather than exiting cleanly, since
// only STOP is a clean shutdown.
func TestRunEOFOnEmptyInput(t *testing.T) {
	d := newMockDispatcher()
	var in, out bytes.Buffer
	err := d.Run(&in, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 0, out.Len())
}

func TestResetRequiresOpenEngineOutsideMock(t *testing.T) {
	d := New(gfake.New(), nil, false)
	resp := &frame.Response{}
	d.exec(&frame.Request{Command: frame.CommandMdbReset, ArgUint: 100}, resp)
	assert.Equal(t, frame.StatusErrInput, resp.Status)
	assert.Equal(t, "must mdb_open", resp.Error)
}

func TestTxRequiresOpenEngineOutsideMock(t *testing.T) {
	d := New(gfake.New(), nil, false)
	resp := &frame.Response{}
	d.exec(&frame.Request{Command: frame.CommandMdbTx, ArgBytes: []byte{1}}, resp)
	assert.Equal(t, frame.StatusErrInput, resp.Status)
	assert.Equal(t, "must mdb_open", resp.Error)
}

// TestExecOpenAndTxRealEngine exercises the non-mock path end to end
// against the fake gpiocap driver, so dispatcher wiring is tested against
// a real *mdb.Engine rather than only the mock-mode echo.
func TestExecOpenAndTxRealEngine(t *testing.T) {
	drv := gfake.New()
	d := New(drv, nil, false)

	openResp := &frame.Response{}
	d.exec(&frame.Request{Command: frame.CommandMdbOpen, ArgBytes: []byte{15, 14}}, openResp)
	require.Equal(t, frame.StatusOK, openResp.Status)

	drv.QueueRX(15, []byte{0x00, 0x01}) // bare ACK terminator

	txResp := &frame.Response{}
	d.exec(&frame.Request{Command: frame.CommandMdbTx, ArgBytes: []byte{0x08, 0x01}}, txResp)
	assert.Equal(t, frame.StatusOK, txResp.Status)
	assert.Empty(t, txResp.DataBytes)
}

// TestRunDatagramEcho matches spec.md §8 scenario 4 over the datagram
// transport: each message is a whole "datagram" with no length prefix,
// per spec.md §6(b).
func TestRunDatagramEcho(t *testing.T) {
	d := newMockDispatcher()
	rw := &fakeDatagramConn{}
	rw.queue(t, &frame.Request{Command: frame.CommandMdbOpen, ArgBytes: []byte{15, 14}})
	rw.queue(t, &frame.Request{Command: frame.CommandMdbTx, ArgBytes: []byte{0x30, 0x01}})
	rw.queue(t, &frame.Request{Command: frame.CommandStop})

	require.NoError(t, d.RunDatagram(rw))

	require.Len(t, rw.written, 3)
	resp1 := decodeDatagramResponse(t, rw.written[0])
	assert.Equal(t, frame.StatusOK, resp1.Status)

	resp2 := decodeDatagramResponse(t, rw.written[1])
	assert.Equal(t, frame.StatusOK, resp2.Status)
	assert.Equal(t, []byte{0x30, 0x01}, resp2.DataBytes)

	resp3 := decodeDatagramResponse(t, rw.written[2])
	assert.Equal(t, frame.StatusOK, resp3.Status)
}

// TestRunDatagramEOF matches spec.md §8 scenario 7 over the datagram
// transport: the peer going away before STOP is the same unexpected-EOF
// condition as on stdio.
func TestRunDatagramEOF(t *testing.T) {
	d := newMockDispatcher()
	rw := &fakeDatagramConn{}
	err := d.RunDatagram(rw)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Empty(t, rw.written)
}

// fakeDatagramConn simulates a SOCK_DGRAM socket: each Read returns
// exactly one queued message with no framing, each Write records exactly
// one message as sent.
type fakeDatagramConn struct {
	pending [][]byte
	written [][]byte
}

func (c *fakeDatagramConn) queue(t *testing.T, req *frame.Request) {
	t.Helper()
	payload, err := cbor.Marshal(req)
	require.NoError(t, err)
	c.pending = append(c.pending, payload)
}

func (c *fakeDatagramConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		return 0, io.EOF
	}
	msg := c.pending[0]
	c.pending = c.pending[1:]
	return copy(p, msg), nil
}

func (c *fakeDatagramConn) Write(p []byte) (int, error) {
	msg := append([]byte{}, p...)
	c.written = append(c.written, msg)
	return len(p), nil
}

func decodeDatagramResponse(t *testing.T, payload []byte) *frame.Response {
	t.Helper()
	var resp frame.Response
	require.NoError(t, cbor.Unmarshal(payload, &resp))
	return &resp
}

func writeRequest(t *testing.T, w *bytes.Buffer, req *frame.Request) {
	t.Helper()
	payload, err := cbor.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, frame.WriteMessage(w, payload))
}

func readResponse(t *testing.T, r *bytes.Buffer) *frame.Response {
	t.Helper()
	payload, err := frame.ReadMessage(r)
	require.NoError(t, err)
	var resp frame.Response
	require.NoError(t, cbor.Unmarshal(payload, &resp))
	return &resp
}
