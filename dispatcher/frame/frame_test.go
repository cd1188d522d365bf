// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frame

import (
	"bytes"
	"io"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{Command: CommandMdbTx, ArgBytes: []byte{0x30, 0x01}, ArgUint: 250}

	var buf bytes.Buffer
	payload, err := cbor.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, WriteMessage(&buf, payload))

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestResponseRoundTrip(t *testing.T) {
	resp := &Response{Status: StatusOK, DataBytes: []byte{0x01, 0x02}}
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, resp))

	payload, err := ReadMessage(&buf)
	require.NoError(t, err)
	var got Response
	require.NoError(t, cbor.Unmarshal(payload, &got))
	assert.Equal(t, *resp, got)
}

func TestReadMessageCleanEOF(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

// TestReadMessageTruncatedPrefix matches spec.md §8 scenario 7: a stream
// that ends partway through a message is an unexpected-EOF condition, not a
// clean shutdown.
func TestReadMessageTruncatedPrefix(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader([]byte{1, 2}))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestReadMessageTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, []byte{1, 2, 3, 4, 5}))
	truncated := buf.Bytes()[:len(buf.Bytes())-2]
	_, err := ReadMessage(bytes.NewReader(truncated))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

// TestDecodeEncodeRoundTripUnframed covers the datagram transport's
// no-length-prefix path: DecodeRequest/EncodeResponse operate on a raw
// payload with no framing at all.
func TestDecodeEncodeRoundTripUnframed(t *testing.T) {
	req := &Request{Command: CommandMdbTx, ArgBytes: []byte{0x30, 0x01}, ArgUint: 250}
	payload, err := cbor.Marshal(req)
	require.NoError(t, err)

	got, err := DecodeRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, req, got)

	resp := &Response{Status: StatusOK, DataBytes: []byte{0x01, 0x02}}
	encoded, err := EncodeResponse(resp)
	require.NoError(t, err)
	var gotResp Response
	require.NoError(t, cbor.Unmarshal(encoded, &gotResp))
	assert.Equal(t, *resp, gotResp)
}
