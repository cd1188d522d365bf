// Copyright 2019 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package transport

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvSocketRoundTrip(t *testing.T) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_DGRAM, 0)
	require.NoError(t, err)
	defer syscall.Close(fds[1])

	s, err := OpenEnvSocket(fds[0], 5*time.Second)
	require.NoError(t, err)
	defer s.Close()

	n, err := syscall.Write(fds[1], []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	n, err = s.Write([]byte("world"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got := make([]byte, 16)
	n, err = syscall.Read(fds[1], got)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got[:n]))
}
