// Copyright 2019 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package transport

import (
	"errors"
	"time"
)

// envSocket is unsupported outside linux: the sock_fd transport variant
// relies on Linux socket syscalls only available there.
type envSocket struct{}

// OpenEnvSocket always fails on non-Linux platforms.
func OpenEnvSocket(fd int, writeTimeout time.Duration) (*envSocket, error) {
	return nil, errors.New("transport: sock_fd transport is only supported on linux")
}

func (s *envSocket) Read(p []byte) (int, error)  { return 0, errors.New("transport: unsupported") }
func (s *envSocket) Write(p []byte) (int, error) { return 0, errors.New("transport: unsupported") }
func (s *envSocket) Close() error                { return nil }
