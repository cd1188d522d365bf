// Copyright 2019 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

// Package transport wraps the two control-channel transports spec.md §6
// allows: stdio (the default, handled directly by cmd/iodin with
// os.Stdin/os.Stdout) and a pre-opened datagram socket, whose file
// descriptor arrives via the sock_fd environment variable.
package transport

import (
	"fmt"
	"syscall"
	"time"
)

// envSocket wraps a datagram socket file descriptor passed in from the
// parent process, read/written one message per datagram, with a fixed
// write timeout per spec.md §6(b).
type envSocket struct {
	fd int
}

// OpenEnvSocket wraps fd (already bound/connected by the parent process)
// and applies writeTimeout as SO_SNDTIMEO.
func OpenEnvSocket(fd int, writeTimeout time.Duration) (*envSocket, error) {
	tv := syscall.NsecToTimeval(writeTimeout.Nanoseconds())
	if err := syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_SNDTIMEO, &tv); err != nil {
		return nil, fmt.Errorf("transport: set write timeout: %w", err)
	}
	return &envSocket{fd: fd}, nil
}

// Read reads at most one datagram into p.
func (s *envSocket) Read(p []byte) (int, error) {
	n, _, err := syscall.Recvfrom(s.fd, p, 0)
	if err != nil {
		return 0, fmt.Errorf("transport: recvfrom: %w", err)
	}
	return n, nil
}

// Write sends p as a single datagram.
func (s *envSocket) Write(p []byte) (int, error) {
	if err := syscall.Sendto(s.fd, p, 0, nil); err != nil {
		return 0, fmt.Errorf("transport: sendto: %w", err)
	}
	return len(p), nil
}

// Close closes the underlying file descriptor.
func (s *envSocket) Close() error {
	fd := s.fd
	s.fd = -1
	return syscall.Close(fd)
}
