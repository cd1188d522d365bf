// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package iodincfg reads the environment variables spec.md §6 defines.
package iodincfg

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the process-wide settings read from the environment.
type Config struct {
	// WaitStepUs is the busy-wait polling granularity passed to
	// mdb.Open; 0 means "use the engine's default".
	WaitStepUs uint32

	// SockFD, when HasSockFD is true, selects the datagram-socket control
	// channel transport instead of stdio, per spec.md §6(b).
	SockFD    int
	HasSockFD bool
}

// Load reads iodin_mdb_wait_step and sock_fd from the environment. A
// malformed iodin_mdb_wait_step is a fatal startup error per spec.md §6;
// both variables are optional.
func Load() (*Config, error) {
	cfg := &Config{}

	if raw, ok := os.LookupEnv("iodin_mdb_wait_step"); ok {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("iodincfg: iodin_mdb_wait_step: expected unsigned integer: %w", err)
		}
		cfg.WaitStepUs = uint32(v)
	}

	if raw, ok := os.LookupEnv("sock_fd"); ok {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("iodincfg: sock_fd: expected integer: %w", err)
		}
		cfg.SockFD = v
		cfg.HasSockFD = true
	}

	return cfg, nil
}
