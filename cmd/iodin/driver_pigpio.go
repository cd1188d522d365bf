// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux && (arm || arm64)

package main

import (
	"io"

	"github.com/vending/iodin/internal/gpiocap"
	"github.com/vending/iodin/internal/gpiocap/pigpio"
)

// openHardwareDriver initialises the real pigpio-backed driver. Only
// buildable on linux/arm(64), where libpigpio itself can run.
func openHardwareDriver(lockPath string) (gpiocap.Driver, io.Closer, error) {
	d, err := pigpio.Open(lockPath)
	if err != nil {
		return nil, nil, err
	}
	return d, d, nil
}
