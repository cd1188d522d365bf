// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !(linux && (arm || arm64))

package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/vending/iodin/internal/gpiocap"
)

// openHardwareDriver is unavailable outside linux/arm(64): libpigpio is a
// Raspberry Pi DMA/PWM peripheral driver and cannot run elsewhere. Builds
// for other platforms must pass -mock.
func openHardwareDriver(lockPath string) (gpiocap.Driver, io.Closer, error) {
	return nil, nil, fmt.Errorf("iodin: no GPIO driver available on %s/%s; run with -mock", runtime.GOOS, runtime.GOARCH)
}
