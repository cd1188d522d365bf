// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux && (arm || arm64)

// Package pigpio is the real gpiocap.Driver, backed by libpigpio via cgo.
// It is only buildable on linux/arm(64) since libpigpio itself is a
// Raspberry Pi DMA/PWM peripheral driver.
package pigpio

/*
#cgo LDFLAGS: -lpigpio -lpthread
#include <pigpio.h>
*/
import "C"

import (
	"fmt"
	"sync"

	"github.com/gofrs/flock"
	"periph.io/x/conn/v3/driver/driverreg"

	"github.com/vending/iodin/internal/gpiocap"
)

// defaultLockPath is where the advisory process-singleton lock lives. pigpio
// itself keeps no registry of callers, so two daemons opening /dev/gpiomem
// concurrently would silently race; the lock turns that into a clear error.
const defaultLockPath = "/var/run/iodin.lock"

var (
	mu       sync.Mutex
	initDone bool
	lock     *flock.Flock
)

// Driver is the cgo-backed gpiocap.Driver singleton. Callers obtain it via
// Open, not by constructing it directly.
type Driver struct{}

// Open initialises the pigpio library and acquires the process-singleton
// lock. It must be called at most once per process; a second call, in this
// process or another, fails with a descriptive error rather than silently
// reinitializing pigpio state out from under an in-flight transaction.
func Open(lockPath string) (*Driver, error) {
	mu.Lock()
	defer mu.Unlock()
	if initDone {
		return nil, fmt.Errorf("pigpio: already initialised in this process")
	}
	if lockPath == "" {
		lockPath = defaultLockPath
	}
	f := flock.New(lockPath)
	ok, err := f.TryLock()
	if err != nil {
		return nil, fmt.Errorf("pigpio: acquiring lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("pigpio: %s is held by another process; only one iodin instance may drive the GPIO bus at a time", lockPath)
	}

	if rc := C.gpioCfgInterfaces(C.PI_DISABLE_FIFO_IF | C.PI_DISABLE_SOCK_IF); rc < 0 {
		_ = f.Unlock()
		return nil, checkErr(int(rc))
	}
	if rc := C.gpioInitialise(); rc < 0 {
		_ = f.Unlock()
		return nil, checkErr(int(rc))
	}

	if err := driverreg.Register(&registration{}); err != nil {
		C.gpioTerminate()
		_ = f.Unlock()
		return nil, fmt.Errorf("pigpio: driverreg.Register: %w", err)
	}
	lock = f
	initDone = true
	if _, err := driverreg.Init(); err != nil {
		C.gpioTerminate()
		initDone = false
		_ = f.Unlock()
		lock = nil
		return nil, fmt.Errorf("pigpio: driverreg.Init: %w", err)
	}
	return &Driver{}, nil
}

// Close terminates pigpio and releases the process lock. Idempotent.
func (d *Driver) Close() error {
	mu.Lock()
	defer mu.Unlock()
	if !initDone {
		return nil
	}
	C.gpioTerminate()
	initDone = false
	if lock != nil {
		err := lock.Unlock()
		lock = nil
		return err
	}
	return nil
}

func (d *Driver) SetMode(pin uint16, output bool) error {
	mode := C.PI_INPUT
	if output {
		mode = C.PI_OUTPUT
	}
	return checkErr(int(C.gpioSetMode(C.uint(pin), C.uint(mode))))
}

func (d *Driver) Write(pin uint16, high bool) error {
	var v C.uint
	if high {
		v = 1
	}
	return checkErr(int(C.gpioWrite(C.uint(pin), v)))
}

func (d *Driver) SerialReadOpen(pin uint16, baud uint32, dataBits uint32) error {
	return checkErr(int(C.gpioSerialReadOpen(C.uint(pin), C.uint(baud), C.uint(dataBits))))
}

func (d *Driver) SerialReadClose(pin uint16) error {
	return checkErr(int(C.gpioSerialReadClose(C.uint(pin))))
}

func (d *Driver) SerialRead(pin uint16, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	rc := C.gpioSerialRead(C.uint(pin), unsafePointer(buf), C.size_t(len(buf)))
	if rc < 0 {
		return 0, checkErr(int(rc))
	}
	return int(rc), nil
}

func (d *Driver) WaveAddSerial(pin uint16, baud uint32, dataBits, stopBits uint32, words []byte) error {
	if rc := C.gpioWaveAddNew(); rc < 0 {
		return checkErr(int(rc))
	}
	const offsetMicros = 0
	rc := C.gpioWaveAddSerial(
		C.uint(pin), C.uint(baud), C.uint(dataBits), C.uint(stopBits),
		C.uint(offsetMicros), C.uint(len(words)), cCharPointer(words),
	)
	return checkErr(int(rc))
}

func (d *Driver) WaveCreate() (gpiocap.Wave, error) {
	rc := C.gpioWaveCreate()
	if rc < 0 {
		return 0, checkErr(int(rc))
	}
	return gpiocap.Wave(rc), nil
}

func (d *Driver) WaveDelete(w gpiocap.Wave) error {
	rc := C.gpioWaveDelete(C.uint(w))
	if rc == C.PI_BAD_WAVE_ID {
		// already gone; deletion must be idempotent.
		return nil
	}
	return checkErr(int(rc))
}

func (d *Driver) WaveTxSend(w gpiocap.Wave, mode gpiocap.WaveMode) error {
	rc := C.gpioWaveTxSend(C.uint(w), C.uint(C.PI_WAVE_MODE_ONE_SHOT_SYNC))
	return checkErr(int(rc))
}

func (d *Driver) WaveTxBusy() (bool, error) {
	rc := C.gpioWaveTxBusy()
	if rc < 0 {
		return false, checkErr(int(rc))
	}
	return rc == 1, nil
}

func (d *Driver) WaveTxStop() error {
	return checkErr(int(C.gpioWaveTxStop()))
}

func (d *Driver) Tick() uint32 {
	return uint32(C.gpioTick())
}

func (d *Driver) Delay(us uint32) uint32 {
	return uint32(C.gpioDelay(C.uint(us)))
}

func checkErr(rc int) error {
	if rc < 0 {
		return fmt.Errorf("pigpio: error code %d", rc)
	}
	return nil
}

// registration lets pigpio participate in periph.io's driver registry so
// that, within a process that also uses periph.io/x/host for other buses,
// double-initialisation attempts surface through the same mechanism the
// rest of the ecosystem uses.
type registration struct{}

func (registration) String() string          { return "pigpio-mdb" }
func (registration) Prerequisites() []string { return nil }
func (registration) After() []string         { return nil }
func (registration) Init() (bool, error)     { return true, nil }

var _ gpiocap.Driver = (*Driver)(nil)
