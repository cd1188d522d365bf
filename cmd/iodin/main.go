// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// iodin is the MDB-over-GPIO bridge daemon described in spec.md §1: it
// speaks the length-prefixed control protocol of spec.md §6 on stdio (or a
// pre-opened datagram socket) and drives the pigpio wave generator to
// implement the MDB bus protocol of spec.md §3.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vending/iodin/dispatcher"
	"github.com/vending/iodin/dispatcher/transport"
	"github.com/vending/iodin/internal/gpiocap"
	"github.com/vending/iodin/internal/gpiocap/fake"
	"github.com/vending/iodin/internal/iodincfg"
)

// sockWriteTimeout bounds a single write to the sock_fd transport so a
// wedged peer cannot hang the daemon forever, per spec.md §6(b).
const sockWriteTimeout = 15 * time.Second

func mainImpl() error {
	mock := flag.Bool("mock", false, "use an in-memory fake GPIO driver instead of real hardware")
	verbose := flag.Bool("v", false, "verbose (development) logging")
	lockPath := flag.String("lock", "", "path to the process-singleton lock file (default: pigpio package default)")
	flag.Parse()
	if flag.NArg() != 0 {
		return fmt.Errorf("unexpected argument, try -help")
	}

	log, err := newLogger(*verbose)
	if err != nil {
		return fmt.Errorf("iodin: logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := iodincfg.Load()
	if err != nil {
		return err
	}

	driver, closer, err := selectDriver(*mock, *lockPath)
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error("driver close failed", zap.Error(err))
			}
		}()
	}

	d := dispatcher.New(driver, log, *mock)
	if cfg.WaitStepUs != 0 {
		d.SetWaitStepUs(cfg.WaitStepUs)
	}

	rw, closeRW, err := selectTransport(cfg)
	if err != nil {
		return err
	}
	if closeRW != nil {
		defer func() { _ = closeRW.Close() }()
	}

	log.Info("iodin starting", zap.Bool("mock", *mock), zap.Bool("sock_fd", cfg.HasSockFD))
	if cfg.HasSockFD {
		// One message per datagram (spec.md §6(b)) — no length prefix to parse.
		return d.RunDatagram(rw)
	}
	return d.Run(rw, rw)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func selectDriver(mock bool, lockPath string) (gpiocap.Driver, io.Closer, error) {
	if mock {
		return fake.New(), nil, nil
	}
	return openHardwareDriver(lockPath)
}

// rwCloser lets stdio and the sock_fd transport share one code path: stdio
// has no meaningful Close, the socket transport does.
type rwCloser interface {
	io.ReadWriter
	Close() error
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return nil }

func selectTransport(cfg *iodincfg.Config) (rwCloser, io.Closer, error) {
	if !cfg.HasSockFD {
		return stdio{}, nil, nil
	}
	s, err := transport.OpenEnvSocket(cfg.SockFD, sockWriteTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("iodin: sock_fd transport: %w", err)
	}
	return s, s, nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "iodin: %s.\n", err)
		os.Exit(1)
	}
}
