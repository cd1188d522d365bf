// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux && (arm || arm64)

package pigpio

/*
#include <stdlib.h>
*/
import "C"

import "unsafe"

// unsafePointer returns a C-compatible pointer to buf's backing array
// without copying. buf must not be empty and must outlive the call.
func unsafePointer(buf []byte) unsafe.Pointer {
	return unsafe.Pointer(&buf[0])
}

// cCharPointer returns buf's backing array reinterpreted as a *C.char, for
// APIs that take serial payloads as char* rather than void*.
func cCharPointer(buf []byte) *C.char {
	if len(buf) == 0 {
		return nil
	}
	return (*C.char)(unsafePointer(buf))
}
