// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpiocap

import "errors"

// ErrDurationOverflow is returned by DurationToMicros32 when a duration
// can't be represented as a 32-bit microsecond count.
var ErrDurationOverflow = errors.New("gpiocap: duration overflows 32-bit microsecond counter")
