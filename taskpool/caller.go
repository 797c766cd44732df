// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package taskpool

import (
	"runtime"

	"github.com/lesismal/httputils/logging"
)

// Call runs f and logs instead of crashing if it panics.
func Call(f func()) {
	defer func() {
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			logging.Error("taskpool call failed: %v\n%s\n", err, buf)
		}
	}()
	f()
}
