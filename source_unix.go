// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package httputils

import (
	"errors"
	"io"
	"time"

	"golang.org/x/sys/unix"
)

var errWaitTimeout = errors.New("wait readable timeout")

// FDSource reads a raw socket descriptor, blocking or not. WaitReadable
// polls the descriptor, Read maps EAGAIN to ErrWouldBlock.
type FDSource struct {
	FD int
}

// WaitReadable .
func (s *FDSource) WaitReadable(timeout time.Duration) error {
	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
	}
	fds := []unix.PollFd{{Fd: int32(s.FD), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return errWaitTimeout
		}
		// POLLHUP and POLLERR are readable too: Read reports them.
		return nil
	}
}

// Read .
func (s *FDSource) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(s.FD, p)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case err != nil:
			return 0, err
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}
