// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"net"
	"time"
)

// ByteSource is the socket a Header reads from.
//
// WaitReadable blocks until data can be read, the peer closed the
// connection, or timeout elapses (0 means no limit). Read returns the bytes
// read; 0 bytes with io.EOF means the peer closed the connection, and
// ErrWouldBlock means a non-blocking source has no data yet. Any other error
// is fatal to the current message.
type ByteSource interface {
	WaitReadable(timeout time.Duration) error
	Read(p []byte) (int, error)
}

// ConnSource adapts a net.Conn. Its Read blocks, so WaitReadable only arms
// the read deadline for the next Read.
type ConnSource struct {
	Conn net.Conn
}

// NewConnSource .
func NewConnSource(conn net.Conn) *ConnSource {
	return &ConnSource{Conn: conn}
}

// WaitReadable .
func (s *ConnSource) WaitReadable(timeout time.Duration) error {
	if timeout > 0 {
		return s.Conn.SetReadDeadline(time.Now().Add(timeout))
	}
	return s.Conn.SetReadDeadline(time.Time{})
}

// Read .
func (s *ConnSource) Read(p []byte) (int, error) {
	return s.Conn.Read(p)
}
