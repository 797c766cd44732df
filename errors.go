// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"errors"
	"fmt"
)

// Every error returned by this package wraps exactly one of these
// categories; test with errors.Is.
var (
	// ErrConnection means a read failed or the peer closed the connection
	// before the message was complete. The connection should be closed.
	ErrConnection = errors.New("connection error")

	// ErrMalformed means the message broke the wire format. Only the current
	// message is lost; the connection may be reset and reused.
	ErrMalformed = errors.New("malformed message")

	// ErrNoMemory means a body buffer could not be allocated within the
	// configured limits.
	ErrNoMemory = errors.New("no memory")

	// ErrNotFound means a requested header field is absent. It is a normal
	// control flow signal for optional fields.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported means an OTA payload arrived but no flash sink can take it.
	ErrUnsupported = errors.New("unsupported")

	// ErrWouldBlock is returned by a non-blocking ByteSource that has no data yet.
	ErrWouldBlock = errors.New("would block")
)

var (
	errMalformedStartLine = fmt.Errorf("malformed start line: %w", ErrMalformed)
	errInvalidChunkSize   = fmt.Errorf("invalid chunk size: %w", ErrMalformed)
	errBadChunkTerminator = fmt.Errorf("bad chunk terminator: %w", ErrMalformed)
	errChunkLineTooLong   = fmt.Errorf("chunk buffer full without chunk size line: %w", ErrMalformed)
	errNoHeader           = fmt.Errorf("no parsed header: %w", ErrMalformed)
	errInvalidNumber      = fmt.Errorf("invalid numeric field value: %w", ErrMalformed)
)
