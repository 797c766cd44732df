// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"bytes"
)

// FindHeaderEnd reports the offset just past the header section held in b.
//
// A buffer of at least 4 bytes starting with '$' is an interleaved binary
// frame (RFC 2326 section 10.12) whose header is exactly 4 bytes long.
// Otherwise the header ends at the first empty line. CRLFCRLF, LFLF, CRLFLF
// and LFCRLF are accepted, CRCR is not.
//
// ok is false when no terminator is present yet; the caller should read more
// bytes and call again. FindHeaderEnd keeps no state, so rescanning a grown
// buffer returns the same offset.
func FindHeaderEnd(b []byte) (end int, ok bool) {
	if len(b) >= 4 && b[0] == '$' {
		return 4, true
	}

	i := 0
	for {
		n := bytes.IndexByte(b[i:], '\n')
		if n < 0 {
			return 0, false
		}
		i += n
		left := len(b) - i
		if left >= 3 && b[i+1] == '\r' && b[i+2] == '\n' {
			return i + 3, true
		}
		if left >= 2 && b[i+1] == '\n' {
			return i + 2, true
		}
		if left <= 1 {
			return 0, false
		}
		i++
	}
}
