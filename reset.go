// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"github.com/lesismal/httputils/logging"
)

// Reset prepares the Header for the next message on the same connection.
//
// Bytes read past the end of the current message belong to a pipelined
// message; they are moved to the front of the header buffer so the next
// ReadHeader starts with them. Bytes that do not fit the header buffer are
// dropped. Every body buffer is released and an OTA session still open is
// finalized.
func (h *Header) Reset() {
	left := h.leftover()
	n := copy(h.buf, left)
	if n < len(left) {
		logging.Warn("dropping %d pipelined bytes beyond the %d byte header buffer", len(left)-n, len(h.buf))
	}
	h.n = n

	h.releaseBody()
	h.clearParsed()
	h.headerLen = 0
}

// leftover returns the bytes received past the current message. The result
// may alias h.buf.
func (h *Header) leftover() []byte {
	if h.headerLen == 0 {
		return h.buf[:h.n]
	}

	cl := int(h.ContentLength)
	switch {
	case h.Chunked:
		if h.lastChunk && h.trailerEnd <= h.chunks.n {
			return h.chunks.buf[h.trailerEnd:h.chunks.n]
		}
		return nil
	case h.DataEndedByClose:
		// the body runs until the connection closes, nothing can follow it
		return nil
	case h.body != nil:
		if h.extraLen > cl {
			return h.body[cl:h.extraLen]
		}
		return nil
	default:
		if h.n-h.headerLen > cl {
			return h.buf[h.headerLen+cl : h.n]
		}
		return nil
	}
}
