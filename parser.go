// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lesismal/httputils/logging"
)

const (
	connectionHeader       = "Connection"
	transferEncodingHeader = "Transfer-Encoding"
	contentLengthHeader    = "Content-Length"
	contentTypeHeader      = "Content-Type"
)

// Parse parses the header section held in the first Len() bytes of the
// buffer. ReadHeader calls it; it is exported for callers that fill the
// buffer themselves through SetRaw.
//
// Requests look like "GET /abc/xyz.html HTTP/1.1", responses like
// "HTTP/1.1 404 Not Found". A start line is a request if a space comes
// before any '/', a response otherwise.
func (h *Header) Parse() error {
	h.clearParsed()
	if h.headerLen <= 0 || h.headerLen > len(h.buf) {
		return errMalformedStartLine
	}

	src := h.buf[:h.headerLen]

	// '$' <1:channelID> <2:dataSize in network byte order>
	if len(src) == 4 && src[0] == '$' {
		h.Interleaved = true
		h.ChannelID = int(src[1])
		h.ContentLength = uint64(binary.BigEndian.Uint16(src[2:4]))
		return nil
	}

	end := len(src)
	i := 0
	var c byte
	for ; i < end; i++ {
		c = src[i]
		if c == ' ' || c == '/' {
			break
		}
	}
	if i >= end {
		return errMalformedStartLine
	}

	if c == ' ' {
		h.method = Span{0, i}
		i++

		start := i
		for i < end && src[i] != ' ' {
			i++
		}
		h.url = Span{start, i - start}
		if i >= end {
			return errMalformedStartLine
		}
		i++

		u, err := ParseURL(h.RequestURL())
		if err != nil {
			return fmt.Errorf("invalid url %q: %v: %w", h.RequestURL(), err, ErrMalformed)
		}
		h.URL = u

		start = i
		for i < end && src[i] != '\r' && src[i] != '\n' {
			i++
		}
		h.protocol = Span{start, i - start}
		if i >= end {
			return errMalformedStartLine
		}
		i++
	} else {
		for i++; i < end && src[i] != ' '; i++ {
		}
		h.protocol = Span{0, i}
		if i >= end {
			return errMalformedStartLine
		}
		i++

		code := 0
		for ; i < end && isNum(src[i]); i++ {
			code = code*10 + int(src[i]-'0')
		}
		h.StatusCode = code
		if i < end && src[i] == ' ' {
			i++
		}

		start := i
		for i < end && src[i] != '\r' && src[i] != '\n' {
			i++
		}
		h.reason = Span{start, i - start}
		if i >= end {
			return errMalformedStartLine
		}
		i++
	}

	// at least the empty line must follow
	if i >= end {
		return errMalformedStartLine
	}

	h.parseFraming(src)
	return nil
}

func (h *Header) parseFraming(src []byte) {
	// HTTP/1.0 is not persistent unless the peer says otherwise.
	if isClose, err := FieldEqualFold(src, connectionHeader, "close"); err == nil {
		h.Persistent = !isClose
	} else {
		h.Persistent = !equalFold(h.Protocol(), "HTTP/1.0")
	}

	h.Chunked, _ = FieldEqualFold(src, transferEncodingHeader, "chunked")

	cl, err := FieldUint(src, contentLengthHeader)
	hasLength := err == nil
	switch {
	case hasLength:
		h.ContentLength = cl
	case !errors.Is(err, ErrNotFound):
		logging.Debug("ignoring Content-Length: %v", err)
	}
	if h.Chunked {
		h.ContentLength = 0
		return
	}

	h.DataEndedByClose = !hasLength && h.IsResponse() && responseHasBody(h.StatusCode)
}

func responseHasBody(status int) bool {
	return !(status >= 100 && status < 200) && status != 204 && status != 304
}

// SetRaw copies a complete header section, optionally followed by body
// bytes, into the header buffer and parses it, as ReadHeader would after
// receiving b from the network.
func (h *Header) SetRaw(b []byte) error {
	h.releaseBody()
	if len(b) > len(h.buf) {
		h.fail()
		return fmt.Errorf("header exceeds %d byte buffer: %w", len(h.buf), ErrMalformed)
	}
	h.n = copy(h.buf, b)
	end, ok := FindHeaderEnd(h.buf[:h.n])
	if !ok {
		h.fail()
		return fmt.Errorf("incomplete header: %w", ErrMalformed)
	}
	return h.completeHeader(end)
}
