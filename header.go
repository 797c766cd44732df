// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"fmt"
	"strings"

	"github.com/lesismal/httputils/mempool"
)

// Span is a byte range inside the header buffer.
type Span struct {
	Off int
	Len int
}

func (s Span) in(b []byte) []byte {
	if s.Len == 0 {
		return nil
	}
	return b[s.Off : s.Off+s.Len]
}

// Header is the state of one in-flight HTTP message on a connection: the
// fixed header buffer, the parsed start line and framing, and the body
// buffers being reassembled.
//
// Method, URL, Protocol, ReasonPhrase, Raw and Body return views into buffers
// owned by the Header. They are only valid until the next ReadHeader or Reset
// and must be copied if they are needed longer.
//
// A Header belongs to a single connection flow and is not safe for
// concurrent use.
type Header struct {
	opts  Options
	alloc mempool.Allocator

	buf       []byte // fixed capacity header buffer
	n         int    // bytes held in buf
	headerLen int    // validated header region in buf

	method   Span
	url      Span
	protocol Span
	reason   Span

	// URL holds the components of a request URL.
	URL URLComponents
	// StatusCode is -1 for requests.
	StatusCode int
	// ChannelID is set for interleaved binary frames only.
	ChannelID int
	// Interleaved marks a 4 byte '$' frame header instead of an HTTP start line.
	Interleaved bool

	// ContentLength is the declared body size. While a chunked body is being
	// read it holds the size of the current chunk.
	ContentLength    uint64
	Chunked          bool
	DataEndedByClose bool
	Persistent       bool

	// extraLen counts body bytes received so far, including any bytes past
	// the header that arrived with it.
	extraLen int

	body         []byte // owned buffer of fixed-length and close-delimited bodies
	chunks       chunkBuffer
	chunkOff     int // offset of the current chunk's data in chunks
	trailerEnd   int // offset just past the trailer of the terminal chunk
	lastChunk    bool
	closeStarted bool

	ota    *OTASession
	otaBuf []byte
}

// NewHeader creates a Header with a fixed buffer of opts.HeaderBufferSize bytes.
func NewHeader(opts Options) *Header {
	opts = opts.normalize()
	h := &Header{
		opts:       opts,
		alloc:      opts.Allocator,
		buf:        make([]byte, opts.HeaderBufferSize),
		StatusCode: -1,
	}
	h.chunks.alloc = opts.Allocator
	return h
}

// Raw returns the header section, start line through the empty line.
func (h *Header) Raw() []byte {
	return h.buf[:h.headerLen]
}

// Len returns the length of the header section, 0 if none is parsed.
func (h *Header) Len() int {
	return h.headerLen
}

// Buffered returns the bytes held in the header buffer, header plus any
// bytes read past it.
func (h *Header) Buffered() []byte {
	return h.buf[:h.n]
}

// Method returns the request method.
func (h *Header) Method() []byte {
	return h.method.in(h.buf)
}

// RequestURL returns the raw request URL.
func (h *Header) RequestURL() []byte {
	return h.url.in(h.buf)
}

// Protocol returns the protocol token, such as "HTTP/1.1".
func (h *Header) Protocol() []byte {
	return h.protocol.in(h.buf)
}

// ReasonPhrase returns the reason phrase of a response.
func (h *Header) ReasonPhrase() []byte {
	return h.reason.in(h.buf)
}

// IsRequest reports whether the start line is a request line.
func (h *Header) IsRequest() bool {
	return h.method.Len > 0
}

// IsResponse reports whether the start line is a status line.
func (h *Header) IsResponse() bool {
	return !h.Interleaved && h.method.Len == 0 && h.protocol.Len > 0
}

// OTA returns the flash session of an OTA body, nil for other bodies.
func (h *Header) OTA() *OTASession {
	return h.ota
}

// MatchMethod reports whether the request method equals method, ignoring case.
func (h *Header) MatchMethod(method string) bool {
	return equalFold(h.Method(), method)
}

// MatchURL reports whether the request path ends with suffix, ignoring case.
func (h *Header) MatchURL(suffix string) bool {
	return hasSuffixFold([]byte(h.URL.Path), suffix)
}

// MatchPartialURL returns the tail of the request path starting at the first
// case-insensitive occurrence of fragment, or "" if it does not occur.
func (h *Header) MatchPartialURL(fragment string) string {
	i := indexFold([]byte(h.URL.Path), fragment)
	if i < 0 {
		return ""
	}
	return h.URL.Path[i:]
}

func (h *Header) clearParsed() {
	h.method = Span{}
	h.url = Span{}
	h.protocol = Span{}
	h.reason = Span{}
	h.URL = URLComponents{}
	h.StatusCode = -1
	h.ChannelID = 0
	h.Interleaved = false
	h.ContentLength = 0
	h.Chunked = false
	h.DataEndedByClose = false
	h.Persistent = false
}

// fail zeroes the header so stale spans cannot be read after an error.
func (h *Header) fail() {
	h.headerLen = 0
	h.n = 0
	h.clearParsed()
}

// String dumps the parsed header for debugging.
func (h *Header) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Length: %d\n", h.headerLen)
	if h.Interleaved {
		fmt.Fprintf(&sb, "ChannelID: %d\n", h.ChannelID)
	} else if h.IsRequest() {
		fmt.Fprintf(&sb, "Method: %s\nURL: %s\n", h.Method(), h.RequestURL())
	} else {
		fmt.Fprintf(&sb, "Status Code: %d\nReason: %s\n", h.StatusCode, h.ReasonPhrase())
	}
	fmt.Fprintf(&sb, "Protocol: %s\n", h.Protocol())
	fmt.Fprintf(&sb, "Content length: %d\n", h.ContentLength)
	fmt.Fprintf(&sb, "Chunked: %v\n", h.Chunked)
	fmt.Fprintf(&sb, "Persistent: %v\n", h.Persistent)
	fmt.Fprintf(&sb, "Extra data length: %d", h.extraLen)
	return sb.String()
}
