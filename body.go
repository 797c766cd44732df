// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"errors"
	"fmt"
	"io"

	"github.com/lesismal/httputils/logging"
)

// BodyResult tells the caller of ReadBody what the body bytes now
// available through Body mean.
type BodyResult int

const (
	// MoreData means Body holds one piece of the body (a chunk, or one read
	// of a close-delimited body) and ReadBody must be called again.
	MoreData BodyResult = iota
	// EndOfBody means the body is complete. For fixed-length bodies Body
	// holds all of it; for chunked and close-delimited bodies it is empty.
	EndOfBody
)

func (r BodyResult) String() string {
	switch r {
	case MoreData:
		return "MoreData"
	case EndOfBody:
		return "EndOfBody"
	default:
		return fmt.Sprintf("BodyResult(%d)", int(r))
	}
}

// ReadHeader reads from src until the header buffer holds a complete header
// section, parses it and prepares the body buffers for ReadBody. Bytes
// already buffered, such as a pipelined message kept by Reset, are used
// first. A header still held from the previous message is Reset first.
//
// An OTA body (Content-Type equal to the OTA MIME type) is not buffered:
// the flash session is opened here and the body bytes that came with the
// header are written to it.
func (h *Header) ReadHeader(src ByteSource) error {
	if h.headerLen > 0 {
		h.Reset()
	}

	var end int
	for {
		e, ok := FindHeaderEnd(h.buf[:h.n])
		if ok {
			end = e
			break
		}
		if h.n >= len(h.buf) {
			h.fail()
			return fmt.Errorf("header exceeds %d byte buffer: %w", len(h.buf), ErrMalformed)
		}
		n, err := h.fill(src, h.buf[h.n:])
		if err != nil {
			h.fail()
			return err
		}
		h.n += n
	}
	return h.completeHeader(end)
}

func (h *Header) completeHeader(end int) error {
	h.headerLen = end
	if err := h.Parse(); err != nil {
		h.fail()
		return err
	}
	h.releaseBody()
	h.extraLen = h.n - end
	if err := h.setupBody(); err != nil {
		h.releaseBody()
		h.fail()
		return err
	}
	logging.Debug("header parsed: %d bytes, %d extra, content length %d, chunked %v",
		h.headerLen, h.extraLen, h.ContentLength, h.Chunked)
	return nil
}

func (h *Header) setupBody() error {
	extra := h.buf[h.headerLen:h.n]

	if isOTA, err := FieldEqualFold(h.Raw(), contentTypeHeader, h.opts.OTAMIMEType); err == nil && isOTA {
		return h.openOTA(extra)
	}

	switch {
	case h.Chunked:
		size := h.opts.ChunkBufferMin
		h.chunks.init(size, extra)
	case h.ContentLength > 0:
		if h.ContentLength > uint64(h.opts.MaxBodySize) {
			return fmt.Errorf("content length %d over %d byte limit: %w", h.ContentLength, h.opts.MaxBodySize, ErrNoMemory)
		}
		size := int(h.ContentLength)
		if size < len(extra) {
			size = len(extra)
		}
		h.body = h.alloc.Malloc(size)
		copy(h.body, extra)
	case h.DataEndedByClose:
		size := h.opts.UntilCloseReadSize
		if size < len(extra) {
			size = len(extra)
		}
		h.body = h.alloc.Malloc(size)
		copy(h.body, extra)
	}
	return nil
}

func (h *Header) openOTA(extra []byte) error {
	if h.opts.Flash == nil {
		logging.Warn("OTA data received but no flash sink exists")
		return fmt.Errorf("OTA payload without flash sink: %w", ErrUnsupported)
	}
	if h.Chunked || h.DataEndedByClose {
		logging.Warn("OTA data without Content-Length is not supported")
		return fmt.Errorf("OTA payload without Content-Length: %w", ErrUnsupported)
	}

	s, err := OpenOTASession(h.opts.Flash, h.opts.FlashRegion)
	if err != nil {
		return err
	}
	h.ota = s

	if uint64(len(extra)) > h.ContentLength {
		extra = extra[:h.ContentLength]
	}
	return s.Write(extra)
}

// ReadBody reads the next part of the body announced by the header.
//
//   - Content-Length: reads until the whole body is held, returns EndOfBody.
//     OTA bodies are written to flash in OTAReadQuota sized reads instead.
//   - chunked: reads exactly one chunk and returns MoreData with the chunk
//     in Body, or EndOfBody once the last chunk and its trailer are consumed.
//   - close-delimited: the first call returns the bytes received with the
//     header, every later call returns one read; a closed connection ends
//     the body with EndOfBody and no error.
//
// On error the header is zeroed and every body buffer released.
func (h *Header) ReadBody(src ByteSource) (BodyResult, error) {
	if h.headerLen == 0 {
		return EndOfBody, errNoHeader
	}

	var res = EndOfBody
	var err error
	switch {
	case h.Chunked:
		res, err = h.readChunk(src)
	case h.DataEndedByClose:
		res, err = h.readUntilClose(src)
	case h.ota != nil:
		err = h.readOTA(src)
	default:
		err = h.readFixed(src)
	}
	if err != nil {
		h.releaseBody()
		h.fail()
		return EndOfBody, err
	}
	return res, nil
}

// Body returns the body bytes made available by the last ReadBody.
func (h *Header) Body() []byte {
	switch {
	case h.Chunked:
		if h.lastChunk || h.chunks.buf == nil {
			return nil
		}
		return h.chunks.buf[h.chunkOff : h.chunkOff+int(h.ContentLength)]
	case h.ota != nil, h.body == nil:
		return nil
	default:
		// only the bytes received so far while the body is incomplete
		return h.body[:min(h.extraLen, int(h.ContentLength))]
	}
}

// Received returns the number of body bytes received so far.
func (h *Header) Received() int {
	return h.extraLen
}

func (h *Header) readFixed(src ByteSource) error {
	cl := int(h.ContentLength)
	for h.extraLen < cl {
		n, err := h.fill(src, h.body[h.extraLen:cl])
		if err != nil {
			return err
		}
		h.extraLen += n
	}
	return nil
}

func (h *Header) readOTA(src ByteSource) (err error) {
	defer func() {
		ferr := h.ota.Finalize()
		if err == nil && ferr != nil {
			err = fmt.Errorf("flash finalize: %w", ferr)
		}
	}()

	if h.otaBuf == nil {
		h.otaBuf = h.alloc.Malloc(h.opts.OTAReadQuota)
	}
	for uint64(h.extraLen) < h.ContentLength {
		want := h.ContentLength - uint64(h.extraLen)
		if want > uint64(len(h.otaBuf)) {
			want = uint64(len(h.otaBuf))
		}
		n, err := h.fill(src, h.otaBuf[:want])
		if err != nil {
			return err
		}
		h.extraLen += n
		if err = h.ota.Write(h.otaBuf[:n]); err != nil {
			return err
		}
	}
	return nil
}

func (h *Header) readUntilClose(src ByteSource) (BodyResult, error) {
	if !h.closeStarted {
		h.closeStarted = true
		h.ContentLength = uint64(h.extraLen)
		return MoreData, nil
	}

	buf := h.body[:h.opts.UntilCloseReadSize]
	for {
		if err := src.WaitReadable(h.opts.WaitTimeout); err != nil {
			return EndOfBody, fmt.Errorf("wait readable: %v: %w", err, ErrConnection)
		}
		n, err := src.Read(buf)
		if n > 0 {
			h.ContentLength = uint64(n)
			h.extraLen = n
			return MoreData, nil
		}
		if errors.Is(err, ErrWouldBlock) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			// a read timeout or a broken connection truncates the body
			return EndOfBody, fmt.Errorf("read: %v: %w", err, ErrConnection)
		}
		// the peer closed the connection: that is how this body ends
		h.ContentLength = 0
		h.extraLen = 0
		return EndOfBody, nil
	}
}

func (h *Header) readChunk(src ByteSource) (BodyResult, error) {
	if h.lastChunk {
		return EndOfBody, nil
	}

	// drop the previous chunk: size line, data and its CRLF
	consumed := h.chunkOff + int(h.ContentLength)
	if h.ContentLength > 0 {
		consumed += 2
	}
	h.chunks.compact(consumed)
	h.extraLen = h.chunks.n
	h.chunkOff = 0
	h.ContentLength = 0

	var size uint64
	for {
		sz, off, ok, err := findChunkSize(h.chunks.bytes())
		if err != nil {
			return EndOfBody, err
		}
		if ok {
			size = sz
			h.chunkOff = off
			break
		}
		if h.chunks.full() {
			return EndOfBody, errChunkLineTooLong
		}
		if err = h.fillChunks(src, len(h.chunks.buf)); err != nil {
			return EndOfBody, err
		}
	}

	if size == 0 {
		return h.readTrailer(src)
	}

	if size > uint64(h.opts.MaxBodySize) {
		return EndOfBody, fmt.Errorf("chunk size %d over %d byte limit: %w", size, h.opts.MaxBodySize, ErrNoMemory)
	}
	h.ContentLength = size
	need := h.chunkOff + int(size) + 2
	if len(h.chunks.buf) < need {
		h.chunks.grow(h.chunkOff + int(size) + max(h.opts.ChunkGrowMargin, 2))
	}
	for h.chunks.n < need {
		if err := h.fillChunks(src, need); err != nil {
			return EndOfBody, err
		}
	}

	tail := h.chunkOff + int(size)
	if h.chunks.buf[tail] != '\r' || h.chunks.buf[tail+1] != '\n' {
		return EndOfBody, errBadChunkTerminator
	}
	return MoreData, nil
}

func (h *Header) readTrailer(src ByteSource) (BodyResult, error) {
	for {
		n, ok := findTrailerEnd(h.chunks.buf[h.chunkOff:h.chunks.n])
		if ok {
			h.trailerEnd = h.chunkOff + n
			h.lastChunk = true
			return EndOfBody, nil
		}
		if h.chunks.full() {
			if len(h.chunks.buf)+h.opts.ChunkGrowMargin > h.opts.MaxBodySize {
				return EndOfBody, fmt.Errorf("chunk trailer over %d byte limit: %w", h.opts.MaxBodySize, ErrMalformed)
			}
			h.chunks.grow(len(h.chunks.buf) + h.opts.ChunkGrowMargin)
		}
		if err := h.fillChunks(src, len(h.chunks.buf)); err != nil {
			return EndOfBody, err
		}
	}
}

// fillChunks reads into the chunk buffer, never past offset limit.
func (h *Header) fillChunks(src ByteSource, limit int) error {
	n, err := h.fill(src, h.chunks.buf[h.chunks.n:limit])
	if err != nil {
		return err
	}
	h.chunks.n += n
	h.extraLen = h.chunks.n
	return nil
}

// fill waits for src to become readable and reads into p. Reading nothing
// is a connection failure.
func (h *Header) fill(src ByteSource, p []byte) (int, error) {
	for {
		if err := src.WaitReadable(h.opts.WaitTimeout); err != nil {
			return 0, fmt.Errorf("wait readable: %v: %w", err, ErrConnection)
		}
		n, err := src.Read(p)
		if n > 0 {
			return n, nil
		}
		if errors.Is(err, ErrWouldBlock) {
			continue
		}
		if err == nil {
			err = io.EOF
		}
		return 0, fmt.Errorf("read: %v: %w", err, ErrConnection)
	}
}

func (h *Header) releaseBody() {
	if h.body != nil {
		h.alloc.Free(h.body)
		h.body = nil
	}
	if h.otaBuf != nil {
		h.alloc.Free(h.otaBuf)
		h.otaBuf = nil
	}
	h.chunks.free()
	if h.ota != nil && h.ota.IsOpen() {
		logging.Warn("OTA session %v abandoned after %d bytes, flash image incomplete", h.ota.ID, h.ota.Written())
		if err := h.ota.Finalize(); err != nil {
			logging.Error("OTA session %v: finalize failed: %v", h.ota.ID, err)
		}
	}
	h.ota = nil
	h.extraLen = 0
	h.chunkOff = 0
	h.trailerEnd = 0
	h.lastChunk = false
	h.closeStarted = false
}
