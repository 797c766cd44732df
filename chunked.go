// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"bytes"

	"github.com/lesismal/httputils/mempool"
)

var crlf = []byte("\r\n")

// chunkBuffer is the growable buffer of a chunked body. len(buf) is its
// capacity and n the count of valid bytes.
type chunkBuffer struct {
	alloc mempool.Allocator
	buf   []byte
	n     int
}

func (b *chunkBuffer) init(size int, data []byte) {
	b.free()
	if size < len(data) {
		size = len(data)
	}
	b.buf = b.alloc.Malloc(size)
	b.n = copy(b.buf, data)
}

func (b *chunkBuffer) bytes() []byte {
	return b.buf[:b.n]
}

func (b *chunkBuffer) full() bool {
	return b.n >= len(b.buf)
}

// grow makes room for size bytes, keeping the valid bytes.
func (b *chunkBuffer) grow(size int) {
	if size <= len(b.buf) {
		return
	}
	b.buf = b.alloc.Realloc(b.buf[:b.n], size)
	b.buf = b.buf[:cap(b.buf)]
}

// compact drops the first consumed bytes and moves the rest to the front.
func (b *chunkBuffer) compact(consumed int) {
	if consumed <= 0 {
		return
	}
	if consumed > b.n {
		consumed = b.n
	}
	b.n = copy(b.buf, b.buf[consumed:b.n])
}

func (b *chunkBuffer) free() {
	if b.buf != nil {
		b.alloc.Free(b.buf)
		b.buf = nil
	}
	b.n = 0
}

// findCRLF returns the offset just past the first CRLF in b.
func findCRLF(b []byte) (int, bool) {
	i := bytes.Index(b, crlf)
	if i < 0 {
		return 0, false
	}
	return i + 2, true
}

// findChunkSize looks for a complete chunk-size line at the start of b.
// It returns the chunk size and the offset of the chunk data. ok is false
// if the line is not complete yet.
//
// A line starting with '0' is the last chunk whatever follows the '0'.
// Otherwise the leading hex digits are the size and anything after them,
// such as chunk extensions, is ignored.
func findChunkSize(b []byte) (size uint64, dataOff int, ok bool, err error) {
	dataOff, ok = findCRLF(b)
	if !ok {
		return 0, 0, false, nil
	}
	if b[0] == '0' {
		return 0, dataOff, true, nil
	}

	line := b[:dataOff-2]
	i := 0
	for ; i < len(line) && isHex(line[i]); i++ {
		if size > (1<<60)-1 {
			return 0, 0, false, errInvalidChunkSize
		}
		size = size<<4 | uint64(hexValMap[line[i]])
	}
	if i == 0 {
		return 0, 0, false, errInvalidChunkSize
	}
	return size, dataOff, true, nil
}

// findTrailerEnd returns the offset just past the empty line closing the
// trailer section at the start of b.
func findTrailerEnd(b []byte) (int, bool) {
	i := 0
	for {
		n, ok := findCRLF(b[i:])
		if !ok {
			return 0, false
		}
		if n == 2 {
			return i + 2, true
		}
		i += n
	}
}
