// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mempool

import (
	"sync"
)

// Allocator hands out the byte buffers that back message bodies.
// Every buffer returned by Malloc or Realloc must be given back with Free.
type Allocator interface {
	Malloc(size int) []byte
	Realloc(buf []byte, size int) []byte
	Append(buf []byte, more ...byte) []byte
	Free(buf []byte)
}

// DebugAllocator is an Allocator that can count its outstanding buffers.
type DebugAllocator interface {
	Allocator
	SetDebug(bool)
	Outstanding() int64
	String() string
}

// DefaultMemPool .
var DefaultMemPool Allocator = New(1024, 64*1024*1024)

// MemPool .
type MemPool struct {
	*debugger

	bufSize  int
	freeSize int
	pool     *sync.Pool
}

// New creates a pooled allocator. Buffers start at bufSize bytes and
// buffers larger than freeSize are left to the GC instead of the pool.
func New(bufSize, freeSize int) Allocator {
	if bufSize <= 0 {
		bufSize = 64
	}
	if freeSize <= 0 {
		freeSize = 64 * 1024
	}
	if freeSize < bufSize {
		freeSize = bufSize
	}

	mp := &MemPool{
		debugger: &debugger{},
		bufSize:  bufSize,
		freeSize: freeSize,
		pool:     &sync.Pool{},
	}
	mp.pool.New = func() interface{} {
		buf := make([]byte, bufSize)
		return &buf
	}

	return mp
}

// Malloc .
func (mp *MemPool) Malloc(size int) []byte {
	var buf []byte
	if size > mp.freeSize {
		buf = make([]byte, size)
	} else {
		pbuf := mp.pool.Get().(*[]byte)
		n := cap(*pbuf)
		if n < size {
			*pbuf = append((*pbuf)[:n], make([]byte, size-n)...)
		}
		buf = (*pbuf)[:size]
	}
	mp.incrMalloc(buf)
	return buf
}

// Realloc returns a buffer of size bytes holding the content of buf.
// buf must not be used after Realloc returns.
func (mp *MemPool) Realloc(buf []byte, size int) []byte {
	if size <= cap(buf) {
		return buf[:size]
	}
	newBuf := mp.Malloc(size)
	copy(newBuf, buf)
	mp.Free(buf)
	return newBuf
}

// Append .
func (mp *MemPool) Append(buf []byte, more ...byte) []byte {
	if len(buf)+len(more) <= cap(buf) {
		return append(buf, more...)
	}
	l := len(buf)
	buf = mp.Realloc(buf, l+len(more))
	copy(buf[l:], more)
	return buf
}

// Free .
func (mp *MemPool) Free(buf []byte) {
	if buf == nil {
		return
	}
	mp.incrFree(buf)
	if cap(buf) > mp.freeSize {
		return
	}
	mp.pool.Put(&buf)
}

// Malloc exports default package method.
func Malloc(size int) []byte {
	return DefaultMemPool.Malloc(size)
}

// Realloc exports default package method.
func Realloc(buf []byte, size int) []byte {
	return DefaultMemPool.Realloc(buf, size)
}

// Append exports default package method.
func Append(buf []byte, more ...byte) []byte {
	return DefaultMemPool.Append(buf, more...)
}

// Free exports default package method.
func Free(buf []byte) {
	DefaultMemPool.Free(buf)
}

// Init replaces the default pool.
func Init(bufSize, freeSize int) {
	DefaultMemPool = New(bufSize, freeSize)
}
