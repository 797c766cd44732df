// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"time"

	"github.com/lesismal/httputils/mempool"
)

const (
	// DefaultHeaderBufferSize is the capacity of the fixed header buffer.
	DefaultHeaderBufferSize = 1024
	// DefaultOTAMIMEType marks a body as a firmware image for the flash sink.
	DefaultOTAMIMEType = "application/ota-stream"
	// DefaultOTAReadQuota bounds every read of an OTA body.
	DefaultOTAReadQuota = 1024
	// DefaultUntilCloseReadSize is the buffer used for close-delimited bodies.
	DefaultUntilCloseReadSize = 1500
	// DefaultChunkBufferMin is the initial capacity of the chunk buffer.
	DefaultChunkBufferMin = 256
	// DefaultChunkGrowMargin is added to a chunk's size when the buffer grows.
	DefaultChunkGrowMargin = 256
	// DefaultMaxBodySize caps any body buffer held in memory.
	DefaultMaxBodySize = 1024 * 1024
)

// Options configures a Header. Zero values select the defaults above.
type Options struct {
	HeaderBufferSize   int
	OTAMIMEType        string
	OTAReadQuota       int
	UntilCloseReadSize int
	ChunkBufferMin     int
	ChunkGrowMargin    int
	MaxBodySize        int

	// WaitTimeout bounds every wait for readable data; 0 waits forever.
	WaitTimeout time.Duration

	// Allocator backs the body buffers, mempool.DefaultMemPool if nil.
	Allocator mempool.Allocator

	// Flash receives OTA payloads. A nil sink makes OTA bodies fail with
	// ErrUnsupported.
	Flash       FlashSink
	FlashRegion int
}

func (o Options) normalize() Options {
	if o.HeaderBufferSize <= 0 {
		o.HeaderBufferSize = DefaultHeaderBufferSize
	}
	if o.OTAMIMEType == "" {
		o.OTAMIMEType = DefaultOTAMIMEType
	}
	if o.OTAReadQuota <= 0 {
		o.OTAReadQuota = DefaultOTAReadQuota
	}
	if o.UntilCloseReadSize <= 0 {
		o.UntilCloseReadSize = DefaultUntilCloseReadSize
	}
	if o.ChunkBufferMin <= 0 {
		o.ChunkBufferMin = DefaultChunkBufferMin
	}
	if o.ChunkGrowMargin <= 0 {
		o.ChunkGrowMargin = DefaultChunkGrowMargin
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}
	if o.Allocator == nil {
		o.Allocator = mempool.DefaultMemPool
	}
	return o
}
