// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package devserver

import (
	"fmt"
	"io"

	"github.com/lesismal/httputils"
	"github.com/lesismal/httputils/mempool"
)

// BodyReader is the request body handed to handlers. Its buffer comes from
// the mempool and is released when the handler returns.
type BodyReader struct {
	index  int
	buffer []byte
}

// Read implements io.Reader.
func (br *BodyReader) Read(p []byte) (int, error) {
	available := len(br.buffer) - br.index
	if available <= 0 {
		return 0, io.EOF
	}
	n := copy(p, br.buffer[br.index:])
	br.index += n
	if n == available {
		return n, io.EOF
	}
	return n, nil
}

func (br *BodyReader) append(data []byte) {
	if len(data) == 0 {
		return
	}
	if br.buffer == nil {
		br.buffer = mempool.Malloc(len(data))
		copy(br.buffer, data)
		return
	}
	br.buffer = mempool.Append(br.buffer, data...)
}

// RawBody returns the buffer directly. It must not be used after the
// handler returns.
func (br *BodyReader) RawBody() []byte {
	return br.buffer
}

// Len returns the body size.
func (br *BodyReader) Len() int {
	return len(br.buffer)
}

// Close implements io.Closer.
func (br *BodyReader) Close() error {
	if br.buffer != nil {
		mempool.Free(br.buffer)
		br.buffer = nil
		br.index = 0
	}
	return nil
}

// readBody collects the whole body of the request held by h.
func readBody(h *httputils.Header, src httputils.ByteSource, limit int) (*BodyReader, error) {
	br := &BodyReader{}
	for {
		res, err := h.ReadBody(src)
		if err != nil {
			br.Close()
			return nil, err
		}
		data := h.Body()
		if len(br.buffer)+len(data) > limit {
			br.Close()
			return nil, fmt.Errorf("request body over %d bytes: %w", limit, httputils.ErrNoMemory)
		}
		br.append(data)
		if res == httputils.EndOfBody {
			return br, nil
		}
	}
}
