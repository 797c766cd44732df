// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package devserver

import (
	"io"
	"net/http"

	"github.com/lesismal/httputils"
	"github.com/lesismal/httputils/logging"
	"github.com/lesismal/httputils/mempool"
)

const (
	contentTypeHeader   = "Content-Type"
	contentLengthHeader = "Content-Length"
	connectionHeader    = "Connection"

	defaultContentType = "text/plain; charset=utf-8"
)

// Response implements http.ResponseWriter. The body is buffered and sent
// with its Content-Length once the handler returns.
type Response struct {
	conn    io.Writer
	request *http.Request

	statusCode int
	header     http.Header
	body       []byte
}

func newResponse(conn io.Writer, request *http.Request) *Response {
	return &Response{
		conn:    conn,
		request: request,
		header:  http.Header{},
	}
}

// Header .
func (res *Response) Header() http.Header {
	return res.header
}

// WriteHeader .
func (res *Response) WriteHeader(statusCode int) {
	if res.statusCode == 0 {
		res.statusCode = statusCode
	}
}

// Write .
func (res *Response) Write(data []byte) (int, error) {
	res.WriteHeader(http.StatusOK)
	if len(data) == 0 {
		return 0, nil
	}
	if res.body == nil {
		res.body = mempool.Malloc(len(data))[:0]
	}
	res.body = mempool.Append(res.body, data...)
	return len(data), nil
}

// WriteString .
func (res *Response) WriteString(s string) (int, error) {
	return res.Write([]byte(s))
}

// reset drops whatever a failed handler wrote.
func (res *Response) reset() {
	res.statusCode = 0
	res.header = http.Header{}
	if res.body != nil {
		mempool.Free(res.body)
		res.body = nil
	}
}

// flush encodes and sends the response.
func (res *Response) flush() error {
	res.WriteHeader(http.StatusOK)

	contentType := res.header.Get(contentTypeHeader)
	if contentType == "" {
		contentType = defaultContentType
	}

	data := mempool.Malloc(1024)[:0]
	data = httputils.AppendResponseHeader(data, res.statusCode, contentType, len(res.body))
	// reopen the field section for the remaining fields
	data = data[:len(data)-2]
	for k, vv := range res.header {
		if k == contentTypeHeader || k == contentLengthHeader {
			continue
		}
		for _, v := range vv {
			data = append(data, k...)
			data = append(data, ':', ' ')
			data = append(data, v...)
			data = append(data, '\r', '\n')
		}
	}
	if res.request.Close && len(res.header[connectionHeader]) == 0 {
		data = append(data, "Connection: close\r\n"...)
	}
	data = append(data, '\r', '\n')
	data = append(data, res.body...)

	_, err := res.conn.Write(data)
	mempool.Free(data)
	if res.body != nil {
		mempool.Free(res.body)
		res.body = nil
	}
	if err != nil {
		logging.Debug("devserver: write response failed: %v", err)
	}
	return err
}

// writeStatus sends a response carrying only status and its text.
func writeStatus(conn io.Writer, status int, closeConn bool) error {
	msg := httputils.StatusText(status)
	data := httputils.AppendResponseHeader(nil, status, defaultContentType, len(msg))
	if closeConn {
		data = data[:len(data)-2]
		data = append(data, "Connection: close\r\n\r\n"...)
	}
	data = append(data, msg...)
	_, err := conn.Write(data)
	return err
}
