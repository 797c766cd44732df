// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"net/http"

	"github.com/valyala/fasthttp"
)

const (
	protocolHTTP11 = "HTTP/1.1"
	okMessage      = "HTTP/1.1 200 OK\r\n\r\n"
)

// StatusText returns the reason phrase sent with status. Codes without a
// known phrase are sent as "OK".
func StatusText(status int) string {
	switch status {
	case http.StatusOK:
		return "OK"
	case http.StatusBadRequest:
		return "Bad Request"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusInternalServerError:
		return "Internal Server Error"
	}
	if s := http.StatusText(status); s != "" {
		return s
	}
	return "OK"
}

// AppendOKMessage appends a bare "200 OK" response without fields.
func AppendOKMessage(dst []byte) []byte {
	return append(dst, okMessage...)
}

// AppendResponseHeader appends the status line and the Content-Type and
// Content-Length fields of a response with an n byte body.
func AppendResponseHeader(dst []byte, status int, contentType string, n int) []byte {
	dst = append(dst, protocolHTTP11...)
	dst = append(dst, ' ')
	dst = fasthttp.AppendUint(dst, status)
	dst = append(dst, ' ')
	dst = append(dst, StatusText(status)...)
	dst = append(dst, "\r\nContent-Type: "...)
	dst = append(dst, contentType...)
	dst = append(dst, "\r\nContent-Length: "...)
	dst = fasthttp.AppendUint(dst, n)
	dst = append(dst, "\r\n\r\n"...)
	return dst
}

// AppendMessageNoCopy appends the header of a 200 response whose n byte
// body the caller sends separately.
func AppendMessageNoCopy(dst []byte, contentType string, n int) []byte {
	return AppendResponseHeader(dst, http.StatusOK, contentType, n)
}

// AppendMessage appends a complete 200 response carrying body.
func AppendMessage(dst []byte, contentType string, body []byte) []byte {
	dst = AppendResponseHeader(dst, http.StatusOK, contentType, len(body))
	return append(dst, body...)
}

// AppendRequest appends a complete request. Host is omitted when empty, and
// Content-Type and Content-Length when there is neither a body nor a type.
func AppendRequest(dst []byte, method, url, host, contentType string, body []byte) []byte {
	dst = append(dst, method...)
	dst = append(dst, ' ')
	dst = append(dst, url...)
	dst = append(dst, ' ')
	dst = append(dst, protocolHTTP11...)
	dst = append(dst, "\r\n"...)
	if host != "" {
		dst = append(dst, "Host: "...)
		dst = append(dst, host...)
		dst = append(dst, "\r\n"...)
	}
	if contentType != "" || len(body) > 0 {
		dst = append(dst, "Content-Type: "...)
		dst = append(dst, contentType...)
		dst = append(dst, "\r\nContent-Length: "...)
		dst = fasthttp.AppendUint(dst, len(body))
		dst = append(dst, "\r\n"...)
	}
	dst = append(dst, "\r\n"...)
	return append(dst, body...)
}
