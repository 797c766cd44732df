// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package devserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/lesismal/httputils"
)

type otaKey struct{}

// OTASession returns the flash session that received the body of r, nil if
// the body was not an OTA image. The session is finalized before the
// handler runs.
func OTASession(r *http.Request) *httputils.OTASession {
	s, _ := r.Context().Value(otaKey{}).(*httputils.OTASession)
	return s
}

// newRequest converts the parsed header and its collected body. Everything
// is copied out of the header buffer, so the request outlives the next
// ReadHeader.
func newRequest(ctx context.Context, h *httputils.Header, body *BodyReader, conn net.Conn) (*http.Request, error) {
	proto := string(h.Protocol())
	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok {
		return nil, fmt.Errorf("invalid protocol %q: %w", proto, httputils.ErrMalformed)
	}

	path, err := url.PathUnescape(h.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %v: %w", h.URL.Path, err, httputils.ErrMalformed)
	}
	u := &url.URL{
		Scheme:   h.URL.Scheme,
		Host:     h.URL.Host,
		Path:     path,
		RawQuery: h.URL.Query,
	}
	if path != h.URL.Path {
		u.RawPath = h.URL.Path
	}
	if h.URL.Port != "" {
		u.Host = net.JoinHostPort(h.URL.Host, h.URL.Port)
	}

	header := http.Header{}
	h.VisitFields(func(name, value []byte) bool {
		header.Add(string(name), unfold(value))
		return true
	})

	host := header.Get("Host")
	if host == "" {
		host = u.Host
	}

	if s := h.OTA(); s != nil {
		ctx = context.WithValue(ctx, otaKey{}, s)
	}

	req := &http.Request{
		Method:        string(h.Method()),
		URL:           u,
		Proto:         proto,
		ProtoMajor:    major,
		ProtoMinor:    minor,
		Header:        header,
		Body:          body,
		ContentLength: int64(body.Len()),
		Host:          host,
		Close:         !h.Persistent,
		RequestURI:    string(h.RequestURL()),
	}
	if h.Chunked {
		req.TransferEncoding = []string{"chunked"}
	}
	if conn != nil {
		req.RemoteAddr = conn.RemoteAddr().String()
	}
	return req.WithContext(ctx), nil
}

// unfold joins continuation lines and trims trailing blanks.
func unfold(value []byte) string {
	s := string(value)
	if strings.IndexByte(s, '\n') >= 0 {
		s = strings.NewReplacer("\r\n", "", "\n", "").Replace(s)
	}
	return strings.TrimRight(s, " \t")
}
