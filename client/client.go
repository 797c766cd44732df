// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package client sends HTTP/1.1 requests over a single connection and reads
// the responses through an httputils.Header.
package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/lesismal/httputils"
	"github.com/lesismal/httputils/logging"
	"github.com/lesismal/httputils/mempool"
)

// ErrClosed is returned by Do once the connection is closed.
var ErrClosed = fmt.Errorf("client closed: %w", httputils.ErrConnection)

// Config .
type Config struct {
	// Header configures the response header record. With a Flash sink,
	// responses carrying the OTA MIME type are written to flash.
	Header httputils.Options

	// Host is sent as the Host field, the dialed address if empty.
	Host string

	// DialTimeout bounds Dial, 0 means no limit.
	DialTimeout time.Duration
}

// Response .
type Response struct {
	StatusCode int
	Status     string
	Proto      string
	Header     http.Header
	// Body is the decoded body, nil for an OTA image.
	Body []byte
	// OTA is the finalized flash session of an OTA image.
	OTA *httputils.OTASession
	// Close reports that the server ends the connection after this response.
	Close bool
}

// Client .
type Client struct {
	Config

	conn   net.Conn
	h      *httputils.Header
	src    httputils.ByteSource
	closed bool
}

// Dial connects to addr.
func Dial(addr string, conf Config) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, conf.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %v: %w", addr, err, httputils.ErrConnection)
	}
	if conf.Host == "" {
		conf.Host = addr
	}
	return NewClient(conn, conf), nil
}

// NewClient uses an established connection.
func NewClient(conn net.Conn, conf Config) *Client {
	return &Client{
		Config: conf,
		conn:   conn,
		h:      httputils.NewHeader(conf.Header),
		src:    httputils.NewConnSource(conn),
	}
}

// Do sends one request and reads its response.
func (c *Client) Do(method, url, contentType string, body []byte) (*Response, error) {
	if c.closed {
		return nil, ErrClosed
	}

	data := mempool.Malloc(len(body) + 256)[:0]
	data = httputils.AppendRequest(data, method, url, c.Host, contentType, body)
	_, err := c.conn.Write(data)
	mempool.Free(data)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("write request: %v: %w", err, httputils.ErrConnection)
	}

	res, err := c.readResponse()
	if err != nil {
		c.Close()
		return nil, err
	}
	if res.Close {
		c.Close()
	}
	return res, nil
}

func (c *Client) readResponse() (*Response, error) {
	h := c.h
	defer h.Reset()

	if err := h.ReadHeader(c.src); err != nil {
		return nil, err
	}
	if !h.IsResponse() {
		return nil, fmt.Errorf("not a response: %w", httputils.ErrMalformed)
	}

	res := &Response{
		StatusCode: h.StatusCode,
		Status:     string(h.ReasonPhrase()),
		Proto:      string(h.Protocol()),
		Header:     http.Header{},
		Close:      !h.Persistent || h.DataEndedByClose,
	}
	h.VisitFields(func(name, value []byte) bool {
		res.Header.Add(string(name), strings.TrimRight(string(value), " \t"))
		return true
	})

	var body []byte
	for {
		result, err := h.ReadBody(c.src)
		if err != nil {
			return nil, err
		}
		body = append(body, h.Body()...)
		if result == httputils.EndOfBody {
			break
		}
	}
	res.OTA = h.OTA()
	if res.OTA != nil {
		return res, nil
	}

	body, err := decodeBody(res.Header.Get("Content-Encoding"), body)
	if err != nil {
		return nil, err
	}
	res.Body = body
	logging.Debug("client: %d %s, %d body bytes", res.StatusCode, res.Status, len(res.Body))
	return res, nil
}

func decodeBody(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "br":
		decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli body: %v: %w", err, httputils.ErrMalformed)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("content encoding %q: %w", encoding, httputils.ErrUnsupported)
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
