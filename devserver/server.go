// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package devserver is a small blocking HTTP/1.x server for devices: every
// connection is read through an httputils.Header, OTA bodies go straight to
// flash, and requests are routed with httprouter.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/julienschmidt/httprouter"
	"github.com/lesismal/httputils"
	"github.com/lesismal/httputils/flash"
	"github.com/lesismal/httputils/logging"
	"github.com/lesismal/httputils/taskpool"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("devserver: server closed")

// Config .
type Config struct {
	// Addr is the listening address for ListenAndServe, ":8080" by default.
	Addr string

	// Header configures the header record of every connection. A Flash sink
	// is shared by all connections, one OTA session at a time.
	Header httputils.Options

	// MaxConns limits concurrent connections, 0 means no limit. Connections
	// over the limit get a 503 and are closed.
	MaxConns int
}

// Server .
type Server struct {
	Config

	router *httprouter.Router
	pool   *taskpool.TaskPool

	mux      sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
}

// New creates a Server.
func New(conf Config) *Server {
	if conf.Addr == "" {
		conf.Addr = ":8080"
	}
	if conf.Header.MaxBodySize <= 0 {
		conf.Header.MaxBodySize = httputils.DefaultMaxBodySize
	}
	if conf.Header.Flash != nil {
		if _, ok := conf.Header.Flash.(*flash.Exclusive); !ok {
			conf.Header.Flash = flash.NewExclusive(conf.Header.Flash)
		}
	}
	return &Server{
		Config: conf,
		router: httprouter.New(),
		pool:   taskpool.New(conf.MaxConns),
		conns:  map[net.Conn]struct{}{},
	}
}

// Router returns the router requests are dispatched with.
func (s *Server) Router() *httprouter.Router {
	return s.router
}

// Handle registers handle for method and path.
func (s *Server) Handle(method, path string, handle httprouter.Handle) {
	s.router.Handle(method, path, handle)
}

// HandlerFunc registers a net/http handler for method and path.
func (s *Server) HandlerFunc(method, path string, handler http.HandlerFunc) {
	s.router.HandlerFunc(method, path, handler)
}

// ListenAndServe listens on Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and serves each on its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mux.Unlock()

	logging.Info("devserver: serving on %v", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				logging.Warn("devserver: accept failed: %v", err)
				continue
			}
			return err
		}

		err = s.pool.Go(func() {
			s.ServeConn(conn)
		})
		if err != nil {
			logging.Warn("devserver: rejecting %v: %v", conn.RemoteAddr(), err)
			writeStatus(conn, http.StatusServiceUnavailable, true)
			conn.Close()
		}
	}
}

// ServeConn serves the requests of conn until it fails, asks to close or
// Shutdown is called, then closes it.
func (s *Server) ServeConn(conn net.Conn) {
	if !s.track(conn, true) {
		conn.Close()
		return
	}
	defer s.track(conn, false)
	defer conn.Close()

	h := httputils.NewHeader(s.Header)
	defer h.Reset()
	src := httputils.NewConnSource(conn)

	for {
		if err := h.ReadHeader(src); err != nil {
			s.fail(conn, err)
			return
		}
		if !h.IsRequest() {
			s.fail(conn, errNotRequest)
			return
		}
		logging.Debug("devserver: %s %s", h.Method(), h.RequestURL())

		body, err := readBody(h, src, s.Header.MaxBodySize)
		if err != nil {
			s.fail(conn, err)
			return
		}
		req, err := newRequest(context.Background(), h, body, conn)
		if err != nil {
			body.Close()
			s.fail(conn, err)
			return
		}

		res := newResponse(conn, req)
		s.dispatch(res, req)
		err = res.flush()
		body.Close()
		if err != nil || req.Close || s.isClosed() {
			return
		}
	}
}

var errNotRequest = fmt.Errorf("not a request: %w", httputils.ErrMalformed)

func (s *Server) dispatch(res *Response, req *http.Request) {
	handle, params, _ := s.router.Lookup(req.Method, req.URL.Path)
	if handle == nil {
		http.Error(res, "404 page not found", http.StatusNotFound)
		return
	}

	done := false
	taskpool.Call(func() {
		handle(res, req, params)
		done = true
	})
	if !done {
		res.reset()
		http.Error(res, httputils.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// fail answers a request that could not be read, unless the connection
// itself is gone.
func (s *Server) fail(conn net.Conn, err error) {
	var status int
	switch {
	case errors.Is(err, httputils.ErrConnection):
		logging.Debug("devserver: %v: %v", conn.RemoteAddr(), err)
		return
	case errors.Is(err, httputils.ErrMalformed):
		status = http.StatusBadRequest
	case errors.Is(err, httputils.ErrNoMemory):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, httputils.ErrUnsupported):
		status = http.StatusForbidden
	case errors.Is(err, flash.ErrBusy):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	logging.Error("devserver: %v: %v", conn.RemoteAddr(), err)
	writeStatus(conn, status, true)
}

func (s *Server) track(conn net.Conn, add bool) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	if add {
		if s.closed {
			return false
		}
		s.conns[conn] = struct{}{}
		return true
	}
	delete(s.conns, conn)
	return true
}

func (s *Server) isClosed() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.closed
}

// Shutdown stops accepting, closes every connection and waits until their
// goroutines returned or ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mux.Lock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mux.Unlock()
	s.pool.Stop()

	done := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(done)
	}()
	select {
	case <-done:
		logging.Info("devserver: shutdown")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
