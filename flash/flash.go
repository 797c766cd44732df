// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package flash provides flash sinks an OTA body can be streamed to: a file
// holding fixed size regions, an in-memory image, and a wrapper that admits
// one session at a time.
package flash

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/lesismal/httputils/logging"
)

var (
	// ErrBusy is returned by Initialize while another session is open.
	ErrBusy = errors.New("flash busy")
	// ErrOutOfRange is returned for writes past the end of a region.
	ErrOutOfRange = errors.New("write out of region")
	// ErrInvalidRegion is returned for a region index the sink does not have.
	ErrInvalidRegion = errors.New("invalid region")
)

// FileSink keeps Regions regions of RegionSize bytes each in one file,
// region i starting at offset i*RegionSize.
type FileSink struct {
	Path       string
	RegionSize int64
	Regions    int

	mux  sync.Mutex
	file *os.File
}

// NewFileSink .
func NewFileSink(path string, regionSize int64, regions int) *FileSink {
	return &FileSink{Path: path, RegionSize: regionSize, Regions: regions}
}

// Initialize opens the image file and erases region.
func (s *FileSink) Initialize(region int) error {
	if region < 0 || region >= s.Regions {
		return fmt.Errorf("region %d of %d: %w", region, s.Regions, ErrInvalidRegion)
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	if s.file == nil {
		f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		s.file = f
	}

	// erased flash reads as 0xFF
	erased := make([]byte, 4096)
	for i := range erased {
		erased[i] = 0xFF
	}
	base := int64(region) * s.RegionSize
	for off := int64(0); off < s.RegionSize; off += int64(len(erased)) {
		n := int64(len(erased))
		if off+n > s.RegionSize {
			n = s.RegionSize - off
		}
		if _, err := s.file.WriteAt(erased[:n], base+off); err != nil {
			return err
		}
	}
	logging.Debug("flash: region %d erased in %s", region, s.Path)
	return nil
}

// Write .
func (s *FileSink) Write(region int, offset uint32, data []byte) error {
	if region < 0 || region >= s.Regions {
		return fmt.Errorf("region %d of %d: %w", region, s.Regions, ErrInvalidRegion)
	}
	if int64(offset)+int64(len(data)) > s.RegionSize {
		return fmt.Errorf("%d bytes at %d, region size %d: %w", len(data), offset, s.RegionSize, ErrOutOfRange)
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	if s.file == nil {
		return fmt.Errorf("region %d not initialized", region)
	}
	_, err := s.file.WriteAt(data, int64(region)*s.RegionSize+int64(offset))
	return err
}

// Finalize flushes the image to disk.
func (s *FileSink) Finalize(region int) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

// ReadRegion returns the content of region.
func (s *FileSink) ReadRegion(region int) ([]byte, error) {
	if region < 0 || region >= s.Regions {
		return nil, fmt.Errorf("region %d of %d: %w", region, s.Regions, ErrInvalidRegion)
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.file == nil {
		return nil, fmt.Errorf("region %d not initialized", region)
	}
	buf := make([]byte, s.RegionSize)
	_, err := s.file.ReadAt(buf, int64(region)*s.RegionSize)
	return buf, err
}

// Close closes the image file.
func (s *FileSink) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// MemSink keeps region images in memory.
type MemSink struct {
	RegionSize int

	mux       sync.Mutex
	regions   map[int][]byte
	finalized map[int]bool
}

// NewMemSink .
func NewMemSink(regionSize int) *MemSink {
	return &MemSink{
		RegionSize: regionSize,
		regions:    map[int][]byte{},
		finalized:  map[int]bool{},
	}
}

// Initialize .
func (s *MemSink) Initialize(region int) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.regions[region] = s.regions[region][:0]
	s.finalized[region] = false
	return nil
}

// Write .
func (s *MemSink) Write(region int, offset uint32, data []byte) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	buf, ok := s.regions[region]
	if !ok {
		return fmt.Errorf("region %d not initialized", region)
	}
	end := int(offset) + len(data)
	if s.RegionSize > 0 && end > s.RegionSize {
		return fmt.Errorf("%d bytes at %d, region size %d: %w", len(data), offset, s.RegionSize, ErrOutOfRange)
	}
	if end > len(buf) {
		buf = append(buf, make([]byte, end-len(buf))...)
	}
	copy(buf[offset:], data)
	s.regions[region] = buf
	return nil
}

// Finalize .
func (s *MemSink) Finalize(region int) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.finalized[region] = true
	return nil
}

// Image returns a copy of the bytes written to region and whether the
// region was finalized.
func (s *MemSink) Image(region int) ([]byte, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]byte(nil), s.regions[region]...), s.finalized[region]
}

// Sink is the flash interface Exclusive wraps.
type Sink interface {
	Initialize(region int) error
	Write(region int, offset uint32, data []byte) error
	Finalize(region int) error
}

// Exclusive admits one session at a time to a shared sink: Initialize
// fails with ErrBusy until the open session is finalized.
type Exclusive struct {
	Sink Sink

	mux    sync.Mutex
	active bool
}

// NewExclusive .
func NewExclusive(sink Sink) *Exclusive {
	return &Exclusive{Sink: sink}
}

// Initialize .
func (e *Exclusive) Initialize(region int) error {
	e.mux.Lock()
	if e.active {
		e.mux.Unlock()
		return ErrBusy
	}
	e.active = true
	e.mux.Unlock()

	if err := e.Sink.Initialize(region); err != nil {
		e.release()
		return err
	}
	return nil
}

// Write .
func (e *Exclusive) Write(region int, offset uint32, data []byte) error {
	return e.Sink.Write(region, offset, data)
}

// Finalize .
func (e *Exclusive) Finalize(region int) error {
	defer e.release()
	return e.Sink.Finalize(region)
}

// Busy reports whether a session is open.
func (e *Exclusive) Busy() bool {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.active
}

func (e *Exclusive) release() {
	e.mux.Lock()
	e.active = false
	e.mux.Unlock()
}
