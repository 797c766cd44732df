// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lesismal/httputils/logging"
)

// FlashSink is the flash storage an OTA body is streamed to.
//
// Write stores data at offset inside region; the caller advances the
// offset between calls. Flash is a process-wide resource: at most one
// session may be open at a time and keeping it that way is up to the
// caller or the sink.
type FlashSink interface {
	Initialize(region int) error
	Write(region int, offset uint32, data []byte) error
	Finalize(region int) error
}

var errSessionClosed = errors.New("ota session closed")

// OTASession is one firmware image being written to a flash region:
// open, write*, finalize.
type OTASession struct {
	ID uuid.UUID

	sink   FlashSink
	region int
	offset uint32
	open   bool
}

// OpenOTASession initializes region and returns a session writing from
// its start.
func OpenOTASession(sink FlashSink, region int) (*OTASession, error) {
	if err := sink.Initialize(region); err != nil {
		return nil, fmt.Errorf("flash initialize region %d: %w", region, err)
	}
	s := &OTASession{
		ID:     uuid.New(),
		sink:   sink,
		region: region,
		open:   true,
	}
	logging.Info("OTA session %v: receiving data into region %d", s.ID, region)
	return s, nil
}

// Write appends p to the image.
func (s *OTASession) Write(p []byte) error {
	if !s.open {
		return errSessionClosed
	}
	if len(p) == 0 {
		return nil
	}
	if err := s.sink.Write(s.region, s.offset, p); err != nil {
		return fmt.Errorf("flash write at %d: %w", s.offset, err)
	}
	s.offset += uint32(len(p))
	return nil
}

// Finalize closes the session. Calling it again is a no-op.
func (s *OTASession) Finalize() error {
	if !s.open {
		return nil
	}
	s.open = false
	logging.Info("OTA session %v: %d bytes written", s.ID, s.offset)
	return s.sink.Finalize(s.region)
}

// Written returns the number of bytes written so far.
func (s *OTASession) Written() uint32 {
	return s.offset
}

// Region returns the flash region of the session.
func (s *OTASession) Region() int {
	return s.region
}

// IsOpen reports whether Finalize has not been called yet.
func (s *OTASession) IsOpen() bool {
	return s.open
}
