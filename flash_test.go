package httputils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type recordSink struct {
	region    int
	data      []byte
	inits     int
	finalizes int
	failAt    uint32
	writes    []int
}

func (s *recordSink) Initialize(region int) error {
	s.inits++
	s.region = region
	s.data = s.data[:0]
	return nil
}

func (s *recordSink) Write(region int, offset uint32, data []byte) error {
	if region != s.region {
		return fmt.Errorf("write to region %d, initialized %d", region, s.region)
	}
	if offset != uint32(len(s.data)) {
		return fmt.Errorf("write at %d, %d bytes written", offset, len(s.data))
	}
	if s.failAt > 0 && offset+uint32(len(data)) > s.failAt {
		return errors.New("flash broken")
	}
	s.data = append(s.data, data...)
	s.writes = append(s.writes, len(data))
	return nil
}

func (s *recordSink) Finalize(region int) error {
	s.finalizes++
	return nil
}

func otaRequest(n int, mime string) (string, []byte) {
	image := make([]byte, n)
	for i := range image {
		image[i] = byte(i * 7)
	}
	header := fmt.Sprintf("POST /ota HTTP/1.1\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n", mime, n)
	return header, image
}

func TestOTASession(t *testing.T) {
	sink := &recordSink{}
	s, err := OpenOTASession(sink, 3)
	if err != nil {
		t.Fatalf("OpenOTASession failed: %v", err)
	}
	if !s.IsOpen() || s.Region() != 3 || sink.inits != 1 {
		t.Fatalf("invalid session")
	}
	if err = s.Write([]byte("abc")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err = s.Write([]byte("de")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if s.Written() != 5 || string(sink.data) != "abcde" {
		t.Fatalf("invalid image: %d, %q", s.Written(), sink.data)
	}
	if err = s.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	s.Finalize()
	if sink.finalizes != 1 {
		t.Fatalf("finalized %d times", sink.finalizes)
	}
	if err = s.Write([]byte("x")); err == nil {
		t.Fatalf("write after finalize succeeded")
	}
}

func TestReadBodyOTA(t *testing.T) {
	sink := &recordSink{}
	h, alloc := newDebugHeader(Options{Flash: sink, FlashRegion: 1, OTAReadQuota: 64})

	header, image := otaRequest(2500, "Application/OTA-Stream")
	src := newSegmentSource(header+string(image[:100]), string(image[100:]))

	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.OTA() == nil || len(sink.data) != 100 {
		t.Fatalf("extra data not written to flash: %d", len(sink.data))
	}
	res, err := h.ReadBody(src)
	if err != nil || res != EndOfBody {
		t.Fatalf("ReadBody returned %v, %v", res, err)
	}
	if !bytes.Equal(sink.data, image) {
		t.Fatalf("invalid flash image")
	}
	// the first write carries the bytes received with the header
	if len(sink.writes) < 2 || sink.writes[0] != 100 {
		t.Fatalf("invalid flash writes: %v", sink.writes)
	}
	for _, n := range sink.writes[1:] {
		if n > 64 {
			t.Fatalf("flash write of %d bytes over the 64 byte read quota", n)
		}
	}
	if h.OTA().IsOpen() || sink.finalizes != 1 || sink.region != 1 {
		t.Fatalf("session not finalized")
	}
	if h.Body() != nil {
		t.Fatalf("OTA body buffered")
	}

	h.Reset()
	if n := alloc.Outstanding(); n != 0 {
		t.Fatalf("%d buffers not freed", n)
	}
}

func TestReadBodyOTAPipelined(t *testing.T) {
	sink := &recordSink{}
	h := NewHeader(Options{Flash: sink})

	header, image := otaRequest(10, DefaultOTAMIMEType)
	src := newSegmentSource(header + string(image) + "GET /status HTTP/1.1\r\n\r\n")
	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if _, err := h.ReadBody(src); err != nil {
		t.Fatalf("ReadBody failed: %v", err)
	}
	if !bytes.Equal(sink.data, image) {
		t.Fatalf("invalid flash image: %q", sink.data)
	}
	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.URL.Path != "/status" {
		t.Fatalf("pipelined request lost: %q", h.URL.Path)
	}
}

func TestReadBodyOTAUnsupported(t *testing.T) {
	h := NewHeader(Options{})
	header, _ := otaRequest(10, DefaultOTAMIMEType)
	if err := h.ReadHeader(newSegmentSource(header)); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("ReadHeader returned %v, want ErrUnsupported", err)
	}
	if h.Len() != 0 {
		t.Fatalf("header not zeroed after failure")
	}

	sink := &recordSink{}
	h = NewHeader(Options{Flash: sink})
	data := "POST /ota HTTP/1.1\r\nContent-Type: " + DefaultOTAMIMEType + "\r\nTransfer-Encoding: chunked\r\n\r\n"
	if err := h.ReadHeader(newSegmentSource(data)); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("chunked OTA returned %v, want ErrUnsupported", err)
	}
	if sink.inits != 0 {
		t.Fatalf("flash initialized for unsupported body")
	}
}

func TestReadBodyOTAFlashFailure(t *testing.T) {
	sink := &recordSink{failAt: 1500}
	h := NewHeader(Options{Flash: sink})

	header, image := otaRequest(2000, DefaultOTAMIMEType)
	src := newSegmentSource(header, string(image))
	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	_, err := h.ReadBody(src)
	if err == nil || !strings.Contains(err.Error(), "flash broken") {
		t.Fatalf("ReadBody returned %v", err)
	}
	if sink.finalizes != 1 {
		t.Fatalf("session not finalized after failure: %d", sink.finalizes)
	}
	if h.Len() != 0 {
		t.Fatalf("header not zeroed after failure")
	}
}
