package httputils

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/lesismal/httputils/mempool"
)

// segmentSource returns each segment through as many reads as needed and
// io.EOF, or err if set, once all of them are consumed.
type segmentSource struct {
	segments [][]byte
	reads    int
	err      error
}

func newSegmentSource(segments ...string) *segmentSource {
	s := &segmentSource{}
	for _, seg := range segments {
		s.segments = append(s.segments, []byte(seg))
	}
	return s
}

func (s *segmentSource) WaitReadable(timeout time.Duration) error {
	return nil
}

func (s *segmentSource) Read(p []byte) (int, error) {
	if len(s.segments) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	s.reads++
	n := copy(p, s.segments[0])
	s.segments[0] = s.segments[0][n:]
	if len(s.segments[0]) == 0 {
		s.segments = s.segments[1:]
	}
	return n, nil
}

func newDebugHeader(opts Options) (*Header, mempool.DebugAllocator) {
	alloc := mempool.NewSTD()
	alloc.SetDebug(true)
	opts.Allocator = alloc
	return NewHeader(opts), alloc
}

func readAllChunks(t *testing.T, h *Header, src ByteSource) ([]string, []byte) {
	var chunks []string
	var body []byte
	for i := 0; ; i++ {
		if i > 100 {
			t.Fatalf("body never ended")
		}
		res, err := h.ReadBody(src)
		if err != nil {
			t.Fatalf("ReadBody failed: %v", err)
		}
		if res == EndOfBody {
			return chunks, body
		}
		chunks = append(chunks, string(h.Body()))
		body = append(body, h.Body()...)
	}
}

func TestReadBodyContentLength(t *testing.T) {
	h, alloc := newDebugHeader(Options{})
	src := newSegmentSource("POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nabc", "de")

	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.Received() != 3 {
		t.Fatalf("invalid extra data length: %d", h.Received())
	}
	if src.reads != 1 {
		t.Fatalf("ReadHeader read the body: %d reads", src.reads)
	}
	if string(h.Body()) != "abc" {
		t.Fatalf("incomplete body exposes unread bytes: %q", h.Body())
	}

	res, err := h.ReadBody(src)
	if err != nil || res != EndOfBody {
		t.Fatalf("ReadBody returned %v, %v", res, err)
	}
	if string(h.Body()) != "abcde" {
		t.Fatalf("invalid body: %q", h.Body())
	}
	if h.Received() != 5 {
		t.Fatalf("invalid received length: %d", h.Received())
	}

	h.Reset()
	if n := alloc.Outstanding(); n != 0 {
		t.Fatalf("%d buffers not freed", n)
	}
}

func TestReadBodyConnectionClosed(t *testing.T) {
	h, alloc := newDebugHeader(Options{})
	src := newSegmentSource("POST /echo HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc")

	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	_, err := h.ReadBody(src)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("ReadBody returned %v, want ErrConnection", err)
	}
	if h.Len() != 0 {
		t.Fatalf("header not zeroed after failure")
	}
	if n := alloc.Outstanding(); n != 0 {
		t.Fatalf("%d buffers not freed", n)
	}
}

func TestReadBodyNoHeader(t *testing.T) {
	h := NewHeader(Options{})
	if _, err := h.ReadBody(newSegmentSource()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("ReadBody without header returned %v", err)
	}
}

func TestReadBodyTooLarge(t *testing.T) {
	h, alloc := newDebugHeader(Options{MaxBodySize: 16})
	err := h.ReadHeader(newSegmentSource("POST / HTTP/1.1\r\nContent-Length: 17\r\n\r\n"))
	if !errors.Is(err, ErrNoMemory) {
		t.Fatalf("ReadHeader returned %v, want ErrNoMemory", err)
	}
	if n := alloc.Outstanding(); n != 0 {
		t.Fatalf("%d buffers not freed", n)
	}
}

func TestReadBodyChunked(t *testing.T) {
	h, alloc := newDebugHeader(Options{})
	src := newSegmentSource("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")

	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	chunks, body := readAllChunks(t, h, src)
	if len(chunks) != 2 || chunks[0] != "Wiki" || chunks[1] != "pedia" {
		t.Fatalf("invalid chunks: %q", chunks)
	}
	if string(body) != "Wikipedia" {
		t.Fatalf("invalid body: %q", body)
	}

	// the body stays ended
	res, err := h.ReadBody(src)
	if err != nil || res != EndOfBody || h.Body() != nil {
		t.Fatalf("ReadBody after end returned %v, %v", res, err)
	}

	h.Reset()
	if n := alloc.Outstanding(); n != 0 {
		t.Fatalf("%d buffers not freed", n)
	}
}

func TestReadBodyChunkedSplit(t *testing.T) {
	h, _ := newDebugHeader(Options{})
	src := newSegmentSource(
		"POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n",
		"1", "a\r\n0123456789", "\r",
		"\n3;name=value\r\nabc\r\n",
		"0\r\nMd5: 841a2d689ad86bd1611447453c22c6fc\r\n",
		"Size: 13\r\n", "\r\n",
	)

	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	chunks, body := readAllChunks(t, h, src)
	if len(chunks) != 2 || chunks[0] != "0123456789" || chunks[1] != "abc" {
		t.Fatalf("invalid chunks: %q", chunks)
	}
	if string(body) != "0123456789abc" {
		t.Fatalf("invalid body: %q", body)
	}
	if len(src.segments) != 0 {
		t.Fatalf("trailer not consumed")
	}
}

func TestReadBodyChunkedGrow(t *testing.T) {
	h, alloc := newDebugHeader(Options{ChunkBufferMin: 16, ChunkGrowMargin: 8})

	data := make([]byte, 100)
	for i := range data {
		data[i] = 'a' + byte(i%26)
	}
	src := newSegmentSource(
		"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n64\r\n"+string(data[:10]),
		string(data[10:])+"\r\n0\r\n\r\n",
	)

	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if len(h.chunks.buf) != 16 {
		t.Fatalf("invalid initial chunk buffer: %d", len(h.chunks.buf))
	}

	res, err := h.ReadBody(src)
	if err != nil || res != MoreData {
		t.Fatalf("ReadBody returned %v, %v", res, err)
	}
	if len(h.chunks.buf) < 106 {
		t.Fatalf("chunk buffer not grown: %d", len(h.chunks.buf))
	}
	if !bytes.Equal(h.Body(), data) {
		t.Fatalf("invalid chunk after grow: %q", h.Body())
	}

	res, err = h.ReadBody(src)
	if err != nil || res != EndOfBody {
		t.Fatalf("ReadBody returned %v, %v", res, err)
	}

	h.Reset()
	if n := alloc.Outstanding(); n != 0 {
		t.Fatalf("%d buffers not freed", n)
	}
}

func TestReadBodyChunkedMalformed(t *testing.T) {
	cases := []string{
		"4\r\nWikiXX\r\n0\r\n\r\n",
		"zz\r\nWiki\r\n0\r\n\r\n",
	}
	for _, c := range cases {
		h, alloc := newDebugHeader(Options{})
		src := newSegmentSource("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" + c)
		if err := h.ReadHeader(src); err != nil {
			t.Fatalf("ReadHeader failed: %v", err)
		}
		_, err := h.ReadBody(src)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: ReadBody returned %v, want ErrMalformed", c, err)
		}
		if h.Len() != 0 {
			t.Fatalf("header not zeroed after failure")
		}
		if n := alloc.Outstanding(); n != 0 {
			t.Fatalf("%d buffers not freed", n)
		}
	}
}

func TestReadBodyChunkLineTooLong(t *testing.T) {
	h, _ := newDebugHeader(Options{ChunkBufferMin: 8})
	src := newSegmentSource("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n", "4;a-very-long-extension")
	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if _, err := h.ReadBody(src); !errors.Is(err, ErrMalformed) {
		t.Fatalf("ReadBody returned %v, want ErrMalformed", err)
	}
}

func TestReadBodyTerminalChunk(t *testing.T) {
	// a size line starting with '0' ends the body whatever follows it
	h, _ := newDebugHeader(Options{})
	src := newSegmentSource("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n0a\r\n\r\n")
	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	chunks, _ := readAllChunks(t, h, src)
	if len(chunks) != 0 {
		t.Fatalf("invalid chunks: %q", chunks)
	}
}

func TestReadBodyUntilClose(t *testing.T) {
	h, alloc := newDebugHeader(Options{})
	src := newSegmentSource("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\nhello", " world")

	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if !h.DataEndedByClose {
		t.Fatalf("body not delimited by close")
	}

	res, err := h.ReadBody(src)
	if err != nil || res != MoreData {
		t.Fatalf("ReadBody returned %v, %v", res, err)
	}
	if h.ContentLength != 5 || string(h.Body()) != "hello" {
		t.Fatalf("first call did not adopt extra data: %d, %q", h.ContentLength, h.Body())
	}

	res, err = h.ReadBody(src)
	if err != nil || res != MoreData || string(h.Body()) != " world" {
		t.Fatalf("ReadBody returned %v, %v, %q", res, err, h.Body())
	}

	res, err = h.ReadBody(src)
	if err != nil || res != EndOfBody {
		t.Fatalf("closed connection returned %v, %v", res, err)
	}
	if len(h.Body()) != 0 {
		t.Fatalf("body after close: %q", h.Body())
	}

	h.Reset()
	if n := alloc.Outstanding(); n != 0 {
		t.Fatalf("%d buffers not freed", n)
	}
}

func TestReadBodyUntilCloseReadError(t *testing.T) {
	h, alloc := newDebugHeader(Options{})
	src := newSegmentSource("HTTP/1.1 200 OK\r\n\r\nhello")
	src.err = errors.New("i/o timeout")

	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if res, err := h.ReadBody(src); err != nil || res != MoreData {
		t.Fatalf("ReadBody returned %v, %v", res, err)
	}
	if _, err := h.ReadBody(src); !errors.Is(err, ErrConnection) {
		t.Fatalf("ReadBody returned %v, want ErrConnection", err)
	}
	if n := alloc.Outstanding(); n != 0 {
		t.Fatalf("%d buffers not freed", n)
	}
}

func TestReadHeaderTooLarge(t *testing.T) {
	h := NewHeader(Options{HeaderBufferSize: 32})
	src := newSegmentSource("GET / HTTP/1.1\r\nUser-Agent: a-very-long-user-agent\r\n\r\n")
	if err := h.ReadHeader(src); !errors.Is(err, ErrMalformed) {
		t.Fatalf("ReadHeader returned %v, want ErrMalformed", err)
	}
	if h.Len() != 0 || len(h.Buffered()) != 0 {
		t.Fatalf("header not zeroed after failure")
	}
}

func TestReadHeaderClosed(t *testing.T) {
	h := NewHeader(Options{})
	if err := h.ReadHeader(newSegmentSource("GET / HT")); !errors.Is(err, ErrConnection) {
		t.Fatalf("ReadHeader returned %v, want ErrConnection", err)
	}
}

func TestReadBodyInterleaved(t *testing.T) {
	h, _ := newDebugHeader(Options{})
	src := newSegmentSource("$\x02\x00\x04da", "ta")
	if err := h.ReadHeader(src); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.ChannelID != 2 || h.ContentLength != 4 {
		t.Fatalf("invalid interleaved frame: %v", h)
	}
	res, err := h.ReadBody(src)
	if err != nil || res != EndOfBody || string(h.Body()) != "data" {
		t.Fatalf("ReadBody returned %v, %v, %q", res, err, h.Body())
	}
}
