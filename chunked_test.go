package httputils

import (
	"errors"
	"testing"

	"github.com/lesismal/httputils/mempool"
)

func TestFindChunkSize(t *testing.T) {
	cases := []struct {
		data string
		size uint64
		off  int
		ok   bool
	}{
		{"4\r\nWiki\r\n", 4, 3, true},
		{"1A\r\n", 26, 4, true},
		{"ff;ext=1\r\n", 255, 10, true},
		{"10  \r\n", 16, 6, true},
		{"0\r\n\r\n", 0, 3, true},
		{"0000\r\n", 0, 6, true},
		{"0x10\r\n", 0, 6, true},
		{"4\r", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, c := range cases {
		size, off, ok, err := findChunkSize([]byte(c.data))
		if err != nil {
			t.Fatalf("findChunkSize(%q) failed: %v", c.data, err)
		}
		if size != c.size || off != c.off || ok != c.ok {
			t.Fatalf("findChunkSize(%q) = %d, %d, %v, want %d, %d, %v", c.data, size, off, ok, c.size, c.off, c.ok)
		}
	}

	for _, bad := range []string{"zz\r\n", "\r\n", "fffffffffffffffff\r\n"} {
		if _, _, _, err := findChunkSize([]byte(bad)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("findChunkSize(%q) returned %v, want ErrMalformed", bad, err)
		}
	}
}

func TestFindTrailerEnd(t *testing.T) {
	cases := []struct {
		data string
		end  int
		ok   bool
	}{
		{"\r\n", 2, true},
		{"\r\nnext", 2, true},
		{"Md5: x\r\n\r\n", 10, true},
		{"Md5: x\r\nSize: 4\r\n\r\nGET", 19, true},
		{"Md5: x\r\n", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		end, ok := findTrailerEnd([]byte(c.data))
		if end != c.end || ok != c.ok {
			t.Fatalf("findTrailerEnd(%q) = %d, %v, want %d, %v", c.data, end, ok, c.end, c.ok)
		}
	}
}

func TestChunkBuffer(t *testing.T) {
	alloc := mempool.NewSTD()
	alloc.SetDebug(true)
	b := chunkBuffer{alloc: alloc}

	b.init(4, []byte("abcdef"))
	if string(b.bytes()) != "abcdef" || !b.full() {
		t.Fatalf("invalid init: %q", b.bytes())
	}

	b.grow(32)
	if len(b.buf) < 32 || string(b.bytes()) != "abcdef" {
		t.Fatalf("grow lost data: %d, %q", len(b.buf), b.bytes())
	}
	if b.full() {
		t.Fatalf("buffer full after grow")
	}

	b.compact(2)
	if string(b.bytes()) != "cdef" {
		t.Fatalf("invalid compact: %q", b.bytes())
	}
	b.compact(100)
	if b.n != 0 {
		t.Fatalf("invalid compact: %d", b.n)
	}

	b.free()
	if b.buf != nil || alloc.Outstanding() != 0 {
		t.Fatalf("buffer not freed: %s", alloc.String())
	}
}
