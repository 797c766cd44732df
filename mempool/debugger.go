package mempool

import (
	"encoding/json"
	"sync/atomic"
)

// debugger counts Malloc and Free calls when switched on.
// Realloc is neutral: the old buffer is released and the new one takes its place.
type debugger struct {
	on          int32
	MallocCount int64
	FreeCount   int64
	NeedFree    int64
}

func (d *debugger) SetDebug(dbg bool) {
	var v int32
	if dbg {
		v = 1
	}
	atomic.StoreInt32(&d.on, v)
}

func (d *debugger) enabled() bool {
	return atomic.LoadInt32(&d.on) == 1
}

func (d *debugger) incrMalloc(b []byte) {
	if d.enabled() {
		atomic.AddInt64(&d.MallocCount, 1)
		atomic.AddInt64(&d.NeedFree, 1)
	}
}

func (d *debugger) incrFree(b []byte) {
	if d.enabled() {
		atomic.AddInt64(&d.FreeCount, 1)
		atomic.AddInt64(&d.NeedFree, -1)
	}
}

// Outstanding returns the number of buffers not yet freed.
func (d *debugger) Outstanding() int64 {
	return atomic.LoadInt64(&d.NeedFree)
}

func (d *debugger) String() string {
	if d.enabled() {
		b, err := json.Marshal(struct {
			MallocCount int64
			FreeCount   int64
			NeedFree    int64
		}{
			atomic.LoadInt64(&d.MallocCount),
			atomic.LoadInt64(&d.FreeCount),
			atomic.LoadInt64(&d.NeedFree),
		})
		if err == nil {
			return string(b)
		}
	}
	return ""
}
