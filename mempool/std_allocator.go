package mempool

// stdAllocator .
type stdAllocator struct {
	*debugger
}

// Malloc .
func (a *stdAllocator) Malloc(size int) []byte {
	ret := make([]byte, size)
	a.incrMalloc(ret)
	return ret
}

// Realloc .
func (a *stdAllocator) Realloc(buf []byte, size int) []byte {
	if size <= cap(buf) {
		return buf[:size]
	}
	newBuf := make([]byte, size)
	copy(newBuf, buf)
	return newBuf
}

// Append .
func (a *stdAllocator) Append(buf []byte, more ...byte) []byte {
	return append(buf, more...)
}

// Free .
func (a *stdAllocator) Free(buf []byte) {
	if buf == nil {
		return
	}
	a.incrFree(buf)
}

// NewSTD returns an allocator backed by make, mostly useful with SetDebug
// to verify that every Malloc is paired with a Free.
func NewSTD() DebugAllocator {
	return &stdAllocator{
		debugger: &debugger{},
	}
}
