// Package buffer implements the growable byte arena used to build wire
// requests: encoders reserve a length-prefix slot up front and back-patch
// the real length once the child bytes are known, instead of building a
// sub-buffer and copying it in. Grounded on the teacher's internal/binario
// fixed-width put helpers, generalized with a reserve/back-patch API.
package buffer

import "encoding/binary"

// Arena is a reusable growable byte buffer. Callers reset it between
// requests (Reset) instead of allocating a new one per command, mirroring
// how the teacher's internal/binario.Writer wraps a single io.Writer for
// the lifetime of a connection.
type Arena struct {
	buf []byte
}

func NewArena(capacity int) *Arena {
	return &Arena{buf: make([]byte, 0, capacity)}
}

func (a *Arena) Reset() {
	a.buf = a.buf[:0]
}

func (a *Arena) Bytes() []byte {
	return a.buf
}

func (a *Arena) Len() int {
	return len(a.buf)
}

func (a *Arena) WriteByte(b byte) {
	a.buf = append(a.buf, b)
}

func (a *Arena) WriteBytes(b []byte) {
	a.buf = append(a.buf, b...)
}

func (a *Arena) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	a.buf = append(a.buf, tmp[:]...)
}

func (a *Arena) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	a.buf = append(a.buf, tmp[:]...)
}

func (a *Arena) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	a.buf = append(a.buf, tmp[:]...)
}

// Placeholder marks a reserved span of n bytes at the time Reserve was
// called, to be filled in later via Backpatch once the real value — usually
// a child length — is known.
type Placeholder struct {
	offset int
	size   int
}

// Reserve appends n zero bytes and returns a Placeholder addressing them.
func (a *Arena) Reserve(n int) Placeholder {
	offset := len(a.buf)
	a.buf = append(a.buf, make([]byte, n)...)

	return Placeholder{offset: offset, size: n}
}

// BackpatchUint32 writes v, big-endian, into the span reserved by p.
func (a *Arena) BackpatchUint32(p Placeholder, v uint32) {
	if p.size != 4 {
		panic("buffer: backpatch size mismatch")
	}

	binary.BigEndian.PutUint32(a.buf[p.offset:p.offset+4], v)
}

// BackpatchUint16 writes v, big-endian, into the span reserved by p.
func (a *Arena) BackpatchUint16(p Placeholder, v uint16) {
	if p.size != 2 {
		panic("buffer: backpatch size mismatch")
	}

	binary.BigEndian.PutUint16(a.buf[p.offset:p.offset+2], v)
}

// LenSince returns how many bytes have been written since offset.
func (a *Arena) LenSince(offset int) int {
	return len(a.buf) - offset
}

// Offset returns the current write position, for taking a snapshot to
// measure a child's encoded length against later.
func (a *Arena) Offset() int {
	return len(a.buf)
}
