// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"encoding/binary"
	"io"
)

// initialHeadroom is the minimum prepend region reserved by a new Buffer,
// sized so a complete 32-byte frame header can always be prepended to an
// already-built body without reallocation.
const initialHeadroom = headerSize

// defaultBufferCap is the backing-array size a zero-value-friendly Buffer
// starts with: headroom plus a modest initial body allowance.
const defaultBufferCap = initialHeadroom + 1024

// Buffer is a byte buffer with three contiguous regions — prepend,
// readable, writable — offering cheap front-insertion for frame headers,
// endian-aware integer helpers, and amortised-O(1) growth that compacts
// readable bytes toward the prepend boundary before reallocating.
//
// Layout: [0, readerIdx) is prependable headroom, [readerIdx, writerIdx) is
// readable, [writerIdx, len(buf)) is writable. The zero value is not ready
// for use; construct with NewBuffer.
type Buffer struct {
	buf       []byte
	readerIdx int
	writerIdx int
}

// NewBuffer returns a Buffer with at least initialHeadroom bytes of
// prepend headroom and room for cap additional body bytes before growth.
func NewBuffer(cap int) *Buffer {
	if cap < 0 {
		cap = 0
	}
	size := initialHeadroom + cap
	if size < defaultBufferCap {
		size = defaultBufferCap
	}
	return &Buffer{
		buf:       make([]byte, size),
		readerIdx: initialHeadroom,
		writerIdx: initialHeadroom,
	}
}

// Prependable reports the number of bytes that can be prepended without
// reallocation.
func (b *Buffer) Prependable() int { return b.readerIdx }

// Readable reports the number of unread bytes currently buffered.
func (b *Buffer) Readable() int { return b.writerIdx - b.readerIdx }

// Writable reports the number of bytes that can be appended without growth.
func (b *Buffer) Writable() int { return len(b.buf) - b.writerIdx }

// ReadableView returns a bounded span over the readable region. The slice
// aliases the Buffer's backing array and is invalidated by any mutating
// call (Append, Prepend, Retrieve, MakeSpace).
func (b *Buffer) ReadableView() []byte { return b.buf[b.readerIdx:b.writerIdx] }

// WritableView returns a bounded span over the writable region. The slice
// aliases the Buffer's backing array and is invalidated by any mutating
// call.
func (b *Buffer) WritableView() []byte { return b.buf[b.writerIdx:] }

// Append grows the buffer if necessary, copies p, and advances the writer.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	if b.Writable() < len(p) {
		b.MakeSpace(len(p))
	}
	n := copy(b.buf[b.writerIdx:], p)
	b.writerIdx += n
}

// Prepend writes p into the buffer's headroom, immediately before the
// readable region. It is a precondition violation — a programmer error,
// not a recoverable runtime condition — to call Prepend with more bytes
// than Prependable() reports; Prepend panics in that case, mirroring how
// the wire-level header codec depends on this headroom invariant always
// holding rather than being checked on every send.
func (b *Buffer) Prepend(p []byte) {
	if len(p) == 0 {
		return
	}
	if len(p) > b.Prependable() {
		panic("rpcframe: Prepend: insufficient headroom")
	}
	b.readerIdx -= len(p)
	copy(b.buf[b.readerIdx:], p)
}

// Retrieve advances the reader by n bytes, collapsing to RetrieveAll if it
// would exhaust the readable region. n must not exceed Readable(); a
// larger n is clamped to Readable() rather than panicking since retrieval
// past the readable end is a benign no-op elsewhere in this package's
// parse loop (callers that must detect over-retrieval should check
// Readable() themselves).
func (b *Buffer) Retrieve(n int) {
	if n <= 0 {
		return
	}
	if n >= b.Readable() {
		b.RetrieveAll()
		return
	}
	b.readerIdx += n
}

// RetrieveAll resets both indices to the headroom boundary, not to zero,
// so the prepend region remains available for the next frame.
func (b *Buffer) RetrieveAll() {
	b.readerIdx = initialHeadroom
	b.writerIdx = initialHeadroom
}

// MakeSpace ensures n additional bytes can be appended, compacting the
// readable region toward the headroom boundary before it grows the
// backing array. Compaction first avoids heap growth under a steady
// message size; doubling bounds amortised append cost when compaction
// alone cannot make room.
func (b *Buffer) MakeSpace(n int) {
	if b.Writable()+b.Prependable() < n+initialHeadroom {
		readable := b.Readable()
		newCap := len(b.buf) * 2
		if min := initialHeadroom + readable + n; newCap < min {
			newCap = min
		}
		nb := make([]byte, newCap)
		copy(nb[initialHeadroom:], b.buf[b.readerIdx:b.writerIdx])
		b.buf = nb
		b.writerIdx = initialHeadroom + readable
		b.readerIdx = initialHeadroom
		return
	}
	// Compact in place: slide readable bytes down to the headroom boundary.
	readable := b.Readable()
	copy(b.buf[initialHeadroom:], b.buf[b.readerIdx:b.writerIdx])
	b.readerIdx = initialHeadroom
	b.writerIdx = initialHeadroom + readable
}

// AppendUint8 appends a single byte.
func (b *Buffer) AppendUint8(v uint8) { b.Append([]byte{v}) }

// AppendUint16 appends v in network byte order.
func (b *Buffer) AppendUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.Append(tmp[:])
}

// AppendUint32 appends v in network byte order.
func (b *Buffer) AppendUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.Append(tmp[:])
}

// AppendUint64 appends v in network byte order.
func (b *Buffer) AppendUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.Append(tmp[:])
}

// PeekUint8 returns the leading byte without consuming it.
func (b *Buffer) PeekUint8() (v uint8, ok bool) {
	if b.Readable() < 1 {
		return 0, false
	}
	return b.buf[b.readerIdx], true
}

// PeekUint16 returns the leading 2 bytes, converted from network byte
// order, without consuming them.
func (b *Buffer) PeekUint16() (v uint16, ok bool) {
	if b.Readable() < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(b.buf[b.readerIdx:]), true
}

// PeekUint32 returns the leading 4 bytes, converted from network byte
// order, without consuming them.
func (b *Buffer) PeekUint32() (v uint32, ok bool) {
	if b.Readable() < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b.buf[b.readerIdx:]), true
}

// PeekUint64 returns the leading 8 bytes, converted from network byte
// order, without consuming them.
func (b *Buffer) PeekUint64() (v uint64, ok bool) {
	if b.Readable() < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b.buf[b.readerIdx:]), true
}

// ReadUint8 consumes and returns the leading byte.
func (b *Buffer) ReadUint8() (v uint8, ok bool) {
	v, ok = b.PeekUint8()
	if ok {
		b.Retrieve(1)
	}
	return v, ok
}

// ReadUint16 consumes and returns the leading 2 bytes.
func (b *Buffer) ReadUint16() (v uint16, ok bool) {
	v, ok = b.PeekUint16()
	if ok {
		b.Retrieve(2)
	}
	return v, ok
}

// ReadUint32 consumes and returns the leading 4 bytes.
func (b *Buffer) ReadUint32() (v uint32, ok bool) {
	v, ok = b.PeekUint32()
	if ok {
		b.Retrieve(4)
	}
	return v, ok
}

// ReadUint64 consumes and returns the leading 8 bytes.
func (b *Buffer) ReadUint64() (v uint64, ok bool) {
	v, ok = b.PeekUint64()
	if ok {
		b.Retrieve(8)
	}
	return v, ok
}

// ReadFrom implements io.ReaderFrom: it grows as needed and reads from r
// into the writable region repeatedly, per the usual io.ReaderFrom contract
// of reading until r returns an error; io.EOF ends the loop and is not
// returned.
func (b *Buffer) ReadFrom(r io.Reader) (n int64, err error) {
	for {
		if b.Writable() < 4096 {
			b.MakeSpace(4096)
		}
		rn, rerr := r.Read(b.buf[b.writerIdx:])
		if rn > 0 {
			b.writerIdx += rn
			n += int64(rn)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return n, nil
			}
			return n, rerr
		}
	}
}

// ReadNonblockFrom performs a single Read into the writable region,
// growing first if necessary, and propagates ErrWouldBlock/ErrMore from r
// unchanged — the non-blocking counterpart to ReadFrom, for callers
// wrapping a transport that surfaces code.hybscloud.com/iox's semantic
// control-flow signals instead of blocking.
func (b *Buffer) ReadNonblockFrom(r io.Reader) (n int, err error) {
	if b.Writable() < 4096 {
		b.MakeSpace(4096)
	}
	rn, rerr := r.Read(b.buf[b.writerIdx:])
	if rn > 0 {
		b.writerIdx += rn
	}
	return rn, rerr
}

// WriteTo implements io.WriterTo: it writes the entire readable region to
// w and retrieves exactly what was written, honoring short-write
// semantics.
func (b *Buffer) WriteTo(w io.Writer) (n int64, err error) {
	for b.Readable() > 0 {
		wn, werr := w.Write(b.ReadableView())
		if wn > 0 {
			b.Retrieve(wn)
			n += int64(wn)
		}
		if werr != nil {
			return n, werr
		}
		if wn == 0 {
			return n, io.ErrShortWrite
		}
	}
	return n, nil
}
