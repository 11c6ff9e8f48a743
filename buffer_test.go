// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndRetrieve(t *testing.T) {
	buf := NewBuffer(16)
	buf.Append([]byte("hello"))
	assert.Equal(t, 5, buf.Readable())
	assert.Equal(t, "hello", string(buf.ReadableView()))

	buf.Retrieve(2)
	assert.Equal(t, "llo", string(buf.ReadableView()))
}

func TestBufferPrependUsesHeadroom(t *testing.T) {
	buf := NewBuffer(16)
	buf.Append([]byte("body"))
	buf.Prepend([]byte{0xAA, 0xBB})
	assert.Equal(t, []byte{0xAA, 0xBB, 'b', 'o', 'd', 'y'}, buf.ReadableView())
}

func TestBufferPrependPanicsPastHeadroom(t *testing.T) {
	buf := NewBuffer(0)
	for buf.Prependable() > 0 {
		buf.Prepend([]byte{0})
	}
	assert.Panics(t, func() {
		buf.Prepend([]byte{1})
	})
}

func TestBufferMakeSpaceCompactsBeforeGrowing(t *testing.T) {
	// Construct a Buffer with only 8 bytes of body capacity beyond the
	// header headroom, directly, to force MakeSpace's compact-first path
	// without relying on NewBuffer's much larger default allocation.
	buf := &Buffer{
		buf:       make([]byte, initialHeadroom+8),
		readerIdx: initialHeadroom,
		writerIdx: initialHeadroom,
	}
	startCap := len(buf.buf)

	buf.Append(bytes.Repeat([]byte{1}, 4))
	buf.Append(bytes.Repeat([]byte{2}, 4)) // fills the 8-byte body region exactly
	buf.Retrieve(4)                        // consume the first chunk, leaving 4 readable at the tail
	buf.Append(bytes.Repeat([]byte{3}, 4)) // no room at the tail: must compact, not grow

	assert.Equal(t, startCap, len(buf.buf), "compaction should avoid reallocation when it suffices")
	assert.Equal(t, append(bytes.Repeat([]byte{2}, 4), bytes.Repeat([]byte{3}, 4)...), buf.ReadableView())
}

func TestBufferUintRoundTrip(t *testing.T) {
	buf := NewBuffer(32)
	buf.AppendUint8(0x7F)
	buf.AppendUint16(0x1234)
	buf.AppendUint32(0xDEADBEEF)
	buf.AppendUint64(0x1122334455667788)

	v8, ok := buf.ReadUint8()
	require.True(t, ok)
	assert.Equal(t, uint8(0x7F), v8)

	v16, ok := buf.ReadUint16()
	require.True(t, ok)
	assert.Equal(t, uint16(0x1234), v16)

	v32, ok := buf.ReadUint32()
	require.True(t, ok)
	assert.Equal(t, uint32(0xDEADBEEF), v32)

	v64, ok := buf.ReadUint64()
	require.True(t, ok)
	assert.Equal(t, uint64(0x1122334455667788), v64)
}

func TestBufferReadUintShortReturnsFalse(t *testing.T) {
	buf := NewBuffer(4)
	_, ok := buf.ReadUint32()
	assert.False(t, ok)
}

func TestBufferWriteToDrainsReadable(t *testing.T) {
	buf := NewBuffer(16)
	buf.Append([]byte("payload"))
	var out bytes.Buffer
	n, err := buf.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", out.String())
	assert.Equal(t, 0, buf.Readable())
}

func TestBufferReadFromReadsUntilEOF(t *testing.T) {
	buf := NewBuffer(16)
	src := bytes.NewReader([]byte("from the wire"))
	n, err := buf.ReadFrom(src)
	require.NoError(t, err)
	assert.Equal(t, int64(len("from the wire")), n)
	assert.Equal(t, "from the wire", string(buf.ReadableView()))
}
