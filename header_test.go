// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSerializeDeserializeRoundTrip(t *testing.T) {
	h := Header{
		MessageSize:    headerSize + 3,
		ServiceID:      1,
		MethodID:       2,
		RequestID:      3,
		StreamID:       4,
		SequenceNumber: 5,
		MessageType:    MessageTypeRequest,
		Flags:          FlagCompressed,
		Reserved:       0,
	}
	buf := NewBuffer(headerSize)
	Serialize(buf, h)
	buf.Append([]byte("abc"))

	got, err := Deserialize(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, uint32(3), got.BodyLen())
}

func TestHeaderPrependHeaderLeavesBodyIntact(t *testing.T) {
	buf := NewBuffer(16)
	buf.Append([]byte("payload"))
	h := Header{MessageSize: headerSize + 7, MessageType: MessageTypeResponse}
	PrependHeader(buf, h)

	got, err := Deserialize(buf)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeResponse, got.MessageType)
	assert.Equal(t, "payload", string(buf.ReadableView()[headerSize:]))
}

func TestHeaderDeserializeShortHeader(t *testing.T) {
	buf := NewBuffer(4)
	buf.Append([]byte{1, 2, 3})
	_, err := Deserialize(buf)
	assert.ErrorIs(t, err, ErrShortHeader)
}

func TestHeaderDeserializeFrameTooShort(t *testing.T) {
	buf := NewBuffer(headerSize)
	Serialize(buf, Header{MessageSize: headerSize - 1})
	_, err := Deserialize(buf)
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestFlagsHas(t *testing.T) {
	f := FlagStreamBegin | FlagCompressed
	assert.True(t, f.Has(FlagStreamBegin))
	assert.True(t, f.Has(FlagCompressed))
	assert.False(t, f.Has(FlagStreamEnd))
	assert.False(t, f.Has(FlagStreamBegin|FlagEncrypted))
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "REQUEST", MessageTypeRequest.String())
	assert.Equal(t, "STREAM", MessageTypeStream.String())
	assert.Equal(t, "UNKNOWN", MessageType(0xFF).String())
}
