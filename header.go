// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"encoding/binary"
)

// headerSize is the fixed, packed wire size of a frame header in bytes.
// The core enforces sizeof(header) == 32 via headerSizeCheck below, the Go
// equivalent of a static_assert on a packed struct.
const headerSize = 32

// headerSizeCheck fails to compile unless headerSize is exactly 32.
var headerSizeCheck [1]struct{} = [headerSize - 31]struct{}{}

// message_size is a uint32 field but message bodies larger than this would
// never fit in memory regardless; maxMessageSize simply bounds it to avoid
// an obviously-bogus length triggering a multi-gigabyte allocation attempt
// before the body has even started arriving.
const maxMessageSize = 1 << 30

// MessageType identifies a frame's role on the wire.
type MessageType uint8

const (
	MessageTypeRequest  MessageType = 1
	MessageTypeResponse MessageType = 2
	MessageTypeStream   MessageType = 3
	MessageTypeError    MessageType = 4
	MessageTypePing     MessageType = 5
	MessageTypePong     MessageType = 6
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeStream:
		return "STREAM"
	case MessageTypeError:
		return "ERROR"
	case MessageTypePing:
		return "PING"
	case MessageTypePong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// Flags is a bitfield carried in every frame header.
type Flags uint8

const (
	FlagNone        Flags = 0
	FlagStreamBegin Flags = 1 << 0
	FlagStreamEnd   Flags = 1 << 1
	FlagCompressed  Flags = 1 << 2
	FlagEncrypted   Flags = 1 << 3
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Header is the fixed 32-byte frame header, already converted to host
// representation (message_size, IDs, and sequence_number are plain Go
// integers here; the wire's network byte order only matters at the
// Serialize/Deserialize boundary).
type Header struct {
	MessageSize     uint32
	ServiceID       uint32
	MethodID        uint32
	RequestID       uint32
	StreamID        uint32
	SequenceNumber  uint32
	MessageType     MessageType
	Flags           Flags
	// Reserved must be zero on send; it is ignored (not validated) on
	// receive, matching spec.md's invariant for the reserved field.
	Reserved uint16
}

// BodyLen returns MessageSize-32, the number of body bytes that follow the
// header on the wire.
func (h Header) BodyLen() uint32 { return h.MessageSize - headerSize }

// Serialize appends a 32-byte header to buf in network byte order. It
// shares encodeHeader with PrependHeader so the two paths can never drift
// apart on the 4 bytes of trailing zero padding the wire format requires
// beyond the 28 meaningful field bytes.
func Serialize(buf *Buffer, h Header) {
	var hdr [headerSize]byte
	encodeHeader(&hdr, h)
	buf.Append(hdr[:])
}

// PrependHeader writes h into buf's headroom, immediately before whatever
// body bytes are already readable. This is the only path used for outbound
// framing: callers build the body first (so MessageSize is known), then
// prepend the header, avoiding a second allocation or a copy of the body.
func PrependHeader(buf *Buffer, h Header) {
	var hdr [headerSize]byte
	encodeHeader(&hdr, h)
	buf.Prepend(hdr[:])
}

// Deserialize peeks at buf's readable region and, if at least 32 bytes are
// available, decodes a Header without consuming any bytes — the parse loop
// advances the reader only once it has also verified the full body is
// present. It reports ErrShortHeader (not a decoding failure) when fewer
// than 32 bytes are buffered so far, and ErrFrameTooShort when the decoded
// message_size is below 32 or above maxMessageSize.
func Deserialize(buf *Buffer) (Header, error) {
	if buf.Readable() < headerSize {
		return Header{}, ErrShortHeader
	}
	var hdr [headerSize]byte
	copy(hdr[:], buf.ReadableView()[:headerSize])
	h := decodeHeader(&hdr)
	if h.MessageSize < headerSize || h.MessageSize > maxMessageSize {
		return h, ErrFrameTooShort
	}
	return h, nil
}

func encodeHeader(hdr *[headerSize]byte, h Header) {
	binary.BigEndian.PutUint32(hdr[0:4], h.MessageSize)
	binary.BigEndian.PutUint32(hdr[4:8], h.ServiceID)
	binary.BigEndian.PutUint32(hdr[8:12], h.MethodID)
	binary.BigEndian.PutUint32(hdr[12:16], h.RequestID)
	binary.BigEndian.PutUint32(hdr[16:20], h.StreamID)
	binary.BigEndian.PutUint32(hdr[20:24], h.SequenceNumber)
	hdr[24] = uint8(h.MessageType)
	hdr[25] = uint8(h.Flags)
	binary.BigEndian.PutUint16(hdr[26:28], h.Reserved)
	// hdr[28:32] reserved padding to round the header to 32 bytes; always
	// zero on send, ignored on receive.
}

func decodeHeader(hdr *[headerSize]byte) Header {
	return Header{
		MessageSize:    binary.BigEndian.Uint32(hdr[0:4]),
		ServiceID:      binary.BigEndian.Uint32(hdr[4:8]),
		MethodID:       binary.BigEndian.Uint32(hdr[8:12]),
		RequestID:      binary.BigEndian.Uint32(hdr[12:16]),
		StreamID:       binary.BigEndian.Uint32(hdr[16:20]),
		SequenceNumber: binary.BigEndian.Uint32(hdr[20:24]),
		MessageType:    MessageType(hdr[24]),
		Flags:          Flags(hdr[25]),
		Reserved:       binary.BigEndian.Uint16(hdr[26:28]),
	}
}
