// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

// bidiInboxCapacity bounds a bidirectional stream's inbound channel per
// spec.md §5: "the per-bidi-stream input channel SHOULD be bounded;
// overflow closes the stream with ERROR."
const bidiInboxCapacity = 64

// stream is the Session's record of one in-flight non-unary call. The
// Session exclusively owns the map stream_id -> *stream; handlers never
// retain a pointer to it directly, only a StreamContext closure over its
// id, per spec.md §9's "streams as arena-plus-index" note.
type stream struct {
	id        uint32
	requestID uint32
	serviceID uint32
	methodID  uint32
	kind      MethodKind

	// nextSequence is the sequence_number to stamp on the next STREAM
	// frame this session sends for this stream (ServerStreaming,
	// Bidirectional), starting at 1 for the first send.
	nextSequence uint32

	active bool

	// collected accumulates client-streaming bodies until STREAM_END.
	collected [][]byte

	// inbound delivers client-sent STREAM frame bodies to a
	// Bidirectional handler's StreamContext.Recv. Closed once STREAM_END
	// is observed or the session tears down.
	inbound     chan []byte
	inboundOnce bool // guards against double-close of inbound
}

func newStream(h Header, kind MethodKind) *stream {
	st := &stream{
		id:           h.StreamID,
		requestID:    h.RequestID,
		serviceID:    h.ServiceID,
		methodID:     h.MethodID,
		kind:         kind,
		nextSequence: 1,
		active:       true,
	}
	switch kind {
	case ClientStreaming:
		st.collected = make([][]byte, 0, 4)
	case Bidirectional:
		st.inbound = make(chan []byte, bidiInboxCapacity)
	}
	return st
}

// closeInbound closes the inbound channel at most once; safe to call from
// both handle_stream_frame (on STREAM_END) and session teardown.
func (st *stream) closeInbound() {
	if st.inbound == nil || st.inboundOnce {
		return
	}
	st.inboundOnce = true
	close(st.inbound)
}
