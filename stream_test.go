// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStreamAllocatesPerKindState(t *testing.T) {
	h := Header{StreamID: 7, RequestID: 1, ServiceID: 2, MethodID: 3}

	unary := newStream(h, Unary)
	assert.Nil(t, unary.collected)
	assert.Nil(t, unary.inbound)

	cs := newStream(h, ClientStreaming)
	assert.NotNil(t, cs.collected)
	assert.Nil(t, cs.inbound)

	bidi := newStream(h, Bidirectional)
	assert.NotNil(t, bidi.inbound)
	assert.Equal(t, bidiInboxCapacity, cap(bidi.inbound))

	assert.Equal(t, uint32(7), bidi.id)
	assert.Equal(t, uint32(1), bidi.nextSequence)
	assert.True(t, bidi.active)
}

func TestStreamCloseInboundIsIdempotent(t *testing.T) {
	st := newStream(Header{StreamID: 1}, Bidirectional)
	assert.NotPanics(t, func() {
		st.closeInbound()
		st.closeInbound()
	})

	_, ok := <-st.inbound
	assert.False(t, ok)
}

func TestStreamCloseInboundNoopWithoutChannel(t *testing.T) {
	st := newStream(Header{StreamID: 1}, ClientStreaming)
	assert.NotPanics(t, func() {
		st.closeInbound()
	})
}
