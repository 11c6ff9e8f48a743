// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (addr string, srv *Server, cleanup func()) {
	t.Helper()
	registry := NewServiceRegistry()
	require.NoError(t, registry.Register(1, testCallService{}))
	srv = NewServer(registry, 4)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve(ln) }()

	return ln.Addr().String(), srv, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		err := <-serveErrCh
		require.ErrorIs(t, err, ErrServerClosed)
	}
}

func TestServerServesUnaryCallsOverTCP(t *testing.T) {
	addr, _, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	writeFrame(t, conn, Header{
		ServiceID: 1, MethodID: methodEcho, RequestID: 1,
		MessageType: MessageTypeRequest,
	}, []byte("over-the-wire"))

	h, body := readFrame(t, conn)
	require.Equal(t, MessageTypeResponse, h.MessageType)
	require.Equal(t, "echo:over-the-wire", string(body))
}

func TestServerShutdownClosesLiveSessions(t *testing.T) {
	addr, srv, cleanup := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	writeFrame(t, conn, Header{
		ServiceID: 1, MethodID: methodEcho, RequestID: 1,
		MessageType: MessageTypeRequest,
	}, []byte("warm up"))
	_, _ = readFrame(t, conn)

	cleanup()

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.sessions) == 0
	}, time.Second, 5*time.Millisecond)
}
