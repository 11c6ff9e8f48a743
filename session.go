// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"code.hybscloud.com/rpcframe/internal/bo"
)

// writeLaneDepth bounds the serialized write lane's buffered channel.
// Producers (worker-pool goroutines finishing a call, the read loop
// replying to PING) block once it fills, which is the session's only
// backpressure mechanism toward a slow peer.
const writeLaneDepth = 256

// Session owns one accepted connection end to end: the single-threaded
// read/parse loop, the stream table, and a serialized write lane that lets
// many worker goroutines emit frames without interleaving partial writes
// on the wire. This is the Go reading of spec.md §4.2's state machine:
// reference counting becomes "GC plus a closed channel (closedCh) closed
// under sync.Once", and the single-producer-single-consumer serial executor
// becomes a buffered channel drained by one goroutine.
type Session struct {
	id       string
	conn     net.Conn
	registry *ServiceRegistry
	pool     *WorkerPool
	log      *logrus.Entry
	metrics  *metrics

	readBuf *Buffer

	writeCh   chan []byte
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	streamMu sync.Mutex
	streams  map[uint32]*stream

	compress   bool
	encryptKey *sessionKey
	onClose    func(*Session)
}

// SessionOption configures a Session at construction time.
type SessionOption func(*Session)

// WithSessionLogger attaches a base logger; the Session enriches it with a
// session_id field. The default is logrus.StandardLogger().
func WithSessionLogger(l *logrus.Logger) SessionOption {
	return func(s *Session) { s.log = l.WithField("session_id", s.id) }
}

func withSessionMetrics(m *metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithCompression enables the COMPRESSED body transform for every frame
// this session sends, and transparently reverses it on receive regardless
// of this setting (a peer may compress independently of what this side
// chooses to do on send).
func WithCompression(enabled bool) SessionOption {
	return func(s *Session) { s.compress = enabled }
}

// WithEncryptionKey enables the ENCRYPTED body transform using key for
// both sealing outbound bodies and opening inbound ones. Key
// exchange/authentication lives outside this package, per spec.md §1.
func WithEncryptionKey(key *[32]byte) SessionOption {
	return func(s *Session) { s.encryptKey = key }
}

// WithOnClose registers a callback invoked exactly once, after teardown
// has fully run, with this Session. The Server uses this to remove the
// session from its live-session set.
func WithOnClose(fn func(*Session)) SessionOption {
	return func(s *Session) { s.onClose = fn }
}

// NewSession wraps conn in a Session dispatching through registry and
// executing handlers on pool.
func NewSession(conn net.Conn, registry *ServiceRegistry, pool *WorkerPool, opts ...SessionOption) *Session {
	s := &Session{
		id:       uuid.NewString(),
		conn:     conn,
		registry: registry,
		pool:     pool,
		metrics:  noopMetrics(),
		readBuf:  NewBuffer(4096),
		writeCh:  make(chan []byte, writeLaneDepth),
		closedCh: make(chan struct{}),
		streams:  make(map[uint32]*stream),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.StandardLogger().WithField("session_id", s.id)
	}
	s.log.WithField("native_byte_order", bo.Native().String()).
		Debug("rpcframe: session starting")
	return s
}

// ID returns the session's correlation id, suitable for log aggregation
// across the read loop, the write lane and every worker-pool task this
// session submits.
func (s *Session) ID() string { return s.id }

// awaitClosed blocks until the read and write loops have both returned
// (i.e. teardown has fully run and drained the write lane) or ctx is done,
// whichever comes first. Server.Shutdown uses this to bound how long it
// waits on a single session within its own errgroup.
func (s *Session) awaitClosed(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the write lane in a new goroutine and the read/parse loop on
// the calling goroutine, blocking until the connection is closed or a
// protocol violation tears the session down. Callers that want a
// non-blocking accept loop should invoke Start from their own goroutine
// (see Server.Serve).
func (s *Session) Start() {
	s.metrics.activeSessions.Inc()
	s.wg.Add(2)
	go s.writeLoop()
	s.readLoop()
	s.wg.Wait()
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case frame, ok := <-s.writeCh:
			if !ok {
				return
			}
			if _, err := s.conn.Write(frame); err != nil {
				s.log.WithError(err).Warn("rpcframe: write failed")
				s.teardown()
				return
			}
		case <-s.closedCh:
			// Drain whatever is already queued so callers blocked on a full
			// writeCh are not stuck past teardown, then exit.
			for {
				select {
				case frame, ok := <-s.writeCh:
					if !ok {
						return
					}
					_, _ = s.conn.Write(frame)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) readLoop() {
	var retErr error
	defer func() {
		switch {
		case retErr == io.EOF:
			s.log.Info("rpcframe: connection closed by peer")
		case retErr != nil:
			s.log.WithError(retErr).Error("rpcframe: read loop exiting")
		}
		s.teardown()
		s.wg.Done()
	}()
	for {
		select {
		case <-s.closedCh:
			return
		default:
		}
		n, err := s.readBuf.ReadNonblockFrom(s.conn)
		if n > 0 {
			if procErr := s.processBuffered(); procErr != nil {
				retErr = procErr
				return
			}
		}
		if err != nil {
			retErr = err
			return
		}
	}
}

// processBuffered decodes and dispatches every complete frame currently
// sitting in readBuf, leaving a trailing partial frame (if any) buffered
// for the next read.
func (s *Session) processBuffered() error {
	for {
		h, err := Deserialize(s.readBuf)
		if err == ErrShortHeader {
			return nil
		}
		if err == ErrFrameTooShort {
			s.log.WithField("message_size", h.MessageSize).
				Warn("rpcframe: frame shorter than header, closing connection")
			s.metrics.dispatchErrors.WithLabelValues("frame_too_short").Inc()
			return err
		}
		if s.readBuf.Readable() < int(h.MessageSize) {
			// Header is known but the body has not fully arrived yet.
			return nil
		}
		body := make([]byte, h.BodyLen())
		copy(body, s.readBuf.ReadableView()[headerSize:h.MessageSize])
		s.readBuf.Retrieve(int(h.MessageSize))

		s.metrics.framesReceived.WithLabelValues(h.MessageType.String()).Inc()

		body, err = s.inboundTransform(h, body)
		if err != nil {
			s.log.WithError(err).Warn("rpcframe: inbound body transform failed")
			s.sendError(h, err)
			continue
		}

		if err := s.dispatch(h, body); err != nil {
			return err
		}
	}
}

func (s *Session) inboundTransform(h Header, body []byte) ([]byte, error) {
	var err error
	if h.Flags.Has(FlagEncrypted) {
		if s.encryptKey == nil {
			return nil, ErrInvalidArgument
		}
		if body, err = decryptBody(body, s.encryptKey); err != nil {
			return nil, err
		}
	}
	if h.Flags.Has(FlagCompressed) {
		if body, err = decompressBody(body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (s *Session) outboundTransform(flags Flags, body []byte) (Flags, []byte, error) {
	if s.compress {
		compressed, err := compressBody(body)
		if err != nil {
			return flags, nil, err
		}
		body = compressed
		flags |= FlagCompressed
	}
	if s.encryptKey != nil {
		sealed, err := encryptBody(body, s.encryptKey)
		if err != nil {
			return flags, nil, err
		}
		body = sealed
		flags |= FlagEncrypted
	}
	return flags, body, nil
}

func (s *Session) dispatch(h Header, body []byte) error {
	switch h.MessageType {
	case MessageTypeRequest:
		return s.handleRequest(h, body)
	case MessageTypeStream:
		return s.handleStreamFrame(h, body)
	case MessageTypePing:
		s.sendFrame(Header{
			ServiceID: h.ServiceID, MethodID: h.MethodID, RequestID: h.RequestID,
			MessageType: MessageTypePong,
		}, body)
		return nil
	case MessageTypePong:
		// Peer-liveness feedback only; nothing replies to a PONG.
		return nil
	case MessageTypeError:
		if h.StreamID != 0 {
			s.closeStream(h.StreamID)
		}
		return nil
	default:
		s.log.WithField("message_type", h.MessageType.String()).
			Warn("rpcframe: unexpected message type on connection, dropping")
		s.metrics.dispatchErrors.WithLabelValues("unexpected_message_type").Inc()
		return nil
	}
}

// handleRequest opens a new call. For Unary it runs to completion on the
// worker pool and replies with a single RESPONSE. For the three streaming
// shapes it registers a stream record keyed by the client-chosen
// stream_id (the client, not the session, mints this id, because it must
// already know it in order to tag the STREAM frames it sends next) before
// handing off to the pool.
func (s *Session) handleRequest(h Header, body []byte) error {
	svc, ok := s.registry.Lookup(h.ServiceID)
	if !ok {
		s.metrics.dispatchErrors.WithLabelValues("unknown_service").Inc()
		s.sendError(h, ErrUnknownService)
		return nil
	}
	kind := svc.MethodKind(h.MethodID)

	if kind != Unary {
		if h.StreamID == 0 {
			s.metrics.dispatchErrors.WithLabelValues("missing_stream_id").Inc()
			s.sendError(h, ErrStreamProtocolViolation)
			return nil
		}
		s.streamMu.Lock()
		if _, exists := s.streams[h.StreamID]; exists {
			s.streamMu.Unlock()
			s.metrics.dispatchErrors.WithLabelValues("duplicate_stream_id").Inc()
			s.sendError(h, ErrStreamProtocolViolation)
			return nil
		}
		st := newStream(h, kind)
		s.streams[h.StreamID] = st
		s.streamMu.Unlock()
		s.metrics.activeStreams.Inc()

		if kind == ClientStreaming {
			// The handler only runs once STREAM_END is observed; nothing to
			// submit yet.
			return nil
		}
	}

	task := func() {
		switch kind {
		case Unary:
			resp, err := svc.CallUnary(h.MethodID, body)
			if err != nil {
				s.metrics.dispatchErrors.WithLabelValues("handler_error").Inc()
				s.sendError(h, err)
				return
			}
			s.sendFrame(Header{
				ServiceID: h.ServiceID, MethodID: h.MethodID, RequestID: h.RequestID,
				MessageType: MessageTypeResponse,
			}, resp)
		case ServerStreaming:
			ctx := &sessionStreamContext{session: s, header: h}
			if err := svc.CallServerStream(h.MethodID, body, ctx); err != nil {
				s.metrics.dispatchErrors.WithLabelValues("handler_error").Inc()
				s.sendError(h, err)
				s.closeStream(h.StreamID)
				return
			}
		case Bidirectional:
			ctx := &sessionStreamContext{session: s, header: h}
			if err := svc.CallBidiStream(h.MethodID, ctx); err != nil {
				s.metrics.dispatchErrors.WithLabelValues("handler_error").Inc()
				s.sendError(h, err)
				s.closeStream(h.StreamID)
				return
			}
		}
	}
	if err := s.pool.Submit(task); err != nil {
		s.metrics.dispatchErrors.WithLabelValues("pool_submit_failed").Inc()
		s.sendError(h, err)
		if kind != Unary {
			s.closeStream(h.StreamID)
		}
	}
	return nil
}

// handleStreamFrame routes a client-originated STREAM frame to the
// matching stream record.
func (s *Session) handleStreamFrame(h Header, body []byte) error {
	s.streamMu.Lock()
	st, ok := s.streams[h.StreamID]
	s.streamMu.Unlock()
	if !ok {
		s.log.WithField("stream_id", h.StreamID).
			Warn("rpcframe: stream frame for unknown or closed stream_id, dropping")
		s.metrics.dispatchErrors.WithLabelValues("unknown_stream_id").Inc()
		return nil
	}

	switch st.kind {
	case ClientStreaming:
		st.collected = append(st.collected, body)
		if h.Flags.Has(FlagStreamEnd) {
			svc, _ := s.registry.Lookup(st.serviceID)
			bodies := st.collected
			methodID := st.methodID
			requestID := st.requestID
			serviceID := st.serviceID
			s.closeStream(h.StreamID)
			task := func() {
				resp, err := svc.CallClientStream(methodID, bodies)
				if err != nil {
					s.metrics.dispatchErrors.WithLabelValues("handler_error").Inc()
					s.sendError(Header{ServiceID: serviceID, MethodID: methodID, RequestID: requestID}, err)
					return
				}
				s.sendFrame(Header{
					ServiceID: serviceID, MethodID: methodID, RequestID: requestID,
					MessageType: MessageTypeResponse,
				}, resp)
			}
			if err := s.pool.Submit(task); err != nil {
				s.metrics.dispatchErrors.WithLabelValues("pool_submit_failed").Inc()
				s.sendError(h, err)
			}
		}
		return nil
	case Bidirectional:
		select {
		case st.inbound <- body:
		default:
			// Bounded inbox overflowed: the handler is not draining fast
			// enough relative to the peer. Close the stream with ERROR
			// rather than block the single read loop indefinitely.
			s.metrics.dispatchErrors.WithLabelValues("bidi_inbox_overflow").Inc()
			s.sendError(h, ErrStreamProtocolViolation)
			s.closeStream(h.StreamID)
			return nil
		}
		if h.Flags.Has(FlagStreamEnd) {
			st.closeInbound()
		}
		return nil
	default:
		s.metrics.dispatchErrors.WithLabelValues("stream_protocol_violation").Inc()
		s.sendError(h, ErrStreamProtocolViolation)
		return nil
	}
}

// closeStream removes and deactivates a stream record, closing its
// inbound channel if it has one. Safe to call more than once for the same
// stream_id.
func (s *Session) closeStream(streamID uint32) {
	s.streamMu.Lock()
	st, ok := s.streams[streamID]
	if ok {
		st.active = false
		delete(s.streams, streamID)
	}
	s.streamMu.Unlock()
	if !ok {
		return
	}
	st.closeInbound()
	s.metrics.activeStreams.Dec()
}

// sendStreamMessage emits one STREAM frame for streamID with the next
// sequence_number, used by sessionStreamContext.Send.
func (s *Session) sendStreamMessage(streamID uint32, h Header, body []byte) error {
	s.streamMu.Lock()
	st, ok := s.streams[streamID]
	if !ok {
		s.streamMu.Unlock()
		return ErrSessionClosed
	}
	seq := st.nextSequence
	st.nextSequence++
	s.streamMu.Unlock()

	out := h
	out.MessageType = MessageTypeStream
	out.StreamID = streamID
	out.SequenceNumber = seq
	return s.sendFrameErr(out, body)
}

// sessionStreamContext implements StreamContext for CallServerStream and
// CallBidiStream by closing over the owning Session and the call's
// original header — handlers only ever see this narrow capability, never
// the session's stream map itself (spec.md §5).
type sessionStreamContext struct {
	session *Session
	header  Header
}

func (c *sessionStreamContext) Send(body []byte) error {
	return c.session.sendStreamMessage(c.header.StreamID, Header{
		ServiceID: c.header.ServiceID, MethodID: c.header.MethodID, RequestID: c.header.RequestID,
	}, body)
}

func (c *sessionStreamContext) Finish() error {
	err := c.session.sendStreamMessage(c.header.StreamID, Header{
		ServiceID: c.header.ServiceID, MethodID: c.header.MethodID, RequestID: c.header.RequestID,
		Flags: FlagStreamEnd,
	}, nil)
	c.session.closeStream(c.header.StreamID)
	return err
}

func (c *sessionStreamContext) Recv() ([]byte, bool) {
	c.session.streamMu.Lock()
	st, ok := c.session.streams[c.header.StreamID]
	c.session.streamMu.Unlock()
	if !ok {
		return nil, false
	}
	body, ok := <-st.inbound
	return body, ok
}

// sendError emits an ERROR frame carrying err's message as the body,
// correlated to h's request_id, ignoring send failures since the
// connection is likely already going away in that case.
func (s *Session) sendError(h Header, err error) {
	s.sendFrame(Header{
		ServiceID: h.ServiceID, MethodID: h.MethodID, RequestID: h.RequestID,
		MessageType: MessageTypeError,
	}, []byte(err.Error()))
}

// sendFrame is the fire-and-forget counterpart to sendFrameErr, for call
// sites that already handle failure by tearing the session down via
// whatever caller eventually observes the closed connection.
func (s *Session) sendFrame(h Header, body []byte) {
	_ = s.sendFrameErr(h, body)
}

func (s *Session) sendFrameErr(h Header, body []byte) error {
	flags, transformed, err := s.outboundTransform(h.Flags, body)
	if err != nil {
		return err
	}
	h.Flags = flags
	h.MessageSize = uint32(headerSize + len(transformed))

	buf := NewBuffer(len(transformed))
	buf.Append(transformed)
	PrependHeader(buf, h)
	frame := append([]byte(nil), buf.ReadableView()...)

	select {
	case <-s.closedCh:
		return ErrSessionClosed
	case s.writeCh <- frame:
		s.metrics.framesSent.WithLabelValues(h.MessageType.String()).Inc()
		return nil
	}
}

// teardown tears the session down at most once: it closes closedCh
// (waking the write lane and any blocked sendFrameErr caller), closes
// every live stream's inbound channel so a blocked Recv returns, closes
// the underlying connection, and finally invokes the onClose hook.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		// closedCh alone is the shutdown signal; writeCh is never closed
		// because sendFrameErr (called from worker-pool goroutines) may
		// race a send against teardown, and sending on a closed channel
		// panics. Every reader selects on closedCh too, so the lane still
		// drains promptly.
		close(s.closedCh)

		s.streamMu.Lock()
		for id, st := range s.streams {
			st.closeInbound()
			delete(s.streams, id)
		}
		s.streamMu.Unlock()

		_ = s.conn.Close()
		s.metrics.activeSessions.Dec()
		s.log.Debug("rpcframe: session closed")
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}
