// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// MethodKind names one of the four call shapes a Service method can
// declare, per spec.md §4.4's table.
type MethodKind uint8

const (
	// Unary is the default kind: one REQUEST in, one RESPONSE out.
	Unary MethodKind = iota
	// ServerStreaming: one REQUEST in, N STREAM frames plus a final
	// STREAM_END out.
	ServerStreaming
	// ClientStreaming: one REQUEST opens the call, N STREAM frames
	// (terminating in STREAM_END) flow in, one RESPONSE goes out.
	ClientStreaming
	// Bidirectional: REQUEST plus interleaved STREAM frames flow in both
	// directions.
	Bidirectional
)

func (k MethodKind) String() string {
	switch k {
	case Unary:
		return "Unary"
	case ServerStreaming:
		return "ServerStreaming"
	case ClientStreaming:
		return "ClientStreaming"
	case Bidirectional:
		return "Bidirectional"
	default:
		return "Unknown"
	}
}

// StreamContext is handed to CallServerStream and CallBidiStream. Send
// emits one message as a STREAM frame; Finish emits the terminating
// STREAM_END and releases the stream record. Handlers never see the
// session's stream map directly — StreamContext is the only capability
// they are given, so they cannot race it (spec.md §5's shared-resource
// policy).
type StreamContext interface {
	// Send emits body as the next STREAM frame in this call.
	Send(body []byte) error
	// Finish emits the terminating STREAM_END frame and closes the stream.
	// Calling Send after Finish returns ErrSessionClosed.
	Finish() error
	// Recv blocks until the next client-sent STREAM frame is available
	// (Bidirectional only), returning ok=false once the client has sent
	// STREAM_END or the session has torn down.
	Recv() (body []byte, ok bool)
}

// Service is the capability set a handler exposes to the core: method-kind
// declaration plus the four call shapes named in spec.md §4.4. It is
// modeled as a small interface rather than an open inheritance hierarchy,
// per spec.md §9's design note — embed UnimplementedService to get the
// "defaults to immediate finish" behavior for any subset of methods a
// concrete service does not implement.
type Service interface {
	// MethodKind reports the call shape for methodID. Implementations
	// that do not recognize methodID should return Unary; the core
	// detects the mismatch when the corresponding Call* method also
	// reports ErrUnknownMethod.
	MethodKind(methodID uint32) MethodKind

	// CallUnary is mandatory: every Service must be able to answer at
	// least unary calls, even if only with ErrUnknownMethod.
	CallUnary(methodID uint32, body []byte) ([]byte, error)

	// CallServerStream handles a server-streaming call. Implementations
	// call stream.Send zero or more times, then stream.Finish exactly
	// once.
	CallServerStream(methodID uint32, body []byte, stream StreamContext) error

	// CallClientStream handles a client-streaming call once the client's
	// STREAM_END has been observed and every body has been collected.
	CallClientStream(methodID uint32, bodies [][]byte) ([]byte, error)

	// CallBidiStream handles a bidirectional call. Implementations read
	// via stream.Recv and write via stream.Send/Finish freely interleaved.
	CallBidiStream(methodID uint32, stream StreamContext) error
}

// UnimplementedService provides default behavior for handlers that only
// expose unary methods: embed it in a concrete Service to satisfy the
// interface without writing out the three streaming shapes by hand.
// MethodKind reports Unary, CallServerStream and CallBidiStream finish the
// stream immediately, and CallClientStream returns ErrUnknownMethod.
type UnimplementedService struct{}

func (UnimplementedService) MethodKind(uint32) MethodKind { return Unary }

func (UnimplementedService) CallServerStream(_ uint32, _ []byte, stream StreamContext) error {
	return stream.Finish()
}

func (UnimplementedService) CallClientStream(_ uint32, _ [][]byte) ([]byte, error) {
	return nil, ErrUnknownMethod
}

func (UnimplementedService) CallBidiStream(_ uint32, stream StreamContext) error {
	return stream.Finish()
}

// ServiceRegistry maps a numeric service_id to a Service handler.
// Registration is one-shot per id: a duplicate registration is a logged
// no-op and never replaces a live entry, because live streams may hold
// dispatch references into the original handler (spec.md §4.4).
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[uint32]Service
	log      *logrus.Logger
}

// NewServiceRegistry returns an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[uint32]Service),
		log:      logrus.StandardLogger(),
	}
}

// SetLogger overrides the registry's logger, used for the duplicate-
// registration warning.
func (r *ServiceRegistry) SetLogger(l *logrus.Logger) { r.log = l }

// Register adds handler under serviceID. A duplicate serviceID logs a
// warning and returns ErrServiceExists; the previously registered handler
// remains active.
func (r *ServiceRegistry) Register(serviceID uint32, handler Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[serviceID]; exists {
		r.log.WithField("service_id", serviceID).
			Warn("rpcframe: duplicate service registration ignored")
		return ErrServiceExists
	}
	r.services[serviceID] = handler
	return nil
}

// Lookup returns the handler registered for serviceID, reading without a
// lock held across the caller's use of it — services_ is read-only after
// the registration phase, so readers never block writers and vice versa
// past this single map access (spec.md §5).
func (r *ServiceRegistry) Lookup(serviceID uint32) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.services[serviceID]
	return h, ok
}
