// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"errors"

	"code.hybscloud.com/iox"
)

var (
	// ErrInvalidArgument reports an invalid configuration or nil connection.
	ErrInvalidArgument = errors.New("rpcframe: invalid argument")

	// ErrTooLong reports that a frame length exceeds the wire format's limits.
	// No function in this package returns it: Deserialize reports an
	// over-limit message_size as ErrFrameTooShort.
	ErrTooLong = errors.New("rpcframe: message too long")

	// ErrShortHeader reports that fewer than 32 bytes are readable; the
	// caller must wait for more bytes and retry Deserialize unchanged.
	ErrShortHeader = errors.New("rpcframe: short header")

	// ErrFrameTooShort reports message_size < 32 (or above maxMessageSize)
	// on a header that was otherwise fully readable: a protocol violation.
	ErrFrameTooShort = errors.New("rpcframe: frame shorter than header")

	// ErrPoolStopped reports that a task was submitted after WorkerPool.Shutdown.
	ErrPoolStopped = errors.New("rpcframe: worker pool stopped")

	// ErrPoolFull reports that a bounded WorkerPool's queue is saturated.
	ErrPoolFull = errors.New("rpcframe: worker pool full")

	// ErrServiceExists reports that Register was called twice for
	// the same service_id; the original handler remains active.
	ErrServiceExists = errors.New("rpcframe: service already registered")

	// ErrUnknownService reports a REQUEST frame naming an unregistered service_id.
	ErrUnknownService = errors.New("rpcframe: unknown service")

	// ErrUnknownMethod reports a handler that does not implement method_id.
	ErrUnknownMethod = errors.New("rpcframe: unknown method")

	// ErrStreamProtocolViolation reports a STREAM frame received on a call
	// shape that does not accept client-originated stream frames (e.g. a
	// server-streaming call).
	ErrStreamProtocolViolation = errors.New("rpcframe: stream protocol violation")

	// ErrSessionClosed reports a send attempted after the session has torn down.
	ErrSessionClosed = errors.New("rpcframe: session closed")

	// ErrServerClosed reports Serve called on a server that has been shut
	// down, mirroring net/http's http.ErrServerClosed.
	ErrServerClosed = errors.New("rpcframe: server closed")
)

// These are re-exported so callers can branch on the same semantic
// control-flow signals the teacher framing library surfaces, without a
// second import of code.hybscloud.com/iox. rpcframe returns them only from
// Buffer's optional non-blocking helpers (see buffer.go); the ordinary
// net.Conn-backed Session path never returns them because net.Conn
// reads/writes block in the usual Go fashion.
var (
	// ErrWouldBlock means "no further progress without waiting".
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrMore means the operation is ongoing and more data will follow on a
	// later call.
	ErrMore = iox.ErrMore
)
