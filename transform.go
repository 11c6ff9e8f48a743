// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"crypto/rand"
	"fmt"

	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// compressBody LZ4-compresses body. Grounded on rockstar-0000-aistore's
// direct pierrec/lz4/v3 dependency, used here exactly the way the
// COMPRESSED header bit (spec.md §3) implies: a transparent body
// transform the handler never sees.
func compressBody(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return body, nil
	}
	out := make([]byte, lz4.CompressBlockBound(len(body)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(body, out, ht[:])
	if err != nil {
		return nil, errors.Wrap(err, "rpcframe: lz4 compress")
	}
	if n == 0 {
		// Incompressible input: lz4 declines rather than emitting a
		// larger "compressed" block. Fall back to storing the length
		// prefix plus the raw bytes so decompressBody can tell the two
		// cases apart.
		return encodeStoredBlock(body), nil
	}
	return encodeCompressedBlock(body, out[:n]), nil
}

// decompressBody reverses compressBody.
func decompressBody(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return body, nil
	}
	originalLen, stored, payload, err := decodeBlock(body)
	if err != nil {
		return nil, err
	}
	if stored {
		return payload, nil
	}
	out := make([]byte, originalLen)
	n, err := lz4.UncompressBlock(payload, out)
	if err != nil {
		return nil, errors.Wrap(err, "rpcframe: lz4 decompress")
	}
	return out[:n], nil
}

// Block framing for the COMPRESSED payload transform: a 1-byte kind tag
// (0 = lz4, 1 = stored), a 4-byte big-endian original length, then the
// block bytes. This lives entirely inside the frame body, below the
// header the wire format otherwise never touches.
const (
	blockKindLZ4    = 0
	blockKindStored = 1
)

func encodeCompressedBlock(original, compressed []byte) []byte {
	out := make([]byte, 5+len(compressed))
	out[0] = blockKindLZ4
	putUint32(out[1:5], uint32(len(original)))
	copy(out[5:], compressed)
	return out
}

func encodeStoredBlock(original []byte) []byte {
	out := make([]byte, 5+len(original))
	out[0] = blockKindStored
	putUint32(out[1:5], uint32(len(original)))
	copy(out[5:], original)
	return out
}

func decodeBlock(body []byte) (originalLen uint32, stored bool, payload []byte, err error) {
	if len(body) < 5 {
		return 0, false, nil, fmt.Errorf("rpcframe: truncated compressed block")
	}
	kind := body[0]
	originalLen = getUint32(body[1:5])
	payload = body[5:]
	switch kind {
	case blockKindLZ4:
		return originalLen, false, payload, nil
	case blockKindStored:
		return originalLen, true, payload, nil
	default:
		return 0, false, nil, fmt.Errorf("rpcframe: unknown compressed block kind %d", kind)
	}
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// sessionKey is the per-session pre-shared symmetric key used for the
// ENCRYPTED flag's body transform. Key exchange/authentication is out of
// core scope per spec.md §1; the core only accepts an already-established
// key via WithEncryptionKey.
type sessionKey = [32]byte

// encryptBody seals body with an authenticated XSalsa20-Poly1305 box
// (golang.org/x/crypto/nacl/secretbox), grounded on
// rockstar-0000-aistore's and xendarboh-katzenpost's direct
// golang.org/x/crypto dependency. A fresh random nonce is prepended to the
// sealed output.
func encryptBody(body []byte, key *sessionKey) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "rpcframe: generate nonce")
	}
	sealed := secretbox.Seal(nonce[:], body, &nonce, key)
	return sealed, nil
}

// decryptBody reverses encryptBody.
func decryptBody(body []byte, key *sessionKey) ([]byte, error) {
	if len(body) < 24 {
		return nil, fmt.Errorf("rpcframe: encrypted body shorter than nonce")
	}
	var nonce [24]byte
	copy(nonce[:], body[:24])
	out, ok := secretbox.Open(nil, body[24:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("rpcframe: secretbox authentication failed")
	}
	return out, nil
}
