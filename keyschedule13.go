// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto"
	"crypto/hmac"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfLabel serializes the HkdfLabel struct from RFC 8446 §7.1:
//
//	struct {
//	    uint16 length;
//	    opaque label<7..255> = "tls13 " + Label;
//	    opaque context<0..255> = Context;
//	} HkdfLabel;
//
// Grounded on markkurossi/ephemelier's hkdfExpandLabel, adapted to build
// on golang.org/x/crypto/hkdf.Expand instead of a bespoke hkdf package.
func hkdfLabel(length int, label string, context []byte) []byte {
	const prefix = "tls13 "
	full := prefix + label

	out := make([]byte, 0, 2+1+len(full)+1+len(context))
	out = append(out, byte(length>>8), byte(length))
	out = append(out, byte(len(full)))
	out = append(out, full...)
	out = append(out, byte(len(context)))
	out = append(out, context...)
	return out
}

// hkdfExpandLabel is RFC 8446 §7.1's HKDF-Expand-Label(Secret, Label,
// Context, Length).
func hkdfExpandLabel(newHash func() hash.Hash, secret []byte, label string, context []byte, length int) []byte {
	info := hkdfLabel(length, label, context)
	reader := hkdf.Expand(newHash, secret, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		// hkdf.Expand only fails this way if length exceeds the hash's
		// expansion limit (255*hashLen), which never happens for the
		// fixed-size keys/IVs/secrets this package derives.
		panic("tlsconn: hkdf-expand-label: " + err.Error())
	}
	return out
}

// deriveSecret is RFC 8446 §7.1's Derive-Secret(Secret, Label, Messages):
// HKDF-Expand-Label(Secret, Label, Transcript-Hash(Messages), Hash.length).
func deriveSecret(newHash func() hash.Hash, hashLen int, secret []byte, label string, transcript []byte) []byte {
	return hkdfExpandLabel(newHash, secret, label, transcript, hashLen)
}

// schedule13 walks the three-phase HKDF ladder from spec §4.3 for one
// connection. Each phase's "derived" secret becomes the next phase's
// salt, per RFC 8446 §7.1's key schedule diagram.
type schedule13 struct {
	newHash crypto.Hash
	hashLen int

	earlySecret     []byte
	handshakeSecret []byte
	masterSecret    []byte
}

func newSchedule13(h crypto.Hash) *schedule13 {
	return &schedule13{newHash: h, hashLen: h.Size()}
}

func (s *schedule13) hashNew() func() hash.Hash { return s.newHash.New }

func (s *schedule13) emptyHash() []byte {
	h := s.newHash.New()
	return h.Sum(nil)
}

func (s *schedule13) zeros() []byte {
	return make([]byte, s.hashLen)
}

// extractEarlySecret runs phase 1 (spec §4.3's "early" phase). This
// package has no PSK support (session resumption is a Non-goal), so the
// IKM is always zero, matching RFC 8446's "no PSK" case.
func (s *schedule13) extractEarlySecret() {
	s.earlySecret = hkdf.Extract(s.hashNew(), s.zeros(), s.zeros())
}

func (s *schedule13) binderKey(external bool) []byte {
	label := "ext binder"
	if !external {
		label = "res binder"
	}
	return deriveSecret(s.hashNew(), s.hashLen, s.earlySecret, label, s.emptyHash())
}

// extractHandshakeSecret runs phase 2. sharedSecret is the ECDHE/KEM
// output (zeros() if none, matching RFC 8446's PSK-only mode, which this
// package never uses).
func (s *schedule13) extractHandshakeSecret(sharedSecret []byte) {
	if s.earlySecret == nil {
		s.extractEarlySecret()
	}
	derived := deriveSecret(s.hashNew(), s.hashLen, s.earlySecret, "derived", s.emptyHash())
	s.handshakeSecret = hkdf.Extract(s.hashNew(), sharedSecret, derived)
}

// handshakeTrafficSecrets derives the per-direction handshake traffic
// secrets bound to transcript H(ClientHello..ServerHello).
func (s *schedule13) handshakeTrafficSecrets(transcriptCHtoSH []byte) (client, server []byte) {
	client = deriveSecret(s.hashNew(), s.hashLen, s.handshakeSecret, "c hs traffic", transcriptCHtoSH)
	server = deriveSecret(s.hashNew(), s.hashLen, s.handshakeSecret, "s hs traffic", transcriptCHtoSH)
	return
}

// extractMasterSecret runs phase 3.
func (s *schedule13) extractMasterSecret() {
	derived := deriveSecret(s.hashNew(), s.hashLen, s.handshakeSecret, "derived", s.emptyHash())
	s.masterSecret = hkdf.Extract(s.hashNew(), s.zeros(), derived)
}

// applicationTrafficSecrets derives the 0-RTT-free (no early data, spec
// Non-goals) application traffic secrets bound to
// H(ClientHello..ServerFinished).
func (s *schedule13) applicationTrafficSecrets(transcriptCHtoSF []byte) (client, server []byte) {
	if s.masterSecret == nil {
		s.extractMasterSecret()
	}
	client = deriveSecret(s.hashNew(), s.hashLen, s.masterSecret, "c ap traffic", transcriptCHtoSF)
	server = deriveSecret(s.hashNew(), s.hashLen, s.masterSecret, "s ap traffic", transcriptCHtoSF)
	return
}

// trafficKeyAndIV derives the record-protection key and IV from a traffic
// secret (spec §4.3's "key"/"iv" labels, empty context).
func (s *schedule13) trafficKeyAndIV(trafficSecret []byte, keyLen int) (key, iv []byte) {
	key = hkdfExpandLabel(s.hashNew(), trafficSecret, "key", nil, keyLen)
	iv = hkdfExpandLabel(s.hashNew(), trafficSecret, "iv", nil, aeadNonceLength)
	return
}

// finishedKey derives the Finished MAC key from a traffic secret (spec
// §4.3's "finished" label, empty context, Hash.length output).
func (s *schedule13) finishedKey(trafficSecret []byte) []byte {
	return hkdfExpandLabel(s.hashNew(), trafficSecret, "finished", nil, s.hashLen)
}

// finishedVerifyData computes RFC 8446 §4.4.4's
// HMAC(finished_key, Transcript-Hash(Handshake Context, Certificate*)).
func (s *schedule13) finishedVerifyData(trafficSecret, transcript []byte) []byte {
	key := s.finishedKey(trafficSecret)
	mac := hmac.New(s.newHash.New, key)
	mac.Write(transcript)
	return mac.Sum(nil)
}
