// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha512"
	"hash"
)

// pHash implements RFC 5246 §5's P_hash(secret, seed) expansion: repeated
// HMAC(secret, A(i) || seed), A(0) = seed, A(i) = HMAC(secret, A(i-1)).
func pHash(out, secret, seed []byte, newHash func() hash.Hash) {
	h := hmac.New(newHash, secret)
	h.Write(seed)
	a := h.Sum(nil)

	for len(out) > 0 {
		h.Reset()
		h.Write(a)
		h.Write(seed)
		b := h.Sum(nil)
		n := copy(out, b)
		out = out[n:]

		h.Reset()
		h.Write(a)
		a = h.Sum(nil)
	}
}

// prf10 is the TLS 1.0/1.1 PRF: P_MD5(secret1, seed) XOR P_SHA1(secret2,
// seed), secret split into two (overlapping-by-one-byte-if-odd) halves
// per RFC 2246 §5.
func prf10(out, secret, label, seed []byte) {
	labelAndSeed := make([]byte, 0, len(label)+len(seed))
	labelAndSeed = append(labelAndSeed, label...)
	labelAndSeed = append(labelAndSeed, seed...)

	half := (len(secret) + 1) / 2
	s1, s2 := secret[:half], secret[len(secret)-half:]

	md5Out := make([]byte, len(out))
	pHash(md5Out, s1, labelAndSeed, md5.New)

	sha1Out := make([]byte, len(out))
	pHash(sha1Out, s2, labelAndSeed, sha1.New)

	for i := range out {
		out[i] = md5Out[i] ^ sha1Out[i]
	}
}

// prf12 is the TLS 1.2 PRF: P_<suite hash>(secret, label || seed) (RFC
// 5246 §5), parameterized by the negotiated suite's hash per spec §4.3.
func prf12(newHash func() hash.Hash) func(out, secret, label, seed []byte) {
	return func(out, secret, label, seed []byte) {
		labelAndSeed := make([]byte, 0, len(label)+len(seed))
		labelAndSeed = append(labelAndSeed, label...)
		labelAndSeed = append(labelAndSeed, seed...)
		pHash(out, secret, labelAndSeed, newHash)
	}
}

// prfForVersion picks the PRF per spec §4.3: P_MD5 xor P_SHA1 before TLS
// 1.2, the suite-selected single hash at and after TLS 1.2.
func prfForVersion(version uint16, suite *cipherSuite) func(out, secret, label, seed []byte) {
	if version >= VersionTLS12 {
		return prf12(hashForSuite12(suite))
	}
	return prf10
}

var (
	masterSecretLabel    = []byte("master secret")
	keyExpansionLabel    = []byte("key expansion")
	clientFinishedLabel  = []byte("client finished")
	serverFinishedLabel  = []byte("server finished")
)

// masterSecretFromPreMaster derives the 48-byte master secret (spec
// §4.3): PRF(pre_master, "master secret", client_random || server_random, 48).
func masterSecretFromPreMaster(version uint16, suite *cipherSuite, preMaster, clientRandom, serverRandom []byte) []byte {
	seed := make([]byte, 0, len(clientRandom)+len(serverRandom))
	seed = append(seed, clientRandom...)
	seed = append(seed, serverRandom...)

	out := make([]byte, 48)
	prfForVersion(version, suite)(out, preMaster, masterSecretLabel, seed)
	return out
}

// keyBlock is the parsed output of the "key expansion" PRF application:
// client_mac, server_mac, client_key, server_key, client_iv, server_iv
// (spec §4.3).
type keyBlock struct {
	clientMAC, serverMAC []byte
	clientKey, serverKey []byte
	clientIV, serverIV   []byte
}

// deriveKeyBlock computes the key block and splits it per spec §4.3:
// key_block = PRF(master, "key expansion", server_random || client_random, keyMat).
func deriveKeyBlock(version uint16, suite *cipherSuite, masterSecret, clientRandom, serverRandom []byte) *keyBlock {
	seed := make([]byte, 0, len(serverRandom)+len(clientRandom))
	seed = append(seed, serverRandom...)
	seed = append(seed, clientRandom...)

	total := 2*suite.macLen + 2*suite.keyLen + 2*suite.ivLen
	material := make([]byte, total)
	prfForVersion(version, suite)(material, masterSecret, keyExpansionLabel, seed)

	kb := &keyBlock{}
	off := 0
	take := func(n int) []byte {
		s := material[off : off+n]
		off += n
		return s
	}
	kb.clientMAC = take(suite.macLen)
	kb.serverMAC = take(suite.macLen)
	kb.clientKey = take(suite.keyLen)
	kb.serverKey = take(suite.keyLen)
	kb.clientIV = take(suite.ivLen)
	kb.serverIV = take(suite.ivLen)
	return kb
}

// finishedHash computes the verify_data for Finished (RFC 5246 §7.4.9):
// PRF(master, label, transcriptHash, 12) for <= TLS 1.2. TLS 1.3's
// Finished uses an HMAC construction instead; see keyschedule13.go.
func finishedHash(version uint16, suite *cipherSuite, masterSecret []byte, label []byte, transcript []byte) []byte {
	out := make([]byte, 12)
	prfForVersion(version, suite)(out, masterSecret, label, transcript)
	return out
}

// sha384New is exposed for callers (outside this file) that need the
// suiteSHA384 hash without importing crypto/sha512 themselves.
func sha384New() hash.Hash { return sha512.New384() }
