// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"testing"
)

func TestPHashIsDeterministicAndFillsRequestedLength(t *testing.T) {
	secret := []byte("a secret")
	seed := []byte("a seed")

	out1 := make([]byte, 77)
	out2 := make([]byte, 77)
	pHash(out1, secret, seed, sha256.New)
	pHash(out2, secret, seed, sha256.New)
	if !bytes.Equal(out1, out2) {
		t.Fatal("pHash is not deterministic for identical inputs")
	}

	shorter := make([]byte, 5)
	pHash(shorter, secret, seed, sha256.New)
	if !bytes.Equal(shorter, out1[:5]) {
		t.Fatal("pHash output is not a prefix-stable stream across output lengths")
	}
}

func TestPRF12MatchesDirectPHashOverLabelAndSeed(t *testing.T) {
	secret := []byte("master secret material!")
	label := []byte("key expansion")
	seed := []byte("server-random||client-random")

	got := make([]byte, 64)
	prf12(sha256.New)(got, secret, label, seed)

	want := make([]byte, 64)
	pHash(want, secret, append(append([]byte{}, label...), seed...), sha256.New)
	if !bytes.Equal(got, want) {
		t.Fatalf("prf12 = %x, want %x", got, want)
	}
}

func TestPRF10MatchesXORedMD5AndSHA1Halves(t *testing.T) {
	secret := []byte("0123456789abcdef0123") // odd length, exercises the overlapping split
	label := []byte("client finished")
	seed := []byte("transcript hash bytes")

	got := make([]byte, 32)
	prf10(got, secret, label, seed)

	half := (len(secret) + 1) / 2
	s1, s2 := secret[:half], secret[len(secret)-half:]
	labelAndSeed := append(append([]byte{}, label...), seed...)

	md5Out := make([]byte, 32)
	pHash(md5Out, s1, labelAndSeed, md5.New)
	sha1Out := make([]byte, 32)
	pHash(sha1Out, s2, labelAndSeed, sha1.New)

	want := make([]byte, 32)
	for i := range want {
		want[i] = md5Out[i] ^ sha1Out[i]
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("prf10 = %x, want %x", got, want)
	}
}

func TestPrfForVersionSelectsSingleHashAtTLS12(t *testing.T) {
	suite := cipherSuiteByID(TLS_RSA_WITH_AES_128_CBC_SHA)

	secret := []byte("some premaster secret padded out")
	label := []byte("master secret")
	seed := []byte("clientrandom32bytes.............")

	tls12Out := make([]byte, 48)
	prfForVersion(VersionTLS12, suite)(tls12Out, secret, label, seed)

	tls10Out := make([]byte, 48)
	prfForVersion(VersionTLS10, suite)(tls10Out, secret, label, seed)

	if bytes.Equal(tls12Out, tls10Out) {
		t.Fatal("TLS 1.0 and TLS 1.2 PRFs produced identical output; prfForVersion did not switch algorithms")
	}
}

func TestMasterSecretFromPreMasterIs48Bytes(t *testing.T) {
	suite := cipherSuiteByID(TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384)
	ms := masterSecretFromPreMaster(VersionTLS12, suite, []byte("premaster"), make([]byte, 32), make([]byte, 32))
	if len(ms) != 48 {
		t.Fatalf("len(masterSecret) = %d, want 48", len(ms))
	}
}

func TestDeriveKeyBlockSplitsIntoSuiteSizedFields(t *testing.T) {
	suite := cipherSuiteByID(TLS_RSA_WITH_AES_128_CBC_SHA)
	master := bytes.Repeat([]byte{0x11}, 48)
	kb := deriveKeyBlock(VersionTLS12, suite, master, make([]byte, 32), make([]byte, 32))

	if len(kb.clientMAC) != suite.macLen || len(kb.serverMAC) != suite.macLen {
		t.Fatalf("MAC key lengths = %d/%d, want %d", len(kb.clientMAC), len(kb.serverMAC), suite.macLen)
	}
	if len(kb.clientKey) != suite.keyLen || len(kb.serverKey) != suite.keyLen {
		t.Fatalf("cipher key lengths = %d/%d, want %d", len(kb.clientKey), len(kb.serverKey), suite.keyLen)
	}
	if len(kb.clientIV) != suite.ivLen || len(kb.serverIV) != suite.ivLen {
		t.Fatalf("IV lengths = %d/%d, want %d", len(kb.clientIV), len(kb.serverIV), suite.ivLen)
	}
	if bytes.Equal(kb.clientMAC, kb.serverMAC) {
		t.Fatal("client and server MAC keys must differ")
	}
}

func TestFinishedHashIsTwelveBytes(t *testing.T) {
	suite := cipherSuiteByID(TLS_RSA_WITH_AES_128_CBC_SHA)
	vd := finishedHash(VersionTLS12, suite, bytes.Repeat([]byte{0x22}, 48), clientFinishedLabel, bytes.Repeat([]byte{0x33}, 32))
	if len(vd) != 12 {
		t.Fatalf("len(verify_data) = %d, want 12", len(vd))
	}
}
