// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestCipherSuiteByIDFindsEveryTableEntry(t *testing.T) {
	for _, s := range cipherSuites {
		if got := cipherSuiteByID(s.id); got != s {
			t.Fatalf("cipherSuiteByID(%#04x) = %v, want %v", s.id, got, s)
		}
	}
	if got := cipherSuiteByID(0xffff); got != nil {
		t.Fatalf("cipherSuiteByID(unknown) = %v, want nil", got)
	}
}

func TestCipherSuiteTLS13ByIDFindsEveryTableEntry(t *testing.T) {
	for _, s := range cipherSuitesTLS13 {
		if got := cipherSuiteTLS13ByID(s.id); got != s {
			t.Fatalf("cipherSuiteTLS13ByID(%#04x) = %v, want %v", s.id, got, s)
		}
	}
}

func TestMutualCipherSuiteFindsOfferedID(t *testing.T) {
	have := []uint16{TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, TLS_RSA_WITH_AES_128_CBC_SHA}
	got := mutualCipherSuite(have, TLS_RSA_WITH_AES_128_CBC_SHA)
	if got == nil || got.id != TLS_RSA_WITH_AES_128_CBC_SHA {
		t.Fatalf("mutualCipherSuite = %v, want TLS_RSA_WITH_AES_128_CBC_SHA", got)
	}
	if got := mutualCipherSuite(have, TLS_RSA_WITH_AES_256_CBC_SHA); got != nil {
		t.Fatalf("mutualCipherSuite for unoffered id = %v, want nil", got)
	}
}

func TestPickTLS13SuiteWalksServerPreferenceOrder(t *testing.T) {
	offered := []uint16{TLS_AES_256_GCM_SHA384, TLS_AES_128_GCM_SHA256}
	got := pickTLS13Suite(offered)
	if got == nil || got.id != TLS_AES_128_GCM_SHA256 {
		t.Fatalf("pickTLS13Suite = %v, want TLS_AES_128_GCM_SHA256 (server preference order wins over client order)", got)
	}
	if got := pickTLS13Suite([]uint16{0xfefe}); got != nil {
		t.Fatalf("pickTLS13Suite with no mutual suite = %v, want nil", got)
	}
}

func rsaCertForTest(t *testing.T) *Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return &Certificate{privateKey: key}
}

func ecdsaCertForTest(t *testing.T) *Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ecdsa.GenerateKey: %v", err)
	}
	return &Certificate{privateKey: key}
}

func TestPickLegacySuiteMatchesCertificateKeyType(t *testing.T) {
	offered := []uint16{TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, TLS_RSA_WITH_AES_128_CBC_SHA}

	if got := pickLegacySuite(&Config{}, offered, rsaCertForTest(t)); got != TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256 {
		t.Fatalf("pickLegacySuite with RSA cert = %#04x, want TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256", got)
	}
	if got := pickLegacySuite(&Config{}, offered, ecdsaCertForTest(t)); got != TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 {
		t.Fatalf("pickLegacySuite with ECDSA cert = %#04x, want TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256", got)
	}
}

func TestPickLegacySuiteSkipsDefaultOffSuites(t *testing.T) {
	offered := []uint16{TLS_RSA_WITH_RC4_128_SHA, TLS_RSA_WITH_AES_128_CBC_SHA}
	got := pickLegacySuite(&Config{}, offered, rsaCertForTest(t))
	if got != TLS_RSA_WITH_AES_128_CBC_SHA {
		t.Fatalf("pickLegacySuite = %#04x, want TLS_RSA_WITH_AES_128_CBC_SHA (RC4 is suiteDefaultOff)", got)
	}
}

func TestIsECDSACertDistinguishesKeyTypes(t *testing.T) {
	if isECDSACert(rsaCertForTest(t)) {
		t.Fatal("isECDSACert(rsa cert) = true")
	}
	if !isECDSACert(ecdsaCertForTest(t)) {
		t.Fatal("isECDSACert(ecdsa cert) = false")
	}
	if isECDSACert(nil) {
		t.Fatal("isECDSACert(nil) = true")
	}
}

func TestPickKEMShareWalksServerPreferenceOverClientOrder(t *testing.T) {
	cfg := &Config{KEMPreferences: []KEMScheme{KEMMLKEM768}}
	ch := &clientHelloMsg{
		keyShareGroups: []namedGroup{groupX25519, groupMLKEM768},
		keyShareData:   [][]byte{{1, 2, 3}, {4, 5, 6}},
	}
	scheme, data, ok := pickKEMShare(cfg, ch)
	if !ok || scheme != KEMMLKEM768 || string(data) != string([]byte{4, 5, 6}) {
		t.Fatalf("pickKEMShare = (%v, %v, %v), want (KEMMLKEM768, {4,5,6}, true)", scheme, data, ok)
	}

	if _, _, ok := pickKEMShare(&Config{KEMPreferences: []KEMScheme{KEMMLKEM768}}, &clientHelloMsg{
		keyShareGroups: []namedGroup{groupX25519},
		keyShareData:   [][]byte{{9}},
	}); ok {
		t.Fatal("pickKEMShare found a match when the client offered no KEM share")
	}
}

func TestPickX25519ShareFindsMatchingGroup(t *testing.T) {
	ch := &clientHelloMsg{
		keyShareGroups: []namedGroup{groupMLKEM768, groupX25519},
		keyShareData:   [][]byte{{1}, {2}},
	}
	group, data, ok := pickX25519Share(ch)
	if !ok || group != groupX25519 || string(data) != string([]byte{2}) {
		t.Fatalf("pickX25519Share = (%v, %v, %v), want (groupX25519, {2}, true)", group, data, ok)
	}
}
