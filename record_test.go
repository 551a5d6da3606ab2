// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func mustRandom(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func sealOpenRoundTrip(t *testing.T, version uint16, suite *cipherSuite, payload []byte) {
	t.Helper()
	key := mustRandom(t, suite.keyLen)
	iv := mustRandom(t, suite.ivLen)
	mac := mustRandom(t, suite.macLen)

	writer := newCryptoParams(version, suite, key, iv, mac, false)
	reader := newCryptoParams(version, suite, key, iv, mac, true)

	record := writer.seal(recordTypeApplicationData, version, payload)
	typ, version2, length, err := parseRecordHeader(record)
	if err != nil {
		t.Fatalf("parseRecordHeader: %v", err)
	}
	if int(length) != len(record)-recordHeaderLen {
		t.Fatalf("header length %d does not match fragment length %d", length, len(record)-recordHeaderLen)
	}
	gotType, plaintext, err := reader.open(typ, version2, record[recordHeaderLen:])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if gotType != recordTypeApplicationData {
		t.Fatalf("recovered type = %v, want application_data", gotType)
	}
	if !bytes.Equal(plaintext, payload) {
		t.Fatalf("round trip mismatch: got %x, want %x", plaintext, payload)
	}
}

func TestRecordRoundTripAllSuites(t *testing.T) {
	cases := []struct {
		name  string
		id    uint16
		vers  uint16
	}{
		{"AES128-CBC-SHA", TLS_RSA_WITH_AES_128_CBC_SHA, VersionTLS12},
		{"AES256-CBC-SHA", TLS_RSA_WITH_AES_256_CBC_SHA, VersionTLS12},
		{"AES128-GCM-SHA256", TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, VersionTLS12},
		{"AES256-GCM-SHA384", TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, VersionTLS12},
		{"ChaCha20-Poly1305", TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305, VersionTLS12},
	}
	payloads := [][]byte{
		[]byte("short"),
		bytes.Repeat([]byte{0x5a}, 1),
		bytes.Repeat([]byte{0x7e}, 16*1024),
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			suite := cipherSuiteByID(c.id)
			if suite == nil {
				t.Fatalf("unknown cipher suite id %#04x", c.id)
			}
			for _, p := range payloads {
				sealOpenRoundTrip(t, c.vers, suite, p)
			}
		})
	}
}

func TestRecordSequenceAdvancesAcrossRecords(t *testing.T) {
	suite := cipherSuiteByID(TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	key := mustRandom(t, suite.keyLen)
	iv := mustRandom(t, suite.ivLen)

	writer := newCryptoParams(VersionTLS12, suite, key, iv, nil, false)
	reader := newCryptoParams(VersionTLS12, suite, key, iv, nil, true)

	for i := 0; i < 4; i++ {
		payload := []byte{byte(i), byte(i + 1)}
		record := writer.seal(recordTypeApplicationData, VersionTLS12, payload)
		typ, version, _, err := parseRecordHeader(record)
		if err != nil {
			t.Fatalf("record %d: parseRecordHeader: %v", i, err)
		}
		_, plaintext, err := reader.open(typ, version, record[recordHeaderLen:])
		if err != nil {
			t.Fatalf("record %d: open: %v", i, err)
		}
		if !bytes.Equal(plaintext, payload) {
			t.Fatalf("record %d mismatch: got %x want %x", i, plaintext, payload)
		}
	}
}

func TestRecordBadMACIsRejected(t *testing.T) {
	suite := cipherSuiteByID(TLS_RSA_WITH_AES_128_CBC_SHA)
	key := mustRandom(t, suite.keyLen)
	iv := mustRandom(t, suite.ivLen)
	mac := mustRandom(t, suite.macLen)

	writer := newCryptoParams(VersionTLS12, suite, key, iv, mac, false)
	reader := newCryptoParams(VersionTLS12, suite, key, iv, mac, true)

	record := writer.seal(recordTypeApplicationData, VersionTLS12, []byte("tamper me"))
	record[len(record)-1] ^= 0xff // flip a ciphertext bit

	typ, version, _, err := parseRecordHeader(record)
	if err != nil {
		t.Fatalf("parseRecordHeader: %v", err)
	}
	if _, _, err := reader.open(typ, version, record[recordHeaderLen:]); err != ErrBadRecordMAC {
		t.Fatalf("open on tampered record = %v, want ErrBadRecordMAC", err)
	}
}

func TestNullCryptoParamsPassesThroughPlaintext(t *testing.T) {
	cp := newNullCryptoParams()
	typ, plaintext, err := cp.open(recordTypeHandshake, VersionTLS12, []byte("cleartext ServerHello"))
	if err != nil {
		t.Fatalf("open on null cipher: %v", err)
	}
	if typ != recordTypeHandshake || string(plaintext) != "cleartext ServerHello" {
		t.Fatalf("null cipher passthrough mismatch: %v %q", typ, plaintext)
	}
}

func TestChooseFragmentLengthHonorsMaxFragmentLength(t *testing.T) {
	if got := chooseFragmentLength(10000, 1024); got != 1024 {
		t.Fatalf("chooseFragmentLength = %d, want 1024", got)
	}
	if got := chooseFragmentLength(100, 1024); got != 100 {
		t.Fatalf("chooseFragmentLength = %d, want 100", got)
	}
	if got := chooseFragmentLength(10000, 0); got != maxPlaintextLen {
		t.Fatalf("chooseFragmentLength with no override = %d, want %d", got, maxPlaintextLen)
	}
}

func TestMaxFragmentLengthFromCode(t *testing.T) {
	cases := map[uint8]int{1: 512, 2: 1024, 3: 2048, 4: 4096, 0: 0, 5: 0}
	for code, want := range cases {
		if got := maxFragmentLengthFromCode(code); got != want {
			t.Fatalf("maxFragmentLengthFromCode(%d) = %d, want %d", code, got, want)
		}
	}
}
