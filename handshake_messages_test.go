// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"bytes"
	"testing"
)

func TestSelectALPNProtocolServerPreferenceWins(t *testing.T) {
	server := []string{"h2", "http/1.1"}
	client := []string{"http/1.1", "h2"}
	got, err := selectALPNProtocol(server, client)
	if err != nil || got != "h2" {
		t.Fatalf("selectALPNProtocol = (%q, %v), want (h2, nil)", got, err)
	}
}

func TestSelectALPNProtocolNoMutualProtocol(t *testing.T) {
	if _, err := selectALPNProtocol([]string{"h2"}, []string{"http/1.1"}); err == nil {
		t.Fatal("selectALPNProtocol with no overlap succeeded, want error")
	}
}

func TestSelectALPNProtocolEmptyServerPreferencesError(t *testing.T) {
	if _, err := selectALPNProtocol(nil, []string{"h2"}); err == nil {
		t.Fatal("selectALPNProtocol with empty server preferences succeeded, want error")
	}
}

func unmarshalClientHello(t *testing.T, raw []byte) *clientHelloMsg {
	t.Helper()
	_, body, err := splitHandshakeHeader(raw)
	if err != nil {
		t.Fatalf("splitHandshakeHeader: %v", err)
	}
	got := new(clientHelloMsg)
	if err := got.unmarshal(body); err != nil {
		t.Fatalf("clientHelloMsg.unmarshal: %v", err)
	}
	return got
}

func TestClientHelloRoundTripBasicFields(t *testing.T) {
	want := &clientHelloMsg{
		vers:               VersionTLS12,
		random:             bytes.Repeat([]byte{0x42}, 32),
		sessionID:          []byte{1, 2, 3},
		cipherSuites:       []uint16{TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, TLS_RSA_WITH_AES_128_CBC_SHA},
		compressionMethods: []byte{0},
	}
	got := unmarshalClientHello(t, want.marshal())

	if got.vers != want.vers {
		t.Fatalf("vers = %#04x, want %#04x", got.vers, want.vers)
	}
	if !bytes.Equal(got.random, want.random) {
		t.Fatalf("random = %x, want %x", got.random, want.random)
	}
	if !bytes.Equal(got.sessionID, want.sessionID) {
		t.Fatalf("sessionID = %x, want %x", got.sessionID, want.sessionID)
	}
	if len(got.cipherSuites) != len(want.cipherSuites) || got.cipherSuites[0] != want.cipherSuites[0] || got.cipherSuites[1] != want.cipherSuites[1] {
		t.Fatalf("cipherSuites = %v, want %v", got.cipherSuites, want.cipherSuites)
	}
}

func TestClientHelloRoundTripExtensions(t *testing.T) {
	want := &clientHelloMsg{
		vers:                VersionTLS13,
		random:              bytes.Repeat([]byte{0x7a}, 32),
		sessionID:           nil,
		cipherSuites:        []uint16{TLS_AES_128_GCM_SHA256},
		compressionMethods:  []byte{0},
		serverName:          "example.com",
		supportedGroups:     []namedGroup{groupX25519, groupMLKEM768},
		signatureAlgorithms: []uint16{0x0804},
		alpnProtocols:       []string{"h2", "http/1.1"},
		supportedVersions:   []uint16{VersionTLS13},
		keyShareGroups:      []namedGroup{groupX25519, groupMLKEM768},
		keyShareData:        [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}},
		maxFragmentLength:   4,
	}
	got := unmarshalClientHello(t, want.marshal())

	if got.serverName != want.serverName {
		t.Fatalf("serverName = %q, want %q", got.serverName, want.serverName)
	}
	if len(got.supportedGroups) != 2 || got.supportedGroups[0] != groupX25519 || got.supportedGroups[1] != groupMLKEM768 {
		t.Fatalf("supportedGroups = %v, want [groupX25519 groupMLKEM768]", got.supportedGroups)
	}
	if len(got.alpnProtocols) != 2 || got.alpnProtocols[0] != "h2" || got.alpnProtocols[1] != "http/1.1" {
		t.Fatalf("alpnProtocols = %v, want [h2 http/1.1]", got.alpnProtocols)
	}
	if len(got.supportedVersions) != 1 || got.supportedVersions[0] != VersionTLS13 {
		t.Fatalf("supportedVersions = %v, want [TLS 1.3]", got.supportedVersions)
	}
	if len(got.keyShareGroups) != 2 || got.keyShareGroups[1] != groupMLKEM768 {
		t.Fatalf("keyShareGroups = %v, want second entry groupMLKEM768", got.keyShareGroups)
	}
	if !bytes.Equal(got.keyShareData[1], want.keyShareData[1]) {
		t.Fatalf("keyShareData[1] = %x, want %x", got.keyShareData[1], want.keyShareData[1])
	}
	if got.maxFragmentLength != 4 {
		t.Fatalf("maxFragmentLength = %d, want 4", got.maxFragmentLength)
	}
}

func TestServerHelloRoundTripKeyShareAndALPN(t *testing.T) {
	want := &serverHelloMsg{
		vers:             VersionTLS12,
		random:           bytes.Repeat([]byte{0x55}, 32),
		sessionID:        []byte{9, 8, 7},
		cipherSuite:      TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		alpnProtocol:     "h2",
		supportedVersion: VersionTLS13,
		hasKeyShare:      true,
		keyShareGroup:    groupMLKEM768,
		keyShareData:     []byte{0xaa, 0xbb, 0xcc},
	}

	_, body, err := splitHandshakeHeader(want.marshal())
	if err != nil {
		t.Fatalf("splitHandshakeHeader: %v", err)
	}
	got := new(serverHelloMsg)
	if err := got.unmarshal(body); err != nil {
		t.Fatalf("serverHelloMsg.unmarshal: %v", err)
	}

	if got.alpnProtocol != "h2" {
		t.Fatalf("alpnProtocol = %q, want h2", got.alpnProtocol)
	}
	if got.supportedVersion != VersionTLS13 {
		t.Fatalf("supportedVersion = %#04x, want TLS 1.3", got.supportedVersion)
	}
	if !got.hasKeyShare || got.keyShareGroup != groupMLKEM768 {
		t.Fatalf("keyShareGroup = %v (hasKeyShare=%v), want groupMLKEM768", got.keyShareGroup, got.hasKeyShare)
	}
	if !bytes.Equal(got.keyShareData, want.keyShareData) {
		t.Fatalf("keyShareData = %x, want %x", got.keyShareData, want.keyShareData)
	}
}

func TestSplitHandshakeHeaderRejectsLengthMismatch(t *testing.T) {
	raw := marshalHandshakeMessage(handshakeTypeClientHello, []byte("abc"))
	raw = append(raw, 0xff) // trailing garbage the declared length doesn't cover
	if _, _, err := splitHandshakeHeader(raw); err == nil {
		t.Fatal("splitHandshakeHeader accepted a length mismatch, want error")
	}
}
