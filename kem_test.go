// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"bytes"
	"testing"
)

func TestMLKEM768RoundTrip(t *testing.T) {
	server, err := newKEM(KEMMLKEM768)
	if err != nil {
		t.Fatalf("newKEM: %v", err)
	}
	pub, err := server.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	client, err := newKEM(KEMMLKEM768)
	if err != nil {
		t.Fatalf("newKEM: %v", err)
	}
	ciphertext, clientSecret, err := client.Encapsulate(pub)
	if err != nil {
		t.Fatalf("Encapsulate: %v", err)
	}

	serverSecret, err := server.Decapsulate(ciphertext)
	if err != nil {
		t.Fatalf("Decapsulate: %v", err)
	}
	if !bytes.Equal(clientSecret, serverSecret) {
		t.Fatalf("shared secrets differ: client %x, server %x", clientSecret, serverSecret)
	}
}

func TestMLKEM768DecapsulateBeforeGenerateKeyPairFails(t *testing.T) {
	k, err := newKEM(KEMMLKEM768)
	if err != nil {
		t.Fatalf("newKEM: %v", err)
	}
	if _, err := k.Decapsulate(make([]byte, 1088)); err == nil {
		t.Fatal("Decapsulate before GenerateKeyPair succeeded, want error")
	}
}

func TestMLKEM768EncapsulateRejectsMalformedPublicKey(t *testing.T) {
	k, err := newKEM(KEMMLKEM768)
	if err != nil {
		t.Fatalf("newKEM: %v", err)
	}
	if _, _, err := k.Encapsulate([]byte("not a real encapsulation key")); err == nil {
		t.Fatal("Encapsulate with malformed public key succeeded, want error")
	}
}

func TestNewKEMRejectsUnknownScheme(t *testing.T) {
	if _, err := newKEM(KEMScheme("kyber512")); err == nil {
		t.Fatal("newKEM with unsupported scheme succeeded, want error")
	}
}

func TestSelectKEMSchemeFindsMutualScheme(t *testing.T) {
	local := []KEMScheme{KEMMLKEM768}
	peer := []KEMScheme{KEMMLKEM768}
	got, err := selectKEMScheme(local, peer)
	if err != nil || got != KEMMLKEM768 {
		t.Fatalf("selectKEMScheme = (%v, %v), want (KEMMLKEM768, nil)", got, err)
	}
}

func TestSelectKEMSchemeNoMutualSchemeErrors(t *testing.T) {
	if _, err := selectKEMScheme([]KEMScheme{KEMMLKEM768}, nil); err == nil {
		t.Fatal("selectKEMScheme with no peer offer succeeded, want error")
	}
}

func TestGroupForKEMSchemeAndBackIsConsistent(t *testing.T) {
	group := groupForKEMScheme(KEMMLKEM768)
	scheme, ok := kemSchemeForGroup(group)
	if !ok || scheme != KEMMLKEM768 {
		t.Fatalf("kemSchemeForGroup(groupForKEMScheme(KEMMLKEM768)) = (%v, %v), want (KEMMLKEM768, true)", scheme, ok)
	}
	if _, ok := kemSchemeForGroup(groupX25519); ok {
		t.Fatal("kemSchemeForGroup(groupX25519) = true, want false (ECDHE group, not a KEM)")
	}
}
