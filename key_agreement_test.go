// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func selfSignedRSALeaf(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test leaf"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(1<<62, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("x509.CreateCertificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("x509.ParseCertificate: %v", err)
	}
	return key, leaf
}

func runECDHEHandshake(t *testing.T, offeredGroups []namedGroup) []byte {
	t.Helper()
	key, leaf := selfSignedRSALeaf(t)
	cert := &Certificate{privateKey: key}

	ch := &clientHelloMsg{random: bytes.Repeat([]byte{0x01}, 32), vers: VersionTLS12, supportedGroups: offeredGroups}
	sh := &serverHelloMsg{random: bytes.Repeat([]byte{0x02}, 32)}

	server := &ecdheKeyAgreement{isRSA: true, version: VersionTLS12}
	skx, err := server.generateServerKeyExchange(&Config{}, cert, ch, sh)
	if err != nil {
		t.Fatalf("generateServerKeyExchange: %v", err)
	}

	client := &ecdheKeyAgreement{isRSA: true, version: VersionTLS12}
	if err := client.processServerKeyExchange(&Config{}, ch, sh, leaf, skx); err != nil {
		t.Fatalf("processServerKeyExchange: %v", err)
	}

	clientShared, cke, err := client.generateClientKeyExchange(&Config{}, ch, leaf)
	if err != nil {
		t.Fatalf("generateClientKeyExchange: %v", err)
	}

	serverShared, err := server.processClientKeyExchange(&Config{}, cert, cke, VersionTLS12)
	if err != nil {
		t.Fatalf("processClientKeyExchange: %v", err)
	}

	if !bytes.Equal(clientShared, serverShared) {
		t.Fatalf("shared secrets differ: client %x, server %x", clientShared, serverShared)
	}
	return clientShared
}

func TestECDHEKeyAgreementX25519EndToEnd(t *testing.T) {
	runECDHEHandshake(t, []namedGroup{groupX25519})
}

func TestECDHEKeyAgreementP256EndToEnd(t *testing.T) {
	runECDHEHandshake(t, []namedGroup{groupP256})
}

func TestECDHEKeyAgreementP384EndToEnd(t *testing.T) {
	runECDHEHandshake(t, []namedGroup{groupP384})
}

func TestECDHEKeyAgreementPrefersX25519WhenBothOffered(t *testing.T) {
	ka := &ecdheKeyAgreement{}
	got := ka.pickGroup([]namedGroup{groupP256, groupX25519, groupP384})
	if got != groupX25519 {
		t.Fatalf("pickGroup = %v, want groupX25519", got)
	}
}

func TestRSAKeyAgreementEndToEnd(t *testing.T) {
	key, leaf := selfSignedRSALeaf(t)
	cert := &Certificate{privateKey: key}
	ch := &clientHelloMsg{vers: VersionTLS12}

	ka := rsaKeyAgreement{}
	clientShared, cke, err := ka.generateClientKeyExchange(&Config{}, ch, leaf)
	if err != nil {
		t.Fatalf("generateClientKeyExchange: %v", err)
	}
	serverShared, err := ka.processClientKeyExchange(&Config{}, cert, cke, VersionTLS12)
	if err != nil {
		t.Fatalf("processClientKeyExchange: %v", err)
	}
	if !bytes.Equal(clientShared, serverShared) {
		t.Fatalf("shared secrets differ: client %x, server %x", clientShared, serverShared)
	}
}

func TestRSAKeyAgreementBleichenbacherCountermeasureMasksTamperedCiphertext(t *testing.T) {
	key, leaf := selfSignedRSALeaf(t)
	cert := &Certificate{privateKey: key}
	ch := &clientHelloMsg{vers: VersionTLS12}

	ka := rsaKeyAgreement{}
	_, cke, err := ka.generateClientKeyExchange(&Config{}, ch, leaf)
	if err != nil {
		t.Fatalf("generateClientKeyExchange: %v", err)
	}
	cke.ciphertext[len(cke.ciphertext)-1] ^= 0xff

	preMaster, err := ka.processClientKeyExchange(&Config{}, cert, cke, VersionTLS12)
	if err != nil {
		t.Fatalf("processClientKeyExchange returned an error instead of masking the failure: %v", err)
	}
	if len(preMaster) != 48 {
		t.Fatalf("len(preMaster) = %d, want 48 even on decryption failure", len(preMaster))
	}
}
