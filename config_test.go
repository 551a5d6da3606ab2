// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

func pemEncodedRSALeaf(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "pem-test"},
		DNSNames:     []string{"example.com"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(1<<62, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("x509.CreateCertificate: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM
}

func TestParseCertificateChainRoundTrip(t *testing.T) {
	certPEM, keyPEM := pemEncodedRSALeaf(t)
	cert, err := ParseCertificateChain(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("ParseCertificateChain: %v", err)
	}
	if cert.Leaf() == nil {
		t.Fatal("Leaf() = nil after a successful parse")
	}
	if cert.Leaf().Subject.CommonName != "pem-test" {
		t.Fatalf("leaf CommonName = %q, want pem-test", cert.Leaf().Subject.CommonName)
	}
}

func TestParseCertificateChainRejectsMismatchedKey(t *testing.T) {
	certPEM, _ := pemEncodedRSALeaf(t)
	_, otherKeyPEM := pemEncodedRSALeaf(t)
	if _, err := ParseCertificateChain(certPEM, otherKeyPEM); err == nil {
		t.Fatal("ParseCertificateChain accepted a key that does not match the leaf, want error")
	}
}

func TestParseCertificateChainRejectsEmptyInput(t *testing.T) {
	if _, err := ParseCertificateChain(nil, nil); err == nil {
		t.Fatal("ParseCertificateChain accepted empty input, want error")
	}
}

func TestParseCertificateChainRejectsMissingKey(t *testing.T) {
	certPEM, _ := pemEncodedRSALeaf(t)
	if _, err := ParseCertificateChain(certPEM, nil); err == nil {
		t.Fatal("ParseCertificateChain accepted PEM input with no private key, want error")
	}
}

func TestConfigSupportedVersionsDefaultsToFullRange(t *testing.T) {
	cfg := &Config{}
	got := cfg.supportedVersions()
	want := []uint16{VersionTLS13, VersionTLS12, VersionTLS11, VersionTLS10}
	if len(got) != len(want) {
		t.Fatalf("supportedVersions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("supportedVersions[%d] = %#04x, want %#04x", i, got[i], want[i])
		}
	}
}

func TestConfigSupportedVersionsHonorsMinMax(t *testing.T) {
	cfg := &Config{MinVersion: VersionTLS12, MaxVersion: VersionTLS12}
	got := cfg.supportedVersions()
	if len(got) != 1 || got[0] != VersionTLS12 {
		t.Fatalf("supportedVersions = %v, want [TLS 1.2]", got)
	}
}

func TestConfigGetCertificateMatchesServerName(t *testing.T) {
	certPEM, keyPEM := pemEncodedRSALeaf(t)
	cert, err := ParseCertificateChain(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("ParseCertificateChain: %v", err)
	}
	cfg := &Config{Certificates: []*Certificate{cert}}

	got, err := cfg.getCertificate("example.com")
	if err != nil || got != cert {
		t.Fatalf("getCertificate(matching name) = (%v, %v)", got, err)
	}

	got, err = cfg.getCertificate("not-configured.example.org")
	if err != nil || got != cert {
		t.Fatalf("getCertificate(no match) should fall back to the sole configured certificate, got (%v, %v)", got, err)
	}
}

func TestConfigGetCertificateNoneConfigured(t *testing.T) {
	cfg := &Config{}
	if _, err := cfg.getCertificate("example.com"); err == nil {
		t.Fatal("getCertificate with no configured certificates succeeded, want error")
	}
}

func TestConfigFreezeIsIdempotentAndObservable(t *testing.T) {
	cfg := &Config{}
	if cfg.isFrozen() {
		t.Fatal("a fresh Config reports frozen")
	}
	cfg.freeze()
	if !cfg.isFrozen() {
		t.Fatal("freeze() did not mark the Config frozen")
	}
	cfg.freeze() // idempotent
	if !cfg.isFrozen() {
		t.Fatal("a second freeze() call unfroze the Config")
	}
}
