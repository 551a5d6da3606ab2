// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync/atomic"
)

// Certificate is a parsed leaf certificate plus its private key and any
// intermediate chain, threaded through the keyAgreement interface. Per
// spec §9's "cyclic/back references" note, the chain is a small slice
// indexed by position rather than a linked list of owned nodes with back
// pointers.
type Certificate struct {
	// chain[0] is the leaf; chain[1:] are intermediates sent to the peer
	// but never used for path validation (spec's Non-goal: "certificate-
	// chain path validation beyond parsing and leaf selection").
	chain      []*x509.Certificate
	rawChain   [][]byte
	privateKey crypto.PrivateKey
}

// Leaf returns the leaf certificate selected from the configured chain.
func (c *Certificate) Leaf() *x509.Certificate {
	if len(c.chain) == 0 {
		return nil
	}
	return c.chain[0]
}

// CipherPreference selects a named cipher-suite preference table (spec
// §6's "cipher-preference version tag"). A client applies it in
// cipherIDsFor (handshake_client.go) when building the suites it offers;
// the server's suite selection does not consult it.
type CipherPreference string

const (
	// CipherPreferenceModern offers only AEAD suites and TLS 1.3.
	CipherPreferenceModern CipherPreference = "modern"
	// CipherPreferenceCompatible additionally offers CBC suites for
	// legacy peers.
	CipherPreferenceCompatible CipherPreference = "compatible"
)

// Config holds the inputs listed in spec §6: certificate chain, private
// key, optional DH parameters, cipher preference, ALPN protocols, server
// name, and the OCSP status-request toggle. A Config is shared and
// immutable once attached to a Connection (spec §3's "Ownership and
// lifecycle"); SetConfig on the first attaching Connection freezes it.
type Config struct {
	Certificates     []*Certificate
	CipherPreference CipherPreference
	ALPNProtocols    []string
	ServerName       string
	RequestOCSPStaple bool

	// MinVersion/MaxVersion bound negotiation (0 means "use the
	// package default" for that bound).
	MinVersion uint16
	MaxVersion uint16

	// ClientAuth is not consulted by the handshake: whatever its value,
	// a server sends no CertificateRequest and reads no client
	// Certificate.
	ClientAuth bool

	// KEMPreferences lists this side's supported/preferred KEM
	// parameter sets, walked the same way as ALPNProtocols (spec §8's
	// KEM selection scenarios; see kem.go).
	KEMPreferences []KEMScheme

	frozen atomic.Bool
}

// freeze marks the Config immutable. Called by Connection.SetConfig; a
// second Connection attaching the same Config is a no-op (refcounted
// sharing, not exclusive ownership, per spec §3).
func (c *Config) freeze() { c.frozen.Store(true) }

func (c *Config) isFrozen() bool { return c.frozen.Load() }

// minVersion returns the effective lower bound, defaulting to TLS 1.0
// (the oldest version this package implements, per spec §6).
func (c *Config) minVersion() uint16 {
	if c != nil && c.MinVersion != 0 {
		return c.MinVersion
	}
	return VersionTLS10
}

// maxVersion returns the effective upper bound, defaulting to TLS 1.3.
func (c *Config) maxVersion() uint16 {
	if c != nil && c.MaxVersion != 0 {
		return c.MaxVersion
	}
	return VersionTLS13
}

func (c *Config) supportedVersions() []uint16 {
	all := []uint16{VersionTLS13, VersionTLS12, VersionTLS11, VersionTLS10}
	lo, hi := c.minVersion(), c.maxVersion()
	out := make([]uint16, 0, len(all))
	for _, v := range all {
		if v >= lo && v <= hi {
			out = append(out, v)
		}
	}
	return out
}

// getCertificate selects the leaf certificate for a given server name
// (spec §4.5/§6: "leaf selection" only, no path validation). With a
// single configured certificate (the common case, and the only case this
// package's SNI matching goes beyond), that certificate is always
// returned.
func (c *Config) getCertificate(serverName string) (*Certificate, error) {
	if len(c.Certificates) == 0 {
		return nil, errors.New("tlsconn: no certificates configured")
	}
	for _, cert := range c.Certificates {
		if matchesServerName(cert.Leaf(), serverName) {
			return cert, nil
		}
	}
	return c.Certificates[0], nil
}

func matchesServerName(leaf *x509.Certificate, name string) bool {
	if leaf == nil || name == "" {
		return false
	}
	if err := leaf.VerifyHostname(name); err == nil {
		return true
	}
	return false
}

// ParseCertificateChain parses a concatenated PEM certificate chain and
// PEM private key (RSA or ECDSA) into a Certificate, per spec §6's
// Configuration inputs. It performs no trust-path validation, only
// syntactic parsing and leaf/key-pair matching (spec's Non-goal and
// spec §9's leaf-selection note).
func ParseCertificateChain(certPEM, keyPEM []byte) (*Certificate, error) {
	cert := &Certificate{}

	rest := certPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		x, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("tlsconn: parsing certificate: %w", err)
		}
		cert.chain = append(cert.chain, x)
		cert.rawChain = append(cert.rawChain, block.Bytes)
	}
	if len(cert.chain) == 0 {
		return nil, errors.New("tlsconn: no certificates found in PEM input")
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, errors.New("tlsconn: no private key found in PEM input")
	}
	key, err := parsePrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, err
	}
	cert.privateKey = key

	if err := verifyKeyMatchesLeaf(key, cert.chain[0]); err != nil {
		return nil, err
	}
	return cert, nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey:
			return key, nil
		default:
			return nil, errors.New("tlsconn: unsupported PKCS#8 private key type")
		}
	}
	return nil, errors.New("tlsconn: could not parse private key (expected RSA or ECDSA)")
}

func verifyKeyMatchesLeaf(key crypto.PrivateKey, leaf *x509.Certificate) error {
	switch pub := leaf.PublicKey.(type) {
	case *rsa.PublicKey:
		priv, ok := key.(*rsa.PrivateKey)
		if !ok || priv.PublicKey.N.Cmp(pub.N) != 0 {
			return errors.New("tlsconn: private key does not match leaf RSA public key")
		}
	case *ecdsa.PublicKey:
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok || priv.PublicKey.X.Cmp(pub.X) != 0 || priv.PublicKey.Y.Cmp(pub.Y) != 0 {
			return errors.New("tlsconn: private key does not match leaf ECDSA public key")
		}
	default:
		return errors.New("tlsconn: unsupported leaf public key type")
	}
	return nil
}
