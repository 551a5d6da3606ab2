// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"fmt"
)

// Signature scheme identifiers (RFC 8446 §4.2.3 / RFC 5246 §7.4.1.4.1),
// restricted to the handful this package actually negotiates.
const (
	sigSchemeRSAPKCS1SHA256 uint16 = 0x0401
	sigSchemeRSAPKCS1SHA384 uint16 = 0x0501
	sigSchemeECDSAP256SHA256 uint16 = 0x0403
	sigSchemeECDSAP384SHA384 uint16 = 0x0503
	sigSchemeRSAPSSRSAESHA256 uint16 = 0x0804
)

// signServerECDHEParams signs the ServerKeyExchange's ECDHE parameters
// with the server's certificate key, per RFC 5246 §7.4.3: the signed
// input is client_random || server_random || ServerECDHParams. Grounded
// on crypto/tls's own sign/verify split in auth.go (not retrieved in the
// pack, but named by its exported keyAgreement interface in
// cipher_suites.go), implemented here with a type switch over
// *rsa.PrivateKey and *ecdsa.PrivateKey.
func signServerECDHEParams(cfg *Config, cert *Certificate, ch *clientHelloMsg, sh *serverHelloMsg, params []byte) (sig []byte, sigAlg uint16, err error) {
	msg := make([]byte, 0, 64+len(params))
	msg = append(msg, ch.random...)
	msg = append(msg, sh.random...)
	msg = append(msg, params...)

	switch key := cert.privateKey.(type) {
	case *rsa.PrivateKey:
		digest := sha256.Sum256(msg)
		sig, err = rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
		sigAlg = sigSchemeRSAPKCS1SHA256
	case *ecdsa.PrivateKey:
		h, alg := ecdsaHashFor(key)
		digest := h(msg)
		sig, err = ecdsa.SignASN1(rand.Reader, key, digest)
		sigAlg = alg
	default:
		return nil, 0, errors.New("tlsconn: unsupported signing key type")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("tlsconn: signing ServerKeyExchange: %w", err)
	}
	return sig, sigAlg, nil
}

// verifyServerECDHEParams checks the signature a server attached to its
// ServerKeyExchange, per RFC 5246 §7.4.3, against the peer leaf
// certificate's public key.
func verifyServerECDHEParams(cfg *Config, leaf *x509.Certificate, ch *clientHelloMsg, sh *serverHelloMsg, params []byte, sigField []byte) error {
	if len(sigField) < 4 {
		return errors.New("tlsconn: malformed ServerKeyExchange signature field")
	}
	sigAlg := uint16(sigField[0])<<8 | uint16(sigField[1])
	sigLen := int(sigField[2])<<8 | int(sigField[3])
	if len(sigField) != 4+sigLen {
		return errors.New("tlsconn: malformed ServerKeyExchange signature length")
	}
	sig := sigField[4:]

	msg := make([]byte, 0, 64+len(params))
	msg = append(msg, ch.random...)
	msg = append(msg, sh.random...)
	msg = append(msg, params...)

	switch pub := leaf.PublicKey.(type) {
	case *rsa.PublicKey:
		if sigAlg != sigSchemeRSAPKCS1SHA256 && sigAlg != sigSchemeRSAPKCS1SHA384 {
			return errors.New("tlsconn: unexpected signature algorithm for RSA key")
		}
		var digest []byte
		hashFn := crypto.SHA256
		if sigAlg == sigSchemeRSAPKCS1SHA384 {
			hashFn = crypto.SHA384
			d := sha512.Sum384(msg)
			digest = d[:]
		} else {
			d := sha256.Sum256(msg)
			digest = d[:]
		}
		if err := rsa.VerifyPKCS1v15(pub, hashFn, digest, sig); err != nil {
			return fmt.Errorf("tlsconn: ServerKeyExchange signature verification failed: %w", err)
		}
	case *ecdsa.PublicKey:
		if sigAlg != sigSchemeECDSAP256SHA256 && sigAlg != sigSchemeECDSAP384SHA384 {
			return errors.New("tlsconn: unexpected signature algorithm for ECDSA key")
		}
		var digest []byte
		if sigAlg == sigSchemeECDSAP384SHA384 {
			d := sha512.Sum384(msg)
			digest = d[:]
		} else {
			d := sha256.Sum256(msg)
			digest = d[:]
		}
		if !ecdsa.VerifyASN1(pub, digest, sig) {
			return errors.New("tlsconn: ServerKeyExchange signature verification failed")
		}
	default:
		return errors.New("tlsconn: unsupported server certificate public key type")
	}
	return nil
}

func ecdsaHashFor(key *ecdsa.PrivateKey) (func([]byte) []byte, uint16) {
	if key.Curve.Params().BitSize > 256 {
		return func(b []byte) []byte { d := sha512.Sum384(b); return d[:] }, sigSchemeECDSAP384SHA384
	}
	return func(b []byte) []byte { d := sha256.Sum256(b); return d[:] }, sigSchemeECDSAP256SHA256
}

// tls13CertVerifyContext builds RFC 8446 §4.4.3's signed content: 64
// spaces, a context string distinguishing client/server, a zero byte,
// then the transcript hash.
func tls13CertVerifyContext(transcriptHash []byte, serverSide bool) []byte {
	const pad = "                                                                "
	ctx := "TLS 1.3, server CertificateVerify"
	if !serverSide {
		ctx = "TLS 1.3, client CertificateVerify"
	}
	msg := make([]byte, 0, len(pad)+len(ctx)+1+len(transcriptHash))
	msg = append(msg, pad...)
	msg = append(msg, ctx...)
	msg = append(msg, 0)
	msg = append(msg, transcriptHash...)
	return msg
}

// signTLS13CertificateVerify signs a TLS 1.3 CertificateVerify over the
// transcript hash with the given leaf key (spec's supplemented TLS 1.3
// support; server-only in this package, since it never requests a
// client certificate).
func signTLS13CertificateVerify(cert *Certificate, transcriptHash []byte, serverSide bool) (*certificateVerifyMsg, error) {
	msg := tls13CertVerifyContext(transcriptHash, serverSide)
	switch key := cert.privateKey.(type) {
	case *rsa.PrivateKey:
		digest := sha256.Sum256(msg)
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
		sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], opts)
		if err != nil {
			return nil, fmt.Errorf("tlsconn: signing CertificateVerify: %w", err)
		}
		return &certificateVerifyMsg{signatureAlgorithm: sigSchemeRSAPSSRSAESHA256, signature: sig}, nil
	case *ecdsa.PrivateKey:
		h, alg := ecdsaHashFor(key)
		digest := h(msg)
		sig, err := ecdsa.SignASN1(rand.Reader, key, digest)
		if err != nil {
			return nil, fmt.Errorf("tlsconn: signing CertificateVerify: %w", err)
		}
		return &certificateVerifyMsg{signatureAlgorithm: alg, signature: sig}, nil
	default:
		return nil, errors.New("tlsconn: unsupported signing key type")
	}
}

// verifyTLS13CertificateVerify checks a peer's TLS 1.3 CertificateVerify
// against its leaf certificate's public key.
func verifyTLS13CertificateVerify(leaf *x509.Certificate, cv *certificateVerifyMsg, transcriptHash []byte, serverSide bool) error {
	msg := tls13CertVerifyContext(transcriptHash, serverSide)
	switch pub := leaf.PublicKey.(type) {
	case *rsa.PublicKey:
		if cv.signatureAlgorithm != sigSchemeRSAPSSRSAESHA256 {
			return errors.New("tlsconn: unexpected signature algorithm for RSA key")
		}
		digest := sha256.Sum256(msg)
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
		if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], cv.signature, opts); err != nil {
			return fmt.Errorf("tlsconn: CertificateVerify signature verification failed: %w", err)
		}
	case *ecdsa.PublicKey:
		if cv.signatureAlgorithm != sigSchemeECDSAP256SHA256 && cv.signatureAlgorithm != sigSchemeECDSAP384SHA384 {
			return errors.New("tlsconn: unexpected signature algorithm for ECDSA key")
		}
		var digest []byte
		if cv.signatureAlgorithm == sigSchemeECDSAP384SHA384 {
			d := sha512.Sum384(msg)
			digest = d[:]
		} else {
			d := sha256.Sum256(msg)
			digest = d[:]
		}
		if !ecdsa.VerifyASN1(pub, digest, cv.signature) {
			return errors.New("tlsconn: CertificateVerify signature verification failed")
		}
	default:
		return errors.New("tlsconn: unsupported certificate public key type")
	}
	return nil
}
