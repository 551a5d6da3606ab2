// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// namedGroup identifies an ECDHE curve / KEM group, shared between the
// TLS 1.2 ServerKeyExchange curve field and the TLS 1.3 key_share
// extension (RFC 8446 §4.2.7).
type namedGroup uint16

const (
	groupX25519 namedGroup = 0x001d
	groupP256   namedGroup = 0x0017
	groupP384   namedGroup = 0x0018

	// groupMLKEM768 is a private-use codepoint (RFC 8446 §4.2.7's
	// 0xFE00-0xFEFF range) carrying an ML-KEM-768 key_share instead of an
	// ECDHE one; see kem.go.
	groupMLKEM768 namedGroup = 0xfe31
)

// kemSchemeForGroup maps a negotiated namedGroup to the KEM scheme it
// carries, or ok=false for an ECDHE group.
func kemSchemeForGroup(g namedGroup) (KEMScheme, bool) {
	if g == groupMLKEM768 {
		return KEMMLKEM768, true
	}
	return "", false
}

func groupForKEMScheme(s KEMScheme) namedGroup {
	switch s {
	case KEMMLKEM768:
		return groupMLKEM768
	default:
		return 0
	}
}

func (g namedGroup) curve() (ecdh.Curve, bool) {
	switch g {
	case groupP256:
		return ecdh.P256(), true
	case groupP384:
		return ecdh.P384(), true
	default:
		return nil, false
	}
}

// rsaKeyAgreement implements the static-RSA key exchange: the client
// picks the pre-master secret, encrypts it under the server's RSA public
// key, and there is no ServerKeyExchange message (spec §4.2's keyAgreement
// doc: "generateServerKeyExchange can return nil, nil").
type rsaKeyAgreement struct{}

func (rsaKeyAgreement) generateServerKeyExchange(cfg *Config, cert *Certificate, ch *clientHelloMsg, sh *serverHelloMsg) (*serverKeyExchangeMsg, error) {
	return nil, nil
}

func (rsaKeyAgreement) processClientKeyExchange(cfg *Config, cert *Certificate, cke *clientKeyExchangeMsg, version uint16) ([]byte, error) {
	priv, ok := cert.privateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("tlsconn: certificate private key is not RSA")
	}
	if len(cke.ciphertext) < 2 {
		return nil, errors.New("tlsconn: malformed RSA ClientKeyExchange")
	}
	encrypted := cke.ciphertext[2:]

	preMaster, err := rsa.DecryptPKCS1v15(rand.Reader, priv, encrypted)
	// RFC 5246 §7.4.7.1's Bleichenbacher countermeasure: on any failure
	// (or a malformed result) substitute random bytes with the client's
	// offered version, and proceed as if decryption succeeded. The
	// failure is only distinguishable from success by the handshake
	// ultimately failing at Finished verification.
	good := err == nil && len(preMaster) == 48
	if good {
		good = preMaster[0] == byte(version>>8) && preMaster[1] == byte(version)
	}
	randomPreMaster := make([]byte, 48)
	if _, rerr := rand.Read(randomPreMaster); rerr != nil {
		return nil, rerr
	}
	randomPreMaster[0] = byte(version >> 8)
	randomPreMaster[1] = byte(version)
	if !good {
		preMaster = randomPreMaster
	}
	return preMaster, nil
}

func (rsaKeyAgreement) processServerKeyExchange(cfg *Config, ch *clientHelloMsg, sh *serverHelloMsg, cert *x509.Certificate, skx *serverKeyExchangeMsg) error {
	return errors.New("tlsconn: unexpected ServerKeyExchange for RSA key exchange")
}

func (rsaKeyAgreement) generateClientKeyExchange(cfg *Config, ch *clientHelloMsg, cert *x509.Certificate) ([]byte, *clientKeyExchangeMsg, error) {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, errors.New("tlsconn: server certificate does not contain an RSA public key")
	}

	preMaster := make([]byte, 48)
	preMaster[0] = byte(ch.vers >> 8)
	preMaster[1] = byte(ch.vers)
	if _, err := rand.Read(preMaster[2:]); err != nil {
		return nil, nil, err
	}

	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, pub, preMaster)
	if err != nil {
		return nil, nil, err
	}
	cke := &clientKeyExchangeMsg{}
	cke.ciphertext = make([]byte, 0, 2+len(encrypted))
	cke.ciphertext = append(cke.ciphertext, byte(len(encrypted)>>8), byte(len(encrypted)))
	cke.ciphertext = append(cke.ciphertext, encrypted...)
	return preMaster, cke, nil
}

// ecdheKeyAgreement implements ephemeral (EC)DHE key exchange for both
// RSA- and ECDSA-authenticated suites (spec §4.2's ecdheRSAKA/
// ecdheECDSAKA constructors). x25519 is preferred; P-256/P-384 are
// offered for interoperability.
type ecdheKeyAgreement struct {
	isRSA   bool
	version uint16

	group namedGroup

	// server side
	privX25519 *[32]byte
	privEC     *ecdh.PrivateKey

	// client side, stashed between generate/process calls
	clientPriv       *ecdh.PrivateKey
	clientX          *[32]byte
	stashedServerPub []byte
}

func (ka *ecdheKeyAgreement) pickGroup(offered []namedGroup) namedGroup {
	for _, want := range []namedGroup{groupX25519, groupP256, groupP384} {
		for _, g := range offered {
			if g == want {
				return g
			}
		}
	}
	return groupX25519
}

func (ka *ecdheKeyAgreement) generateServerKeyExchange(cfg *Config, cert *Certificate, ch *clientHelloMsg, sh *serverHelloMsg) (*serverKeyExchangeMsg, error) {
	ka.group = ka.pickGroup(ch.supportedGroups)

	var pub []byte
	if ka.group == groupX25519 {
		var priv [32]byte
		if _, err := rand.Read(priv[:]); err != nil {
			return nil, err
		}
		ka.privX25519 = &priv
		out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
		if err != nil {
			return nil, err
		}
		pub = out
	} else {
		curve, _ := ka.group.curve()
		priv, err := curve.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		ka.privEC = priv
		pub = priv.PublicKey().Bytes()
	}

	ecdhePublic := make([]byte, 0, 4+len(pub))
	ecdhePublic = append(ecdhePublic, 3 /* named_curve */, byte(ka.group>>8), byte(ka.group))
	ecdhePublic = append(ecdhePublic, byte(len(pub)))
	ecdhePublic = append(ecdhePublic, pub...)

	sig, sigAlg, err := signServerECDHEParams(cfg, cert, ch, sh, ecdhePublic)
	if err != nil {
		return nil, err
	}

	skx := &serverKeyExchangeMsg{}
	skx.key = append(ecdhePublic, byte(sigAlg>>8), byte(sigAlg))
	skx.key = append(skx.key, byte(len(sig)>>8), byte(len(sig)))
	skx.key = append(skx.key, sig...)
	return skx, nil
}

func (ka *ecdheKeyAgreement) processClientKeyExchange(cfg *Config, cert *Certificate, cke *clientKeyExchangeMsg, version uint16) ([]byte, error) {
	if len(cke.ciphertext) < 1 {
		return nil, errors.New("tlsconn: malformed ECDHE ClientKeyExchange")
	}
	peerPub := cke.ciphertext[1:]

	if ka.group == groupX25519 {
		if len(peerPub) != 32 {
			return nil, errors.New("tlsconn: malformed x25519 client public value")
		}
		shared, err := curve25519.X25519(ka.privX25519[:], peerPub)
		if err != nil {
			return nil, fmt.Errorf("tlsconn: x25519: %w", err)
		}
		return shared, nil
	}

	curve, _ := ka.group.curve()
	peerKey, err := curve.NewPublicKey(peerPub)
	if err != nil {
		return nil, fmt.Errorf("tlsconn: invalid EC client public value: %w", err)
	}
	shared, err := ka.privEC.ECDH(peerKey)
	if err != nil {
		return nil, err
	}
	return shared, nil
}

func (ka *ecdheKeyAgreement) processServerKeyExchange(cfg *Config, ch *clientHelloMsg, sh *serverHelloMsg, certPub *x509.Certificate, skx *serverKeyExchangeMsg) error {
	if len(skx.key) < 4 {
		return errors.New("tlsconn: malformed ServerKeyExchange")
	}
	if skx.key[0] != 3 {
		return errors.New("tlsconn: unsupported ECDHE curve type")
	}
	ka.group = namedGroup(uint16(skx.key[1])<<8 | uint16(skx.key[2]))
	pubLen := int(skx.key[3])
	if len(skx.key) < 4+pubLen {
		return errors.New("tlsconn: malformed ServerKeyExchange public value")
	}
	serverPub := skx.key[4 : 4+pubLen]
	sigStart := 4 + pubLen

	if err := verifyServerECDHEParams(cfg, certPub, ch, sh, skx.key[:sigStart], skx.key[sigStart:]); err != nil {
		return err
	}

	if ka.group == groupX25519 {
		var priv [32]byte
		if _, err := rand.Read(priv[:]); err != nil {
			return err
		}
		ka.clientX = &priv
		if len(serverPub) != 32 {
			return errors.New("tlsconn: malformed x25519 server public value")
		}
		ka.stashedServerPub = serverPub
		return nil
	}

	curve, ok := ka.group.curve()
	if !ok {
		return errors.New("tlsconn: unsupported named group")
	}
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	ka.clientPriv = priv
	if _, err := curve.NewPublicKey(serverPub); err != nil {
		return fmt.Errorf("tlsconn: invalid EC server public value: %w", err)
	}
	ka.stashedServerPub = serverPub
	return nil
}

func (ka *ecdheKeyAgreement) generateClientKeyExchange(cfg *Config, ch *clientHelloMsg, certPub *x509.Certificate) ([]byte, *clientKeyExchangeMsg, error) {
	var pub []byte
	var shared []byte
	var err error

	if ka.group == groupX25519 {
		pub, err = curve25519.X25519(ka.clientX[:], curve25519.Basepoint)
		if err != nil {
			return nil, nil, err
		}
		shared, err = curve25519.X25519(ka.clientX[:], ka.stashedServerPub)
		if err != nil {
			return nil, nil, err
		}
	} else {
		curve, _ := ka.group.curve()
		pub = ka.clientPriv.PublicKey().Bytes()
		serverKey, kerr := curve.NewPublicKey(ka.stashedServerPub)
		if kerr != nil {
			return nil, nil, kerr
		}
		shared, err = ka.clientPriv.ECDH(serverKey)
		if err != nil {
			return nil, nil, err
		}
	}

	cke := &clientKeyExchangeMsg{}
	cke.ciphertext = append([]byte{byte(len(pub))}, pub...)
	return shared, cke, nil
}
