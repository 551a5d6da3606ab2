// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"bytes"
	"crypto"
	"testing"

	_ "crypto/sha256"
	_ "crypto/sha512"
)

func TestHKDFExpandLabelIsDeterministicAndLengthCorrect(t *testing.T) {
	secret := bytes.Repeat([]byte{0x01}, 32)
	out1 := hkdfExpandLabel(crypto.SHA256.New, secret, "key", nil, 16)
	out2 := hkdfExpandLabel(crypto.SHA256.New, secret, "key", nil, 16)
	if !bytes.Equal(out1, out2) {
		t.Fatal("hkdfExpandLabel is not deterministic for identical inputs")
	}
	if len(out1) != 16 {
		t.Fatalf("len(out) = %d, want 16", len(out1))
	}
}

func TestHKDFExpandLabelVariesWithLabelAndContext(t *testing.T) {
	secret := bytes.Repeat([]byte{0x02}, 32)
	key := hkdfExpandLabel(crypto.SHA256.New, secret, "key", nil, 16)
	iv := hkdfExpandLabel(crypto.SHA256.New, secret, "iv", nil, 16)
	if bytes.Equal(key, iv) {
		t.Fatal("distinct labels produced identical HKDF-Expand-Label output")
	}

	withContext := hkdfExpandLabel(crypto.SHA256.New, secret, "key", []byte("ctx"), 16)
	if bytes.Equal(key, withContext) {
		t.Fatal("adding a context did not change HKDF-Expand-Label output")
	}
}

func TestSchedule13ClientAndServerSecretsDiffer(t *testing.T) {
	sched := newSchedule13(crypto.SHA256)
	sched.extractHandshakeSecret(bytes.Repeat([]byte{0xab}, 32))

	transcript := bytes.Repeat([]byte{0xcd}, 32)
	clientHS, serverHS := sched.handshakeTrafficSecrets(transcript)
	if bytes.Equal(clientHS, serverHS) {
		t.Fatal("client and server handshake traffic secrets must differ")
	}
	if len(clientHS) != crypto.SHA256.Size() || len(serverHS) != crypto.SHA256.Size() {
		t.Fatalf("handshake traffic secret lengths = %d/%d, want %d", len(clientHS), len(serverHS), crypto.SHA256.Size())
	}

	clientAP, serverAP := sched.applicationTrafficSecrets(transcript)
	if bytes.Equal(clientAP, serverAP) {
		t.Fatal("client and server application traffic secrets must differ")
	}
	if bytes.Equal(clientHS, clientAP) {
		t.Fatal("handshake and application traffic secrets collided")
	}
}

func TestSchedule13IsDeterministicGivenSameSharedSecretAndTranscript(t *testing.T) {
	shared := bytes.Repeat([]byte{0x11}, 32)
	transcript := bytes.Repeat([]byte{0x22}, 32)

	a := newSchedule13(crypto.SHA256)
	a.extractHandshakeSecret(shared)
	aClient, aServer := a.handshakeTrafficSecrets(transcript)

	b := newSchedule13(crypto.SHA256)
	b.extractHandshakeSecret(shared)
	bClient, bServer := b.handshakeTrafficSecrets(transcript)

	if !bytes.Equal(aClient, bClient) || !bytes.Equal(aServer, bServer) {
		t.Fatal("schedule13 is not deterministic given identical shared secret and transcript")
	}
}

func TestSchedule13DifferentSharedSecretsProduceDifferentHandshakeSecrets(t *testing.T) {
	transcript := bytes.Repeat([]byte{0x33}, 32)

	a := newSchedule13(crypto.SHA256)
	a.extractHandshakeSecret(bytes.Repeat([]byte{0x44}, 32))
	aClient, _ := a.handshakeTrafficSecrets(transcript)

	b := newSchedule13(crypto.SHA256)
	b.extractHandshakeSecret(bytes.Repeat([]byte{0x55}, 32))
	bClient, _ := b.handshakeTrafficSecrets(transcript)

	if bytes.Equal(aClient, bClient) {
		t.Fatal("different ECDHE/KEM shared secrets produced identical handshake traffic secrets")
	}
}

func TestTrafficKeyAndIVLengths(t *testing.T) {
	sched := newSchedule13(crypto.SHA384)
	secret := bytes.Repeat([]byte{0x66}, crypto.SHA384.Size())
	key, iv := sched.trafficKeyAndIV(secret, 32)
	if len(key) != 32 {
		t.Fatalf("len(key) = %d, want 32", len(key))
	}
	if len(iv) != aeadNonceLength {
		t.Fatalf("len(iv) = %d, want %d", len(iv), aeadNonceLength)
	}
}

func TestFinishedVerifyDataChangesWithTranscript(t *testing.T) {
	sched := newSchedule13(crypto.SHA256)
	secret := bytes.Repeat([]byte{0x77}, crypto.SHA256.Size())

	vd1 := sched.finishedVerifyData(secret, []byte("transcript a"))
	vd2 := sched.finishedVerifyData(secret, []byte("transcript b"))
	if bytes.Equal(vd1, vd2) {
		t.Fatal("finishedVerifyData did not change when the transcript changed")
	}
	if len(vd1) != crypto.SHA256.Size() {
		t.Fatalf("len(verify_data) = %d, want %d", len(vd1), crypto.SHA256.Size())
	}
}
