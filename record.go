// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBadRecordMAC is returned (wrapped in an *Error with CategoryProtocol)
// when a record fails authentication, per spec §4.2's "fatal
// bad_record_mac" edge case.
var ErrBadRecordMAC = errors.New("tlsconn: bad record MAC")

// cryptoParams is one direction's negotiated record-protection state
// (spec §4.6's "crypto-parameter bank"). A Connection holds two of
// these per direction (active, pending) so that legacy ChangeCipherSpec
// and TLS 1.3's independent per-direction switches can install a new
// bank without disturbing in-flight records on the other direction.
type cryptoParams struct {
	version uint16
	suite   *cipherSuite // nil when isTLS13 is true
	isTLS13 bool

	mac    macFunction // nil for AEAD suites
	aead   aead        // nil for MAC-then-encrypt suites
	stream cipher.Stream
	cbc    cipher.BlockMode

	seq [8]byte
}

func (c *cryptoParams) incSeq() {
	for i := 7; i >= 0; i-- {
		c.seq[i]++
		if c.seq[i] != 0 {
			return
		}
	}
	panic("tlsconn: sequence number wraparound")
}

// newCryptoParams builds the per-direction state from a key block entry,
// dispatching on the suite's cipher/mac/aead constructors (spec §4.3).
func newCryptoParams(version uint16, suite *cipherSuite, key, iv, macKey []byte, isRead bool) *cryptoParams {
	cp := &cryptoParams{version: version, suite: suite}
	if suite.aead != nil {
		cp.aead = suite.aead(key, iv)
		return cp
	}
	cp.mac = suite.mac(version, macKey)
	switch c := suite.cipher(key, iv, isRead).(type) {
	case cipher.Stream:
		cp.stream = c
	case cipher.BlockMode:
		cp.cbc = c
	default:
		panic("tlsconn: unknown cipher type from suite.cipher")
	}
	return cp
}

// newCryptoParamsTLS13 builds AEAD-only state for a TLS 1.3 traffic
// secret (spec §4.3's two-phase key schedule).
func newCryptoParamsTLS13(suite *cipherSuiteTLS13, key, iv []byte) *cryptoParams {
	return &cryptoParams{version: VersionTLS13, isTLS13: true, aead: suite.aead(key, iv)}
}

// newNullCryptoParams is the identity cipher a Connection starts with
// before either side installs real record-protection keys: ClientHello
// through ServerHelloDone (and, symmetrically, the server's first
// flight) travel in the clear, but readRecord always goes through
// readParams.open, so that path needs a no-op passthrough rather than a
// nil dereference.
func newNullCryptoParams() *cryptoParams {
	return &cryptoParams{}
}

func (c *cryptoParams) isNull() bool {
	return c.aead == nil && c.stream == nil && c.cbc == nil && c.mac == nil
}

// seal protects one record's plaintext payload, returning the full
// on-wire record (5-byte header plus ciphertext). typ is the outer
// record type the peer will see; for TLS 1.3 that is always
// application_data once handshake traffic keys are installed (RFC 8446
// §5.1's content-type-in-the-clear avoidance), with the real type
// appended to the plaintext before encryption.
func (c *cryptoParams) seal(typ recordType, version uint16, payload []byte) []byte {
	defer c.incSeq()

	if c.aead != nil {
		return c.sealAEAD(typ, version, payload)
	}
	if c.stream != nil {
		return c.sealStreamOrNone(typ, version, payload)
	}
	return c.sealCBC(typ, version, payload)
}

func (c *cryptoParams) sealAEAD(typ recordType, version uint16, payload []byte) []byte {
	plaintext := payload
	outerType := typ
	if c.isTLS13 {
		plaintext = append(append([]byte{}, payload...), byte(typ))
		outerType = recordTypeApplicationData
		version = recordLayerVersionTLS13
	}

	explicitNonce := make([]byte, c.aead.explicitNonceLen())
	if len(explicitNonce) > 0 {
		copy(explicitNonce, c.seq[8-len(explicitNonce):])
	}

	nonce := explicitNonce
	if len(nonce) == 0 {
		nonce = c.seq[:]
	}

	ciphertextLen := len(explicitNonce) + len(plaintext) + c.aead.Overhead()

	// RFC 5246 §6.2.3.3's pre-1.3 AEAD additional data is seq_num(8) ||
	// type(1) || version(2) || TLSCompressed.length(2), the plaintext
	// length. RFC 8446 §5.2 drops the sequence number (TLS 1.3 derives
	// the nonce from it instead) but its length field is the
	// post-encryption TLSCiphertext.length, the same value the on-wire
	// header below carries.
	var aad []byte
	if c.isTLS13 {
		aad = make([]byte, 5)
		aad[0] = byte(outerType)
		aad[1] = byte(version >> 8)
		aad[2] = byte(version)
		aad[3] = byte(ciphertextLen >> 8)
		aad[4] = byte(ciphertextLen)
	} else {
		aad = make([]byte, 13)
		copy(aad, c.seq[:])
		aad[8] = byte(outerType)
		aad[9] = byte(version >> 8)
		aad[10] = byte(version)
		aad[11] = byte(len(plaintext) >> 8)
		aad[12] = byte(len(plaintext))
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, aad)

	header := make([]byte, recordHeaderLen)
	header[0] = byte(outerType)
	header[1] = byte(version >> 8)
	header[2] = byte(version)
	header[3] = byte(ciphertextLen >> 8)
	header[4] = byte(ciphertextLen)

	out := make([]byte, 0, recordHeaderLen+len(explicitNonce)+len(sealed))
	out = append(out, header...)
	out = append(out, explicitNonce...)
	out = append(out, sealed...)
	return out
}

func (c *cryptoParams) sealStreamOrNone(typ recordType, version uint16, payload []byte) []byte {
	macHeader := make([]byte, recordHeaderLen)
	macHeader[0] = byte(typ)
	macHeader[1] = byte(version >> 8)
	macHeader[2] = byte(version)
	macHeader[3] = byte(len(payload) >> 8)
	macHeader[4] = byte(len(payload))

	macValue := c.mac.MAC(c.seq[:], macHeader, payload, nil)
	plaintext := append(append([]byte{}, payload...), macValue...)

	ciphertext := make([]byte, len(plaintext))
	c.stream.XORKeyStream(ciphertext, plaintext)

	header := macHeader
	header[3] = byte(len(ciphertext) >> 8)
	header[4] = byte(len(ciphertext))
	return append(header, ciphertext...)
}

func (c *cryptoParams) sealCBC(typ recordType, version uint16, payload []byte) []byte {
	macHeader := make([]byte, recordHeaderLen)
	macHeader[0] = byte(typ)
	macHeader[1] = byte(version >> 8)
	macHeader[2] = byte(version)
	macHeader[3] = byte(len(payload) >> 8)
	macHeader[4] = byte(len(payload))

	macValue := c.mac.MAC(c.seq[:], macHeader, payload, nil)

	blockSize := c.cbc.BlockSize()
	plaintext := append(append([]byte{}, payload...), macValue...)
	paddingLen := blockSize - (len(plaintext)+1)%blockSize
	for i := 0; i <= paddingLen; i++ {
		plaintext = append(plaintext, byte(paddingLen))
	}

	ciphertext := make([]byte, len(plaintext))
	c.cbc.CryptBlocks(ciphertext, plaintext)

	header := macHeader
	header[3] = byte(len(ciphertext) >> 8)
	header[4] = byte(len(ciphertext))
	return append(header, ciphertext...)
}

// open authenticates and decrypts one record's fragment (the part after
// the 5-byte header). It returns the recovered content type and
// plaintext. All failure paths funnel through a single bad_record_mac
// error so that MAC/padding failures are not distinguishable (Lucky-13
// discipline: constant-time MAC comparison, padding parsed in constant
// time relative to its own length).
func (c *cryptoParams) open(outerType recordType, version uint16, fragment []byte) (recordType, []byte, error) {
	if c.isNull() {
		return outerType, fragment, nil
	}
	defer c.incSeq()

	if c.aead != nil {
		return c.openAEAD(outerType, version, fragment)
	}
	if c.stream != nil {
		return c.openStream(outerType, version, fragment)
	}
	return c.openCBC(outerType, version, fragment)
}

func (c *cryptoParams) openAEAD(outerType recordType, version uint16, fragment []byte) (recordType, []byte, error) {
	explicitLen := c.aead.explicitNonceLen()
	if len(fragment) < explicitLen {
		return 0, nil, ErrBadRecordMAC
	}
	nonce := fragment[:explicitLen]
	ciphertext := fragment[explicitLen:]
	if len(nonce) == 0 {
		nonce = c.seq[:]
	}

	if len(ciphertext) < c.aead.Overhead() {
		return 0, nil, ErrBadRecordMAC
	}

	var aad []byte
	if c.isTLS13 {
		aad = make([]byte, 5)
		aad[0] = byte(outerType)
		aad[1] = byte(version >> 8)
		aad[2] = byte(version)
		aad[3] = byte(len(fragment) >> 8)
		aad[4] = byte(len(fragment))
	} else {
		plaintextLen := len(ciphertext) - c.aead.Overhead()
		aad = make([]byte, 13)
		copy(aad, c.seq[:])
		aad[8] = byte(outerType)
		aad[9] = byte(version >> 8)
		aad[10] = byte(version)
		aad[11] = byte(plaintextLen >> 8)
		aad[12] = byte(plaintextLen)
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return 0, nil, ErrBadRecordMAC
	}

	if !c.isTLS13 {
		return outerType, plaintext, nil
	}
	// TLS 1.3: the real content type is the last non-zero byte (RFC 8446
	// §5.4's zero padding before the type byte). No padding is produced
	// by this package's own sealAEAD, but peers may send some.
	i := len(plaintext) - 1
	for i >= 0 && plaintext[i] == 0 {
		i--
	}
	if i < 0 {
		return 0, nil, ErrBadRecordMAC
	}
	return recordType(plaintext[i]), plaintext[:i], nil
}

func (c *cryptoParams) openStream(outerType recordType, version uint16, fragment []byte) (recordType, []byte, error) {
	plaintext := make([]byte, len(fragment))
	c.stream.XORKeyStream(plaintext, fragment)

	macSize := c.mac.Size()
	if len(plaintext) < macSize {
		return 0, nil, ErrBadRecordMAC
	}
	data, recordMAC := plaintext[:len(plaintext)-macSize], plaintext[len(plaintext)-macSize:]

	header := make([]byte, recordHeaderLen)
	header[0] = byte(outerType)
	header[1] = byte(version >> 8)
	header[2] = byte(version)
	header[3] = byte(len(data) >> 8)
	header[4] = byte(len(data))

	expected := c.mac.MAC(c.seq[:], header, data, nil)
	if subtle.ConstantTimeCompare(expected, recordMAC) != 1 {
		return 0, nil, ErrBadRecordMAC
	}
	return outerType, data, nil
}

func (c *cryptoParams) openCBC(outerType recordType, version uint16, fragment []byte) (recordType, []byte, error) {
	blockSize := c.cbc.BlockSize()
	if len(fragment) < blockSize || len(fragment)%blockSize != 0 {
		return 0, nil, ErrBadRecordMAC
	}
	plaintext := make([]byte, len(fragment))
	c.cbc.CryptBlocks(plaintext, fragment)

	macSize := c.mac.Size()
	if len(plaintext) < macSize+1 {
		return 0, nil, ErrBadRecordMAC
	}

	paddingLen := int(plaintext[len(plaintext)-1])
	// Constant-time-ish bounds check: always compute a candidate split
	// point, never branch on whether padding "looks" valid before the
	// MAC comparison (Lucky-13 discipline; spec §4.2/§8's "no early
	// return before MAC check").
	goodPadding := 1
	if paddingLen > len(plaintext)-macSize-1 {
		goodPadding = 0
		paddingLen = 0
	}
	for i := 0; i < paddingLen; i++ {
		if plaintext[len(plaintext)-1-i] != byte(paddingLen) {
			goodPadding = 0
		}
	}

	dataEnd := len(plaintext) - macSize - paddingLen - 1
	if dataEnd < 0 {
		dataEnd = 0
	}
	data := plaintext[:dataEnd]
	recordMAC := plaintext[dataEnd : dataEnd+macSize]

	header := make([]byte, recordHeaderLen)
	header[0] = byte(outerType)
	header[1] = byte(version >> 8)
	header[2] = byte(version)
	header[3] = byte(len(data) >> 8)
	header[4] = byte(len(data))

	expected := c.mac.MAC(c.seq[:], header, data, plaintext[dataEnd+macSize:])
	macOK := subtle.ConstantTimeCompare(expected, recordMAC) == 1
	if !macOK || goodPadding == 0 {
		return 0, nil, ErrBadRecordMAC
	}
	return outerType, data, nil
}

// parseRecordHeader reads the 5-byte record header from the front of
// buf (spec §4.2's record codec), returning the declared content type,
// version, and fragment length.
func parseRecordHeader(buf []byte) (typ recordType, version uint16, length int, err error) {
	if len(buf) < recordHeaderLen {
		return 0, 0, 0, errors.New("tlsconn: record header too short")
	}
	typ = recordType(buf[0])
	version = binary.BigEndian.Uint16(buf[1:3])
	length = int(binary.BigEndian.Uint16(buf[3:5]))
	if length > maxRecordLen {
		return 0, 0, 0, fmt.Errorf("tlsconn: oversize record (%d bytes)", length)
	}
	return typ, version, length, nil
}

// chooseFragmentLength picks how many bytes of a larger message to pack
// into the next outbound record, honoring the negotiated
// max_fragment_length extension when set (spec's supplemented RFC 6066
// feature) and otherwise maxPlaintextLen.
func chooseFragmentLength(remaining int, maxFragmentLength int) int {
	limit := maxPlaintextLen
	if maxFragmentLength > 0 && maxFragmentLength < limit {
		limit = maxFragmentLength
	}
	if remaining < limit {
		return remaining
	}
	return limit
}

// maxFragmentLengthFromCode maps RFC 6066's one-byte max_fragment_length
// codes to a byte count, or 0 (meaning "use the protocol default") for
// an absent or unrecognized code.
func maxFragmentLengthFromCode(code uint8) int {
	switch code {
	case 1:
		return 1 << 9
	case 2:
		return 1 << 10
	case 3:
		return 1 << 11
	case 4:
		return 1 << 12
	default:
		return 0
	}
}
