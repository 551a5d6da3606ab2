// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

// Protocol version numbers, as they appear on the wire (RFC 2246 §A.1,
// RFC 4346, RFC 5246, RFC 8446).
const (
	VersionSSL30 uint16 = 0x0300
	VersionTLS10 uint16 = 0x0301
	VersionTLS11 uint16 = 0x0302
	VersionTLS12 uint16 = 0x0303
	VersionTLS13 uint16 = 0x0304

	// recordLayerVersionTLS13 is the version byte TLS 1.3 records carry
	// on the wire for middlebox compatibility (spec §6); the "real"
	// negotiated version travels in the supported_versions extension.
	recordLayerVersionTLS13 = VersionTLS12

	// initialClientHelloRecordVersion is what the very first ClientHello
	// record advertises regardless of the versions offered inside it
	// (spec §6: "{3,1} for broad compatibility").
	initialClientHelloRecordVersion = VersionTLS10
)

// recordType identifies the content of a TLS record (spec §4.2).
type recordType uint8

const (
	recordTypeChangeCipherSpec recordType = 20
	recordTypeAlert            recordType = 21
	recordTypeHandshake        recordType = 22
	recordTypeApplicationData  recordType = 23
)

func (t recordType) String() string {
	switch t {
	case recordTypeChangeCipherSpec:
		return "change_cipher_spec"
	case recordTypeAlert:
		return "alert"
	case recordTypeHandshake:
		return "handshake"
	case recordTypeApplicationData:
		return "application_data"
	default:
		return "unknown_record_type"
	}
}

// handshakeType identifies the type of a handshake message (RFC 5246
// §7.4, RFC 8446 §4).
type handshakeType uint8

const (
	handshakeTypeHelloRequest       handshakeType = 0
	handshakeTypeClientHello        handshakeType = 1
	handshakeTypeServerHello        handshakeType = 2
	handshakeTypeNewSessionTicket   handshakeType = 4
	handshakeTypeEncryptedExtensions handshakeType = 8
	handshakeTypeCertificate        handshakeType = 11
	handshakeTypeServerKeyExchange  handshakeType = 12
	handshakeTypeCertificateRequest handshakeType = 13
	handshakeTypeServerHelloDone    handshakeType = 14
	handshakeTypeCertificateVerify  handshakeType = 15
	handshakeTypeClientKeyExchange  handshakeType = 16
	handshakeTypeFinished           handshakeType = 20
)

// maxPlaintextLen is the TLS-mandated ceiling on a record's plaintext
// payload (spec §4.2): 2^14 bytes.
const maxPlaintextLen = 1 << 14

// maxCiphertextOverhead is the padding/MAC/IV/tag headroom allowed on
// top of maxPlaintextLen (spec §4.2: "length <= 2^14 + padding_overhead").
const maxCiphertextOverhead = 256

// maxRecordLen is the absolute ceiling on an on-wire record length field
// (spec §4.2's "Reject oversize with bad-record", 16640 = 2^14 + 256).
const maxRecordLen = maxPlaintextLen + maxCiphertextOverhead

// recordHeaderLen is the fixed 5-byte record header length.
const recordHeaderLen = 5

func isSupportedVersion(v uint16) bool {
	switch v {
	case VersionTLS10, VersionTLS11, VersionTLS12, VersionTLS13:
		return true
	default:
		return false
	}
}
