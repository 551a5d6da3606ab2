// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// Extension type identifiers this package negotiates (spec §4.5).
const (
	extServerName           uint16 = 0
	extMaxFragmentLength    uint16 = 1
	extStatusRequest        uint16 = 5
	extSupportedGroups      uint16 = 10
	extSignatureAlgorithms  uint16 = 13
	extALPN                 uint16 = 16
	extRenegotiationInfo    uint16 = 0xff01
	extKeyShare             uint16 = 51
	extSupportedVersions    uint16 = 43
)

func marshalHandshakeMessage(msgType handshakeType, body []byte) []byte {
	out := make([]byte, 4+len(body))
	out[0] = byte(msgType)
	out[1] = byte(len(body) >> 16)
	out[2] = byte(len(body) >> 8)
	out[3] = byte(len(body))
	copy(out[4:], body)
	return out
}

// splitHandshakeHeader strips the 4-byte handshake header, returning the
// message type and body (spec §4.5's generic message framing).
func splitHandshakeHeader(data []byte) (msgType handshakeType, body []byte, err error) {
	if len(data) < 4 {
		return 0, nil, errors.New("tlsconn: handshake message too short")
	}
	length := int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if len(data) != 4+length {
		return 0, nil, errors.New("tlsconn: handshake message length mismatch")
	}
	return handshakeType(data[0]), data[4:], nil
}

// clientHelloMsg is RFC 5246 §7.4.1.2 / RFC 8446 §4.1.2's ClientHello.
type clientHelloMsg struct {
	vers                uint16
	random              []byte
	sessionID           []byte
	cipherSuites        []uint16
	compressionMethods  []byte

	serverName             string
	supportedGroups        []namedGroup
	signatureAlgorithms    []uint16
	alpnProtocols          []string
	supportedVersions      []uint16
	keyShareGroups         []namedGroup
	keyShareData           [][]byte
	secureRenegotiation    []byte
	renegotiationSupported bool
	maxFragmentLength      uint8 // 0 means absent
	ocspStapling           bool
}

func (m *clientHelloMsg) marshal() []byte {
	var b cryptobyte.Builder
	b.AddUint16(m.vers)
	b.AddBytes(m.random)
	b.AddUint8LengthPrefixed(func(c *cryptobyte.Builder) { c.AddBytes(m.sessionID) })
	b.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) {
		for _, s := range m.cipherSuites {
			c.AddUint16(s)
		}
	})
	b.AddUint8LengthPrefixed(func(c *cryptobyte.Builder) { c.AddBytes(m.compressionMethods) })

	b.AddUint16LengthPrefixed(func(exts *cryptobyte.Builder) {
		if m.serverName != "" {
			addExtension(exts, extServerName, func(c *cryptobyte.Builder) {
				c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
					list.AddUint8(0) // host_name
					list.AddUint16LengthPrefixed(func(name *cryptobyte.Builder) {
						name.AddBytes([]byte(m.serverName))
					})
				})
			})
		}
		if len(m.supportedGroups) > 0 {
			addExtension(exts, extSupportedGroups, func(c *cryptobyte.Builder) {
				c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
					for _, g := range m.supportedGroups {
						list.AddUint16(uint16(g))
					}
				})
			})
		}
		if len(m.signatureAlgorithms) > 0 {
			addExtension(exts, extSignatureAlgorithms, func(c *cryptobyte.Builder) {
				c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
					for _, a := range m.signatureAlgorithms {
						list.AddUint16(a)
					}
				})
			})
		}
		if len(m.alpnProtocols) > 0 {
			addExtension(exts, extALPN, func(c *cryptobyte.Builder) {
				c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
					for _, p := range m.alpnProtocols {
						list.AddUint8LengthPrefixed(func(proto *cryptobyte.Builder) {
							proto.AddBytes([]byte(p))
						})
					}
				})
			})
		}
		if len(m.supportedVersions) > 0 {
			addExtension(exts, extSupportedVersions, func(c *cryptobyte.Builder) {
				c.AddUint8LengthPrefixed(func(list *cryptobyte.Builder) {
					for _, v := range m.supportedVersions {
						list.AddUint16(v)
					}
				})
			})
		}
		if len(m.keyShareGroups) > 0 {
			addExtension(exts, extKeyShare, func(c *cryptobyte.Builder) {
				c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
					for i, g := range m.keyShareGroups {
						list.AddUint16(uint16(g))
						list.AddUint16LengthPrefixed(func(ks *cryptobyte.Builder) {
							ks.AddBytes(m.keyShareData[i])
						})
					}
				})
			})
		}
		if m.renegotiationSupported {
			addExtension(exts, extRenegotiationInfo, func(c *cryptobyte.Builder) {
				c.AddUint8LengthPrefixed(func(info *cryptobyte.Builder) {
					info.AddBytes(m.secureRenegotiation)
				})
			})
		}
		if m.maxFragmentLength != 0 {
			addExtension(exts, extMaxFragmentLength, func(c *cryptobyte.Builder) {
				c.AddUint8(m.maxFragmentLength)
			})
		}
		if m.ocspStapling {
			addExtension(exts, extStatusRequest, func(c *cryptobyte.Builder) {
				c.AddUint8(1) // status_type = ocsp
				c.AddUint16(0)
				c.AddUint16(0)
			})
		}
	})

	body, _ := b.Bytes()
	return marshalHandshakeMessage(handshakeTypeClientHello, body)
}

func addExtension(b *cryptobyte.Builder, typ uint16, body func(*cryptobyte.Builder)) {
	b.AddUint16(typ)
	b.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) { body(c) })
}

func (m *clientHelloMsg) unmarshal(data []byte) error {
	s := cryptobyte.String(data)
	if !s.ReadUint16(&m.vers) {
		return errors.New("tlsconn: malformed ClientHello")
	}
	m.random = make([]byte, 32)
	if !s.CopyBytes(m.random) {
		return errors.New("tlsconn: malformed ClientHello random")
	}
	var sessionID cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&sessionID) {
		return errors.New("tlsconn: malformed ClientHello session_id")
	}
	m.sessionID = append([]byte{}, sessionID...)

	var suites cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&suites) {
		return errors.New("tlsconn: malformed ClientHello cipher_suites")
	}
	for !suites.Empty() {
		var id uint16
		if !suites.ReadUint16(&id) {
			return errors.New("tlsconn: malformed cipher suite list")
		}
		m.cipherSuites = append(m.cipherSuites, id)
	}

	var comp cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&comp) {
		return errors.New("tlsconn: malformed ClientHello compression_methods")
	}
	m.compressionMethods = append([]byte{}, comp...)

	if s.Empty() {
		return nil // extensions are optional on the wire
	}
	var exts cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&exts) {
		return errors.New("tlsconn: malformed ClientHello extensions")
	}
	for !exts.Empty() {
		var extType uint16
		var extBody cryptobyte.String
		if !exts.ReadUint16(&extType) || !exts.ReadUint16LengthPrefixed(&extBody) {
			return errors.New("tlsconn: malformed extension")
		}
		if err := m.parseExtension(extType, extBody); err != nil {
			return err
		}
	}
	return nil
}

func (m *clientHelloMsg) parseExtension(typ uint16, body cryptobyte.String) error {
	switch typ {
	case extServerName:
		var list cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&list) {
			return errors.New("tlsconn: malformed server_name extension")
		}
		for !list.Empty() {
			var nameType uint8
			var name cryptobyte.String
			if !list.ReadUint8(&nameType) || !list.ReadUint16LengthPrefixed(&name) {
				return errors.New("tlsconn: malformed server_name entry")
			}
			if nameType == 0 {
				m.serverName = string(name)
			}
		}
	case extSupportedGroups:
		var list cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&list) {
			return errors.New("tlsconn: malformed supported_groups extension")
		}
		for !list.Empty() {
			var g uint16
			if !list.ReadUint16(&g) {
				return errors.New("tlsconn: malformed supported_groups entry")
			}
			m.supportedGroups = append(m.supportedGroups, namedGroup(g))
		}
	case extSignatureAlgorithms:
		var list cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&list) {
			return errors.New("tlsconn: malformed signature_algorithms extension")
		}
		for !list.Empty() {
			var a uint16
			if !list.ReadUint16(&a) {
				return errors.New("tlsconn: malformed signature_algorithms entry")
			}
			m.signatureAlgorithms = append(m.signatureAlgorithms, a)
		}
	case extALPN:
		var list cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&list) {
			return errors.New("tlsconn: malformed alpn extension")
		}
		for !list.Empty() {
			var proto cryptobyte.String
			if !list.ReadUint8LengthPrefixed(&proto) {
				return errors.New("tlsconn: malformed alpn entry")
			}
			m.alpnProtocols = append(m.alpnProtocols, string(proto))
		}
	case extSupportedVersions:
		var list cryptobyte.String
		if !body.ReadUint8LengthPrefixed(&list) {
			return errors.New("tlsconn: malformed supported_versions extension")
		}
		for !list.Empty() {
			var v uint16
			if !list.ReadUint16(&v) {
				return errors.New("tlsconn: malformed supported_versions entry")
			}
			m.supportedVersions = append(m.supportedVersions, v)
		}
	case extKeyShare:
		var list cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&list) {
			return errors.New("tlsconn: malformed key_share extension")
		}
		for !list.Empty() {
			var g uint16
			var ks cryptobyte.String
			if !list.ReadUint16(&g) || !list.ReadUint16LengthPrefixed(&ks) {
				return errors.New("tlsconn: malformed key_share entry")
			}
			m.keyShareGroups = append(m.keyShareGroups, namedGroup(g))
			m.keyShareData = append(m.keyShareData, append([]byte{}, ks...))
		}
	case extRenegotiationInfo:
		var info cryptobyte.String
		if !body.ReadUint8LengthPrefixed(&info) {
			return errors.New("tlsconn: malformed renegotiation_info extension")
		}
		m.secureRenegotiation = append([]byte{}, info...)
		m.renegotiationSupported = true
	case extMaxFragmentLength:
		var v uint8
		if !body.ReadUint8(&v) {
			return errors.New("tlsconn: malformed max_fragment_length extension")
		}
		m.maxFragmentLength = v
	case extStatusRequest:
		m.ocspStapling = true
	}
	return nil
}

// serverHelloMsg is RFC 5246 §7.4.1.3 / RFC 8446 §4.1.3's ServerHello.
type serverHelloMsg struct {
	vers              uint16
	random            []byte
	sessionID         []byte
	cipherSuite       uint16
	compressionMethod uint8

	alpnProtocol           string
	supportedVersion       uint16 // TLS 1.3's supported_versions echo, 0 if absent
	secureRenegotiation    []byte
	renegotiationSupported bool
	keyShareGroup          namedGroup
	keyShareData           []byte
	hasKeyShare            bool
}

func (m *serverHelloMsg) marshal() []byte {
	var b cryptobyte.Builder
	b.AddUint16(m.vers)
	b.AddBytes(m.random)
	b.AddUint8LengthPrefixed(func(c *cryptobyte.Builder) { c.AddBytes(m.sessionID) })
	b.AddUint16(m.cipherSuite)
	b.AddUint8(m.compressionMethod)

	b.AddUint16LengthPrefixed(func(exts *cryptobyte.Builder) {
		if m.alpnProtocol != "" {
			addExtension(exts, extALPN, func(c *cryptobyte.Builder) {
				c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
					list.AddUint8LengthPrefixed(func(proto *cryptobyte.Builder) {
						proto.AddBytes([]byte(m.alpnProtocol))
					})
				})
			})
		}
		if m.supportedVersion != 0 {
			addExtension(exts, extSupportedVersions, func(c *cryptobyte.Builder) {
				c.AddUint16(m.supportedVersion)
			})
		}
		if m.renegotiationSupported {
			addExtension(exts, extRenegotiationInfo, func(c *cryptobyte.Builder) {
				c.AddUint8LengthPrefixed(func(info *cryptobyte.Builder) {
					info.AddBytes(m.secureRenegotiation)
				})
			})
		}
		if m.hasKeyShare {
			addExtension(exts, extKeyShare, func(c *cryptobyte.Builder) {
				c.AddUint16(uint16(m.keyShareGroup))
				c.AddUint16LengthPrefixed(func(ks *cryptobyte.Builder) { ks.AddBytes(m.keyShareData) })
			})
		}
	})

	body, _ := b.Bytes()
	return marshalHandshakeMessage(handshakeTypeServerHello, body)
}

func (m *serverHelloMsg) unmarshal(data []byte) error {
	s := cryptobyte.String(data)
	if !s.ReadUint16(&m.vers) {
		return errors.New("tlsconn: malformed ServerHello")
	}
	m.random = make([]byte, 32)
	if !s.CopyBytes(m.random) {
		return errors.New("tlsconn: malformed ServerHello random")
	}
	var sessionID cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&sessionID) {
		return errors.New("tlsconn: malformed ServerHello session_id")
	}
	m.sessionID = append([]byte{}, sessionID...)
	if !s.ReadUint16(&m.cipherSuite) {
		return errors.New("tlsconn: malformed ServerHello cipher_suite")
	}
	var comp uint8
	if !s.ReadUint8(&comp) {
		return errors.New("tlsconn: malformed ServerHello compression_method")
	}
	m.compressionMethod = comp

	if s.Empty() {
		return nil
	}
	var exts cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&exts) {
		return errors.New("tlsconn: malformed ServerHello extensions")
	}
	for !exts.Empty() {
		var extType uint16
		var extBody cryptobyte.String
		if !exts.ReadUint16(&extType) || !exts.ReadUint16LengthPrefixed(&extBody) {
			return errors.New("tlsconn: malformed extension")
		}
		switch extType {
		case extALPN:
			var list cryptobyte.String
			if !extBody.ReadUint16LengthPrefixed(&list) {
				return errors.New("tlsconn: malformed alpn extension")
			}
			var proto cryptobyte.String
			if !list.ReadUint8LengthPrefixed(&proto) {
				return errors.New("tlsconn: malformed alpn entry")
			}
			m.alpnProtocol = string(proto)
		case extSupportedVersions:
			if !extBody.ReadUint16(&m.supportedVersion) {
				return errors.New("tlsconn: malformed supported_versions extension")
			}
		case extRenegotiationInfo:
			var info cryptobyte.String
			if !extBody.ReadUint8LengthPrefixed(&info) {
				return errors.New("tlsconn: malformed renegotiation_info extension")
			}
			m.secureRenegotiation = append([]byte{}, info...)
			m.renegotiationSupported = true
		case extKeyShare:
			var g uint16
			var ks cryptobyte.String
			if !extBody.ReadUint16(&g) || !extBody.ReadUint16LengthPrefixed(&ks) {
				return errors.New("tlsconn: malformed key_share extension")
			}
			m.keyShareGroup = namedGroup(g)
			m.keyShareData = append([]byte{}, ks...)
			m.hasKeyShare = true
		}
	}
	return nil
}

// serverKeyExchangeMsg carries the signed ECDHE parameters (RFC 5246
// §7.4.3). Opaque beyond the length prefix; key_agreement.go parses key.
type serverKeyExchangeMsg struct{ key []byte }

func (m *serverKeyExchangeMsg) marshal() []byte {
	return marshalHandshakeMessage(handshakeTypeServerKeyExchange, m.key)
}

func (m *serverKeyExchangeMsg) unmarshal(data []byte) error {
	m.key = append([]byte{}, data...)
	return nil
}

// clientKeyExchangeMsg carries either the RSA-encrypted pre-master secret
// or the client's ECDHE public value (RFC 5246 §7.4.7).
type clientKeyExchangeMsg struct{ ciphertext []byte }

func (m *clientKeyExchangeMsg) marshal() []byte {
	return marshalHandshakeMessage(handshakeTypeClientKeyExchange, m.ciphertext)
}

func (m *clientKeyExchangeMsg) unmarshal(data []byte) error {
	m.ciphertext = append([]byte{}, data...)
	return nil
}

// certificateMsg is RFC 5246 §7.4.2's Certificate. TLS 1.3 handshakes in
// this package encode and decode the same RFC 5246 form: there is no
// certificate_request_context byte and no per-certificate extensions
// block.
type certificateMsg struct{ certificates [][]byte }

func (m *certificateMsg) marshal() []byte {
	var b cryptobyte.Builder
	b.AddUint24LengthPrefixed(func(list *cryptobyte.Builder) {
		for _, c := range m.certificates {
			list.AddUint24LengthPrefixed(func(entry *cryptobyte.Builder) { entry.AddBytes(c) })
		}
	})
	body, _ := b.Bytes()
	return marshalHandshakeMessage(handshakeTypeCertificate, body)
}

func (m *certificateMsg) unmarshal(data []byte) error {
	s := cryptobyte.String(data)
	var list cryptobyte.String
	if !s.ReadUint24LengthPrefixed(&list) {
		return errors.New("tlsconn: malformed Certificate message")
	}
	for !list.Empty() {
		var entry cryptobyte.String
		if !list.ReadUint24LengthPrefixed(&entry) {
			return errors.New("tlsconn: malformed certificate entry")
		}
		m.certificates = append(m.certificates, append([]byte{}, entry...))
	}
	return nil
}

// certificateRequestMsg is RFC 5246 §7.4.4's CertificateRequest. Only its
// encode/decode exist; no handshake path sends or reads it.
type certificateRequestMsg struct {
	certificateTypes    []byte
	signatureAlgorithms []uint16
}

func (m *certificateRequestMsg) marshal() []byte {
	var b cryptobyte.Builder
	b.AddUint8LengthPrefixed(func(c *cryptobyte.Builder) { c.AddBytes(m.certificateTypes) })
	b.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) {
		for _, a := range m.signatureAlgorithms {
			c.AddUint16(a)
		}
	})
	b.AddUint16(0) // empty certificate_authorities
	body, _ := b.Bytes()
	return marshalHandshakeMessage(handshakeTypeCertificateRequest, body)
}

func (m *certificateRequestMsg) unmarshal(data []byte) error {
	s := cryptobyte.String(data)
	var types cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&types) {
		return errors.New("tlsconn: malformed CertificateRequest")
	}
	m.certificateTypes = append([]byte{}, types...)
	var sigAlgs cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&sigAlgs) {
		return errors.New("tlsconn: malformed CertificateRequest signature_algorithms")
	}
	for !sigAlgs.Empty() {
		var a uint16
		if !sigAlgs.ReadUint16(&a) {
			return errors.New("tlsconn: malformed signature_algorithms entry")
		}
		m.signatureAlgorithms = append(m.signatureAlgorithms, a)
	}
	return nil
}

// serverHelloDoneMsg is RFC 5246 §7.4.5's empty-body ServerHelloDone.
type serverHelloDoneMsg struct{}

func (serverHelloDoneMsg) marshal() []byte { return marshalHandshakeMessage(handshakeTypeServerHelloDone, nil) }

// certificateVerifyMsg is RFC 5246 §7.4.8 / RFC 8446 §4.4.3's
// CertificateVerify, used for client auth and for TLS 1.3's server proof
// of possession over the transcript.
type certificateVerifyMsg struct {
	signatureAlgorithm uint16
	signature          []byte
}

func (m *certificateVerifyMsg) marshal() []byte {
	var b cryptobyte.Builder
	b.AddUint16(m.signatureAlgorithm)
	b.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) { c.AddBytes(m.signature) })
	body, _ := b.Bytes()
	return marshalHandshakeMessage(handshakeTypeCertificateVerify, body)
}

func (m *certificateVerifyMsg) unmarshal(data []byte) error {
	s := cryptobyte.String(data)
	if !s.ReadUint16(&m.signatureAlgorithm) {
		return errors.New("tlsconn: malformed CertificateVerify")
	}
	var sig cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&sig) {
		return errors.New("tlsconn: malformed CertificateVerify signature")
	}
	m.signature = append([]byte{}, sig...)
	return nil
}

// finishedMsg is RFC 5246 §7.4.9 / RFC 8446 §4.4.4's Finished.
type finishedMsg struct{ verifyData []byte }

func (m *finishedMsg) marshal() []byte {
	return marshalHandshakeMessage(handshakeTypeFinished, m.verifyData)
}

func (m *finishedMsg) unmarshal(data []byte) error {
	m.verifyData = append([]byte{}, data...)
	return nil
}

// encryptedExtensionsMsg is RFC 8446 §4.3.1's EncryptedExtensions: the
// TLS 1.3 home for extensions that used to ride in ServerHello.
type encryptedExtensionsMsg struct{ alpnProtocol string }

func (m *encryptedExtensionsMsg) marshal() []byte {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(exts *cryptobyte.Builder) {
		if m.alpnProtocol != "" {
			addExtension(exts, extALPN, func(c *cryptobyte.Builder) {
				c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
					list.AddUint8LengthPrefixed(func(proto *cryptobyte.Builder) {
						proto.AddBytes([]byte(m.alpnProtocol))
					})
				})
			})
		}
	})
	body, _ := b.Bytes()
	return marshalHandshakeMessage(handshakeTypeEncryptedExtensions, body)
}

func (m *encryptedExtensionsMsg) unmarshal(data []byte) error {
	s := cryptobyte.String(data)
	var exts cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&exts) {
		return errors.New("tlsconn: malformed EncryptedExtensions")
	}
	for !exts.Empty() {
		var extType uint16
		var extBody cryptobyte.String
		if !exts.ReadUint16(&extType) || !exts.ReadUint16LengthPrefixed(&extBody) {
			return errors.New("tlsconn: malformed extension")
		}
		if extType == extALPN {
			var list cryptobyte.String
			if !extBody.ReadUint16LengthPrefixed(&list) {
				return errors.New("tlsconn: malformed alpn extension")
			}
			var proto cryptobyte.String
			if !list.ReadUint8LengthPrefixed(&proto) {
				return errors.New("tlsconn: malformed alpn entry")
			}
			m.alpnProtocol = string(proto)
		}
	}
	return nil
}

// newSessionTicketMsg is RFC 5246 §7.4.6 / RFC 8446 §4.6.1's
// NewSessionTicket. Session resumption is a Non-goal; this type only
// decodes the message body, and no handshake or Recv path calls it: a
// NewSessionTicket arriving after the handshake makes Recv return an
// unexpected-record-type error.
type newSessionTicketMsg struct{ raw []byte }

func (m *newSessionTicketMsg) unmarshal(data []byte) error {
	m.raw = append([]byte{}, data...)
	return nil
}

// selectALPNProtocol walks the server's preference list against the
// client's offer, returning the first server-preferred match (spec
// §4.5's ALPN selection algorithm; RFC 7301 leaves order to the server).
func selectALPNProtocol(serverPreferences, clientOffer []string) (string, error) {
	for _, want := range serverPreferences {
		for _, got := range clientOffer {
			if want == got {
				return want, nil
			}
		}
	}
	return "", fmt.Errorf("tlsconn: no mutually supported application protocol")
}
