// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// clientHandshake drives the client side of the state machine described
// in spec §4.4. Each step can return a blocked error surfaced from the
// Connection's Transport; resume() re-enters at the first unfinished
// step, and every step is written to be a no-op if it already ran (spec
// §3's re-entrant "blocked(direction)" discipline).
type clientHandshake struct {
	c *Connection

	step int

	hello            *clientHelloMsg
	clientX25519Priv *[32]byte
	clientKEM        KEM

	serverHello  *serverHelloMsg
	ka           keyAgreement
	peerLeaf     *x509.Certificate
	preMaster    []byte
	masterSecret []byte

	// per-message checkpoints for the legacy Certificate / (optional
	// ServerKeyExchange) / ServerHelloDone flight, so a would-block
	// between reads re-enters at the right message instead of
	// re-requesting, or re-processing, one already consumed.
	postCertMsgSeen            bool
	postCertMsgType            handshakeType
	postCertMsgBody            []byte
	postCertBody               []byte
	serverKeyExchangeProcessed bool
	serverHelloDoneSeen        bool

	sched13        *schedule13
	clientHSSecret []byte
	serverHSSecret []byte

	// tls13GotServerFinished latches once the server's Finished is
	// verified, so tls13ReadServerHandshakeFlight never loops back into
	// readRecord waiting on a server message that was the last one
	// coming. tls13ClientFinSent and pendingClientFinRecord checkpoint
	// the client's own Finished the same way sendServerChangeCipherSpec-
	// AndFinished does on the server side: seal once, then let flush
	// alone be retried.
	tls13GotServerFinished      bool
	tls13ClientFinSent          bool
	pendingClientFinRecord      []byte
	preClientFinishedTranscript []byte
}

func newClientHandshake(c *Connection) *clientHandshake {
	return &clientHandshake{c: c}
}

func (h *clientHandshake) resume() error {
	steps := []func() error{
		h.sendClientHello,
		h.readServerHello,
	}
	for h.step < len(steps) {
		if err := steps[h.step](); err != nil {
			return err
		}
		h.step++
	}

	if h.c.version >= VersionTLS13 {
		return h.resumeTLS13()
	}
	return h.resumeLegacy()
}

func (h *clientHandshake) resumeLegacy() error {
	steps := []func() error{
		h.readServerCertificate,
		h.readServerKeyExchangeOrHelloDone,
		h.finishKeyExchangeAndSendClientFinished,
		h.readServerFinished,
	}
	for h.step-2 < len(steps) {
		if err := steps[h.step-2](); err != nil {
			return err
		}
		h.step++
	}
	return nil
}

func (h *clientHandshake) resumeTLS13() error {
	steps := []func() error{
		h.tls13ReadServerHandshakeFlight,
		h.tls13SendClientFinished,
	}
	for h.step-2 < len(steps) {
		if err := steps[h.step-2](); err != nil {
			return err
		}
		h.step++
	}
	return nil
}

func (h *clientHandshake) transcript() *transcriptHash {
	if h.c.transcript == nil {
		h.c.transcript = newLegacyTranscript()
	}
	return h.c.transcript
}

func (h *clientHandshake) sendClientHello() error {
	if h.hello != nil {
		return nil
	}
	cfg := h.c.config

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return newError(CategoryInternal, err)
	}

	hello := &clientHelloMsg{
		vers:                   initialClientHelloRecordVersion,
		random:                 random,
		sessionID:              nil,
		compressionMethods:     []byte{0},
		serverName:             h.c.serverName,
		supportedGroups:        []namedGroup{groupX25519, groupP256, groupP384},
		signatureAlgorithms:    []uint16{sigSchemeECDSAP256SHA256, sigSchemeRSAPKCS1SHA256, sigSchemeECDSAP384SHA384, sigSchemeRSAPKCS1SHA384},
		alpnProtocols:          h.c.alpnProtocols,
		supportedVersions:      cfg.supportedVersions(),
		ocspStapling:           h.c.statusRequestType == 1,
		renegotiationSupported: true,
	}
	hello.cipherSuites = cipherIDsFor(cfg)

	if cfg.maxVersion() >= VersionTLS13 {
		var priv [32]byte
		if _, err := rand.Read(priv[:]); err != nil {
			return newError(CategoryInternal, err)
		}
		h.clientX25519Priv = &priv
		pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
		if err != nil {
			return newError(CategoryInternal, err)
		}
		hello.keyShareGroups = []namedGroup{groupX25519}
		hello.keyShareData = [][]byte{pub}

		if len(cfg.KEMPreferences) > 0 {
			kem, err := newKEM(cfg.KEMPreferences[0])
			if err != nil {
				return newError(CategoryInternal, err)
			}
			kemPub, err := kem.GenerateKeyPair()
			if err != nil {
				return newError(CategoryInternal, err)
			}
			h.clientKEM = kem
			hello.keyShareGroups = append(hello.keyShareGroups, groupForKEMScheme(cfg.KEMPreferences[0]))
			hello.keyShareData = append(hello.keyShareData, kemPub)
		}
	}

	h.hello = hello
	msg := hello.marshal()
	h.transcript().Write(msg)
	return h.c.flush(plainRecord(recordTypeHandshake, initialClientHelloRecordVersion, msg))
}

func (h *clientHandshake) readServerHello() error {
	if h.serverHello != nil {
		return nil
	}
	typ, body, err := h.c.readRecord()
	if err != nil {
		return err
	}
	if typ != recordTypeHandshake {
		return h.fatal(alertUnexpectedMessage, fmt.Errorf("tlsconn: expected ServerHello record"))
	}
	msgType, msgBody, err := splitHandshakeHeader(body)
	if err != nil || msgType != handshakeTypeServerHello {
		return h.fatal(alertUnexpectedMessage, fmt.Errorf("tlsconn: expected ServerHello message"))
	}
	h.transcript().Write(body)

	sh := &serverHelloMsg{}
	if err := sh.unmarshal(msgBody); err != nil {
		return h.fatal(alertDecodeError, err)
	}
	h.serverHello = sh

	negotiated := sh.vers
	if sh.supportedVersion != 0 {
		negotiated = sh.supportedVersion
	}
	if !isSupportedVersion(negotiated) {
		return h.fatal(alertProtocolVersion, fmt.Errorf("tlsconn: unsupported negotiated version"))
	}
	// RFC 8446 §4.1.3 downgrade sentinel.
	if h.c.config.maxVersion() >= VersionTLS13 && negotiated < VersionTLS13 && isDowngradeSentinel(sh.random) {
		return h.fatal(alertIllegalParameter, fmt.Errorf("tlsconn: downgrade indicator detected"))
	}
	h.c.version = negotiated
	h.c.negotiatedALPN = sh.alpnProtocol

	if negotiated >= VersionTLS13 {
		suite := cipherSuiteTLS13ByID(sh.cipherSuite)
		if suite == nil {
			return h.fatal(alertHandshakeFailure, fmt.Errorf("tlsconn: server chose unsupported TLS 1.3 suite"))
		}
		h.c.suite13 = suite
		return h.tls13DeriveHandshakeSecrets()
	}

	suite := cipherSuiteByID(sh.cipherSuite)
	if suite == nil {
		return h.fatal(alertHandshakeFailure, fmt.Errorf("tlsconn: server chose unsupported cipher suite"))
	}
	h.c.suite = suite
	h.ka = suite.ka(negotiated)
	return nil
}

// readServerCertificate consumes the server's Certificate message, its
// own checkpoint so a blocked read in readServerKeyExchangeOrHelloDone
// never re-requests it.
func (h *clientHandshake) readServerCertificate() error {
	if h.peerLeaf != nil {
		return nil
	}
	typ, body, err := h.c.readRecord()
	if err != nil {
		return err
	}
	if typ != recordTypeHandshake {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected Certificate record"))
	}
	msgType, msgBody, err := splitHandshakeHeader(body)
	if err != nil || msgType != handshakeTypeCertificate {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected Certificate message"))
	}
	h.transcript().Write(body)

	cm := &certificateMsg{}
	if err := cm.unmarshal(msgBody); err != nil || len(cm.certificates) == 0 {
		return h.fatal(alertDecodeError, errors.New("tlsconn: malformed Certificate message"))
	}
	leaf, err := x509.ParseCertificate(cm.certificates[0])
	if err != nil {
		return h.fatal(alertBadCertificate, err)
	}
	h.peerLeaf = leaf
	return nil
}

// readServerKeyExchangeOrHelloDone consumes the message following
// Certificate: either a ServerKeyExchange (processed once, then a
// further ServerHelloDone read) or ServerHelloDone directly. Each read
// and the ServerKeyExchange processing are individually checkpointed,
// so a would-block partway through never re-requests an already-read
// message or re-runs processServerKeyExchange against it twice.
func (h *clientHandshake) readServerKeyExchangeOrHelloDone() error {
	if h.serverHelloDoneSeen {
		return nil
	}
	if !h.postCertMsgSeen {
		typ, body, err := h.c.readRecord()
		if err != nil {
			return err
		}
		if typ != recordTypeHandshake {
			return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected ServerKeyExchange or ServerHelloDone"))
		}
		msgType, msgBody, err := splitHandshakeHeader(body)
		if err != nil {
			return h.fatal(alertDecodeError, err)
		}
		h.postCertMsgType = msgType
		h.postCertMsgBody = msgBody
		h.postCertBody = body
		h.postCertMsgSeen = true
	}

	if h.postCertMsgType == handshakeTypeServerKeyExchange {
		if !h.serverKeyExchangeProcessed {
			h.transcript().Write(h.postCertBody)
			skx := &serverKeyExchangeMsg{}
			if err := skx.unmarshal(h.postCertMsgBody); err != nil {
				return h.fatal(alertDecodeError, err)
			}
			if err := h.ka.processServerKeyExchange(h.c.config, h.hello, h.serverHello, h.peerLeaf, skx); err != nil {
				return h.fatal(alertDecryptError, err)
			}
			h.serverKeyExchangeProcessed = true
		}

		typ, body, err := h.c.readRecord()
		if err != nil {
			return err
		}
		if typ != recordTypeHandshake {
			return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected ServerHelloDone"))
		}
		msgType, _, err := splitHandshakeHeader(body)
		if err != nil || msgType != handshakeTypeServerHelloDone {
			return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected ServerHelloDone"))
		}
		h.transcript().Write(body)
		h.serverHelloDoneSeen = true
		return nil
	}

	if h.postCertMsgType != handshakeTypeServerHelloDone {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected ServerHelloDone"))
	}
	h.transcript().Write(h.postCertBody)
	h.serverHelloDoneSeen = true
	return nil
}

func (h *clientHandshake) finishKeyExchangeAndSendClientFinished() error {
	if h.masterSecret != nil {
		return nil
	}
	preMaster, cke, err := h.ka.generateClientKeyExchange(h.c.config, h.hello, h.peerLeaf)
	if err != nil {
		return h.fatal(alertInternalError, err)
	}
	h.preMaster = preMaster

	msg := cke.marshal()
	h.transcript().Write(msg)
	if err := h.c.flush(plainRecord(recordTypeHandshake, h.c.recordVersion(), msg)); err != nil {
		return err
	}

	h.masterSecret = masterSecretFromPreMaster(h.c.version, h.c.suite, h.preMaster, h.hello.random, h.serverHello.random)
	kb := deriveKeyBlock(h.c.version, h.c.suite, h.masterSecret, h.hello.random, h.serverHello.random)
	h.c.writeParams = newCryptoParams(h.c.version, h.c.suite, kb.clientKey, kb.clientIV, kb.clientMAC, false)
	h.c.pendingReadParams = newCryptoParams(h.c.version, h.c.suite, kb.serverKey, kb.serverIV, kb.serverMAC, true)

	if err := h.c.flush(plainRecord(recordTypeChangeCipherSpec, h.c.recordVersion(), []byte{1})); err != nil {
		return err
	}

	verifyData := finishedHash(h.c.version, h.c.suite, h.masterSecret, clientFinishedLabel, h.transcript().sum())
	fin := (&finishedMsg{verifyData: verifyData}).marshal()
	h.transcript().Write(fin)
	return h.c.flush(h.c.writeParams.seal(recordTypeHandshake, h.c.recordVersion(), fin))
}

func (h *clientHandshake) readServerFinished() error {
	typ, body, err := h.c.readRecord()
	if err != nil {
		return err
	}
	if typ != recordTypeChangeCipherSpec {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected ChangeCipherSpec"))
	}
	h.c.readParams = h.c.pendingReadParams

	typ, body, err = h.c.readRecord()
	if err != nil {
		return err
	}
	if typ != recordTypeHandshake {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected Finished"))
	}
	msgType, msgBody, err := splitHandshakeHeader(body)
	if err != nil || msgType != handshakeTypeFinished {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected Finished message"))
	}

	expected := finishedHash(h.c.version, h.c.suite, h.masterSecret, serverFinishedLabel, h.transcript().sum())
	fin := &finishedMsg{}
	if err := fin.unmarshal(msgBody); err != nil {
		return h.fatal(alertDecodeError, err)
	}
	if !constantTimeEqual(expected, fin.verifyData) {
		return h.fatal(alertDecryptError, errors.New("tlsconn: server Finished verification failed"))
	}
	h.transcript().Write(body)
	return nil
}

// tls13DeriveHandshakeSecrets runs the ECDHE exchange implied by the
// server's key_share and installs the two handshake traffic key sets
// (spec §4.3's phase-2 ladder).
func (h *clientHandshake) tls13DeriveHandshakeSecrets() error {
	if !h.serverHello.hasKeyShare {
		return h.fatal(alertMissingExtension, errors.New("tlsconn: ServerHello missing key_share"))
	}
	kemScheme, isKEMGroup := kemSchemeForGroup(h.serverHello.keyShareGroup)

	var shared []byte
	switch {
	case h.serverHello.keyShareGroup == groupX25519 && h.clientX25519Priv != nil:
		s, err := curve25519.X25519(h.clientX25519Priv[:], h.serverHello.keyShareData)
		if err != nil {
			return h.fatal(alertDecryptError, err)
		}
		shared = s
	case isKEMGroup && h.clientKEM != nil && h.clientKEM.Scheme() == kemScheme:
		s, err := h.clientKEM.Decapsulate(h.serverHello.keyShareData)
		if err != nil {
			return h.fatal(alertDecryptError, err)
		}
		shared = s
	default:
		return h.fatal(alertHandshakeFailure, errors.New("tlsconn: unsupported TLS 1.3 key_share group"))
	}

	h.c.transcript = newSingleHashTranscript(h.c.suite13.hash.New)
	h.c.transcript.Write(h.hello.marshal())
	sh := h.serverHello.marshal()
	h.c.transcript.Write(sh)

	h.sched13 = newSchedule13(h.c.suite13.hash)
	h.sched13.extractHandshakeSecret(shared)
	h.clientHSSecret, h.serverHSSecret = h.sched13.handshakeTrafficSecrets(h.c.transcript.sum())

	keyLen := h.c.suite13.keyLen
	ckey, civ := h.sched13.trafficKeyAndIV(h.clientHSSecret, keyLen)
	skey, siv := h.sched13.trafficKeyAndIV(h.serverHSSecret, keyLen)
	h.c.writeParams = newCryptoParamsTLS13(h.c.suite13, ckey, civ)
	h.c.readParams = newCryptoParamsTLS13(h.c.suite13, skey, siv)
	return nil
}

// tls13ReadServerHandshakeFlight consumes EncryptedExtensions,
// (optional Certificate/CertificateVerify), and Finished (spec §4.4's
// flattened TLS 1.3 flow). It stops as soon as the server's Finished is
// verified, its own checkpoint: deriving application traffic keys and
// sending the client's Finished happen in tls13SendClientFinished, so a
// blocked write there never sends this function back into readRecord
// waiting on a server message that was the last one coming.
func (h *clientHandshake) tls13ReadServerHandshakeFlight() error {
	if h.tls13GotServerFinished {
		return nil
	}
	for {
		typ, body, err := h.c.readRecord()
		if err != nil {
			return err
		}
		switch typ {
		case recordTypeHandshake:
		case recordTypeChangeCipherSpec:
			continue // ChangeCipherSpec may appear for middlebox compatibility; ignore
		case recordTypeAlert:
			if err := h.c.handleAlert(body); err != nil {
				return err
			}
			if h.c.closed {
				return newError(CategoryClosed, nil)
			}
			continue
		default:
			return h.fatal(alertUnexpectedMessage, fmt.Errorf("tlsconn: unexpected record type %s in TLS 1.3 handshake", typ))
		}
		msgType, msgBody, err := splitHandshakeHeader(body)
		if err != nil {
			return h.fatal(alertDecodeError, err)
		}

		switch msgType {
		case handshakeTypeEncryptedExtensions:
			ee := &encryptedExtensionsMsg{}
			if err := ee.unmarshal(msgBody); err != nil {
				return h.fatal(alertDecodeError, err)
			}
			if ee.alpnProtocol != "" {
				h.c.negotiatedALPN = ee.alpnProtocol
			}
			h.c.transcript.Write(body)
		case handshakeTypeCertificate:
			cm := &certificateMsg{}
			if err := cm.unmarshal(msgBody); err != nil || len(cm.certificates) == 0 {
				return h.fatal(alertDecodeError, errors.New("tlsconn: malformed Certificate message"))
			}
			leaf, err := x509.ParseCertificate(cm.certificates[0])
			if err != nil {
				return h.fatal(alertBadCertificate, err)
			}
			h.peerLeaf = leaf
			h.c.transcript.Write(body)
		case handshakeTypeCertificateVerify:
			if h.peerLeaf == nil {
				return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: CertificateVerify before Certificate"))
			}
			cv := &certificateVerifyMsg{}
			if err := cv.unmarshal(msgBody); err != nil {
				return h.fatal(alertDecodeError, err)
			}
			if err := verifyTLS13CertificateVerify(h.peerLeaf, cv, h.c.transcript.sum(), false); err != nil {
				return h.fatal(alertDecryptError, err)
			}
			h.c.transcript.Write(body)
		case handshakeTypeFinished:
			fin := &finishedMsg{}
			if err := fin.unmarshal(msgBody); err != nil {
				return h.fatal(alertDecodeError, err)
			}
			expected := h.sched13.finishedVerifyData(h.serverHSSecret, h.c.transcript.sum())
			if !constantTimeEqual(expected, fin.verifyData) {
				return h.fatal(alertDecryptError, errors.New("tlsconn: server Finished verification failed"))
			}
			h.c.transcript.Write(body)
			h.tls13GotServerFinished = true
			return nil
		default:
			return h.fatal(alertUnexpectedMessage, fmt.Errorf("tlsconn: unexpected TLS 1.3 handshake message type %d", msgType))
		}
	}
}

// tls13SendClientFinished derives the application traffic secrets and
// sends the client's own Finished. The Finished is sealed at most once
// (tls13ClientFinSent latches before the first flush attempt, and the
// already-sealed bytes are what a retry flushes), so a blocked flush
// never causes a resumed call to seal — and sequence-number-increment —
// a second copy. Traffic-key installation is re-derived and reapplied
// on every call; it is a pure function of already-latched state, so
// redoing it on a resumed call is harmless.
func (h *clientHandshake) tls13SendClientFinished() error {
	if !h.tls13ClientFinSent {
		// Application traffic secrets are derived from the transcript up
		// to (not including) the client's own Finished; capture it before
		// the write below so a resumed call derives the same keys even
		// though the live transcript has since moved past this point.
		h.preClientFinishedTranscript = h.c.transcript.sum()

		clientFin := (&finishedMsg{verifyData: h.sched13.finishedVerifyData(h.clientHSSecret, h.preClientFinishedTranscript)}).marshal()
		h.c.transcript.Write(clientFin)
		h.pendingClientFinRecord = h.c.writeParams.seal(recordTypeHandshake, recordLayerVersionTLS13, clientFin)
		h.tls13ClientFinSent = true
	}
	if err := h.c.flush(h.pendingClientFinRecord); err != nil {
		return err
	}

	capp, sapp := h.sched13.applicationTrafficSecrets(h.preClientFinishedTranscript)
	keyLen := h.c.suite13.keyLen
	ckey, civ := h.sched13.trafficKeyAndIV(capp, keyLen)
	skey, siv := h.sched13.trafficKeyAndIV(sapp, keyLen)
	h.c.writeParams = newCryptoParamsTLS13(h.c.suite13, ckey, civ)
	h.c.readParams = newCryptoParamsTLS13(h.c.suite13, skey, siv)
	return nil
}

func (h *clientHandshake) fatal(desc alertDescription, err error) error {
	_ = h.c.sendFatalAlert(desc)
	return newAlertError(CategoryAlertSent, desc, err)
}

func cipherIDsFor(cfg *Config) []uint16 {
	var ids []uint16
	if cfg.maxVersion() >= VersionTLS13 {
		for _, s := range cipherSuitesTLS13 {
			ids = append(ids, s.id)
		}
	}
	for _, s := range cipherSuites {
		if s.flags&suiteDefaultOff != 0 {
			continue
		}
		if cfg.CipherPreference == CipherPreferenceModern && (s.flags&suiteECDHE == 0 || s.aead == nil) {
			continue
		}
		ids = append(ids, s.id)
	}
	return ids
}

func isDowngradeSentinel(random []byte) bool {
	if len(random) != 32 {
		return false
	}
	tls12Sentinel := []byte{0x44, 0x4f, 0x57, 0x4e, 0x47, 0x52, 0x44, 0x01}
	tls11Sentinel := []byte{0x44, 0x4f, 0x57, 0x4e, 0x47, 0x52, 0x44, 0x00}
	tail := random[24:]
	return constantTimeEqual(tail, tls12Sentinel) || constantTimeEqual(tail, tls11Sentinel)
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

func plainRecord(typ recordType, version uint16, payload []byte) []byte {
	header := []byte{byte(typ), byte(version >> 8), byte(version), byte(len(payload) >> 8), byte(len(payload))}
	return append(header, payload...)
}
