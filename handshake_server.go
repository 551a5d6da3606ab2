// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"
)

// serverHandshake drives the server side of spec §4.4's state machine,
// mirroring clientHandshake's re-entrant step discipline.
type serverHandshake struct {
	c *Connection

	step int

	clientHello *clientHelloMsg
	cert        *Certificate
	ka          keyAgreement

	serverRandom []byte
	masterSecret []byte

	clientX25519Pub []byte
	sched13         *schedule13
	clientHSSecret  []byte
	serverHSSecret  []byte

	// per-message checkpoints for the legacy ClientKeyExchange/CCS/
	// Finished flight, so a would-block between two of readRecord's
	// calls (or flush's) re-enters at the right message instead of
	// re-requesting one already consumed or re-sealing one already
	// queued.
	ccsReceived       bool
	clientFinVerified bool
	serverFinSent     bool
}

func newServerHandshake(c *Connection) *serverHandshake {
	return &serverHandshake{c: c}
}

func (h *serverHandshake) resume() error {
	steps := []func() error{
		h.readClientHello,
		h.selectParamsAndSendServerHello,
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

func (h *serverHandshake) resumeLegacy() error {
	steps := []func() error{
		h.sendCertAndKeyExchange,
		h.readClientKeyExchange,
		h.readClientChangeCipherSpec,
		h.readClientFinished,
		h.sendServerChangeCipherSpecAndFinished,
	}
	for h.step-2 < len(steps) {
		if err := steps[h.step-2](); err != nil {
			return err
		}
		h.step++
	}
	return nil
}

func (h *serverHandshake) resumeTLS13() error {
	steps := []func() error{
		h.tls13SendServerFlight,
		h.tls13ReadClientFinished,
	}
	for h.step-2 < len(steps) {
		if err := steps[h.step-2](); err != nil {
			return err
		}
		h.step++
	}
	return nil
}

func (h *serverHandshake) transcript() *transcriptHash {
	if h.c.transcript == nil {
		h.c.transcript = newLegacyTranscript()
	}
	return h.c.transcript
}

func (h *serverHandshake) fatal(desc alertDescription, err error) error {
	_ = h.c.sendFatalAlert(desc)
	return newAlertError(CategoryAlertSent, desc, err)
}

func (h *serverHandshake) readClientHello() error {
	if h.clientHello != nil {
		return nil
	}
	typ, body, err := h.c.readRecord()
	if err != nil {
		return err
	}
	if typ != recordTypeHandshake {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected ClientHello record"))
	}
	msgType, msgBody, err := splitHandshakeHeader(body)
	if err != nil || msgType != handshakeTypeClientHello {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected ClientHello message"))
	}

	ch := &clientHelloMsg{}
	if err := ch.unmarshal(msgBody); err != nil {
		return h.fatal(alertDecodeError, err)
	}
	// RFC 5746: a ClientHello claiming secure renegotiation support on a
	// connection with no prior handshake must carry an empty
	// renegotiation_info; anything else is rejected (spec's supplemented
	// RFC 5746 feature — this package never itself renegotiates).
	if ch.renegotiationSupported && len(ch.secureRenegotiation) != 0 {
		return h.fatal(alertHandshakeFailure, errors.New("tlsconn: non-empty renegotiation_info on initial handshake"))
	}
	h.clientHello = ch
	h.c.maxFragmentLength = ch.maxFragmentLength
	h.transcript().Write(body)
	return nil
}

func (h *serverHandshake) selectParamsAndSendServerHello() error {
	cfg := h.c.config
	ch := h.clientHello

	negotiated := negotiateVersion(cfg, ch)
	if negotiated == 0 {
		return h.fatal(alertProtocolVersion, errors.New("tlsconn: no mutually supported protocol version"))
	}
	h.c.version = negotiated

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return newError(CategoryInternal, err)
	}
	// RFC 8446 §4.1.3 downgrade sentinel: a server capable of a higher
	// version that negotiates lower must signal it in server_random.
	if negotiated < VersionTLS13 && cfg.maxVersion() >= VersionTLS13 {
		copy(random[24:], downgradeSentinelFor(negotiated))
	}
	h.serverRandom = random

	alpn, _ := selectALPNProtocol(h.c.alpnProtocols, ch.alpnProtocols)
	h.c.negotiatedALPN = alpn

	sh := &serverHelloMsg{
		vers:                   VersionTLS12,
		random:                 random,
		sessionID:              nil,
		compressionMethod:      0,
		alpnProtocol:           alpn,
		renegotiationSupported: true,
	}

	cert, err := cfg.getCertificate(ch.serverName)
	if err != nil {
		return h.fatal(alertHandshakeFailure, err)
	}
	h.cert = cert

	if negotiated >= VersionTLS13 {
		suite := pickTLS13Suite(ch.cipherSuites)
		if suite == nil {
			return h.fatal(alertHandshakeFailure, errors.New("tlsconn: no mutually supported TLS 1.3 suite"))
		}
		h.c.suite13 = suite
		sh.vers = VersionTLS12
		sh.supportedVersion = VersionTLS13

		var shared []byte
		if kemScheme, peerPub, ok := pickKEMShare(cfg, ch); ok {
			kem, err := newKEM(kemScheme)
			if err != nil {
				return h.fatal(alertInternalError, err)
			}
			ciphertext, secret, err := kem.Encapsulate(peerPub)
			if err != nil {
				return h.fatal(alertDecryptError, err)
			}
			sh.hasKeyShare = true
			sh.keyShareGroup = groupForKEMScheme(kemScheme)
			sh.keyShareData = ciphertext
			shared = secret
		} else {
			group, peerPub, ok := pickX25519Share(ch)
			if !ok || group != groupX25519 {
				return h.fatal(alertHandshakeFailure, errors.New("tlsconn: no supported TLS 1.3 key_share (HelloRetryRequest not implemented)"))
			}
			h.clientX25519Pub = peerPub

			var priv [32]byte
			if _, err := rand.Read(priv[:]); err != nil {
				return newError(CategoryInternal, err)
			}
			pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
			if err != nil {
				return newError(CategoryInternal, err)
			}
			sh.hasKeyShare = true
			sh.keyShareGroup = groupX25519
			sh.keyShareData = pub

			s, err := curve25519.X25519(priv[:], peerPub)
			if err != nil {
				return h.fatal(alertDecryptError, err)
			}
			shared = s
		}

		msg := sh.marshal()
		h.transcript().Write(msg)
		if err := h.c.flush(plainRecord(recordTypeHandshake, VersionTLS12, msg)); err != nil {
			return err
		}

		h.c.transcript = newSingleHashTranscript(suite.hash.New)
		h.c.transcript.Write(ch.marshal())
		h.c.transcript.Write(msg)

		h.sched13 = newSchedule13(suite.hash)
		h.sched13.extractHandshakeSecret(shared)
		h.clientHSSecret, h.serverHSSecret = h.sched13.handshakeTrafficSecrets(h.c.transcript.sum())

		keyLen := suite.keyLen
		ckey, civ := h.sched13.trafficKeyAndIV(h.clientHSSecret, keyLen)
		skey, siv := h.sched13.trafficKeyAndIV(h.serverHSSecret, keyLen)
		h.c.readParams = newCryptoParamsTLS13(suite, ckey, civ)
		h.c.writeParams = newCryptoParamsTLS13(suite, skey, siv)
		return nil
	}

	suite := mutualCipherSuite(ch.cipherSuites, pickLegacySuite(cfg, ch.cipherSuites, cert))
	if suite == nil {
		return h.fatal(alertHandshakeFailure, errors.New("tlsconn: no mutually supported cipher suite"))
	}
	h.c.suite = suite
	h.ka = suite.ka(negotiated)
	sh.vers = negotiated
	sh.cipherSuite = suite.id

	msg := sh.marshal()
	h.transcript().Write(msg)
	return h.c.flush(plainRecord(recordTypeHandshake, initialClientHelloRecordVersion, msg))
}

func (h *serverHandshake) sendCertAndKeyExchange() error {
	cm := &certificateMsg{certificates: certChainBytes(h.cert)}
	msg := cm.marshal()
	h.transcript().Write(msg)
	if err := h.c.flush(plainRecord(recordTypeHandshake, h.c.recordVersion(), msg)); err != nil {
		return err
	}

	skx, err := h.ka.generateServerKeyExchange(h.c.config, h.cert, h.clientHello, &serverHelloMsg{random: h.serverRandom})
	if err != nil {
		return h.fatal(alertInternalError, err)
	}
	if skx != nil {
		msg := skx.marshal()
		h.transcript().Write(msg)
		if err := h.c.flush(plainRecord(recordTypeHandshake, h.c.recordVersion(), msg)); err != nil {
			return err
		}
	}

	done := (serverHelloDoneMsg{}).marshal()
	h.transcript().Write(done)
	return h.c.flush(plainRecord(recordTypeHandshake, h.c.recordVersion(), done))
}

// readClientKeyExchange consumes ClientKeyExchange and derives the
// master secret and both direction's key blocks (spec §4.4's legacy
// flight, split to its own checkpoint so a blocked CCS or Finished
// read below never re-requests this message).
func (h *serverHandshake) readClientKeyExchange() error {
	if h.masterSecret != nil {
		return nil
	}
	typ, body, err := h.c.readRecord()
	if err != nil {
		return err
	}
	if typ != recordTypeHandshake {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected ClientKeyExchange"))
	}
	msgType, msgBody, err := splitHandshakeHeader(body)
	if err != nil || msgType != handshakeTypeClientKeyExchange {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected ClientKeyExchange message"))
	}
	h.transcript().Write(body)

	cke := &clientKeyExchangeMsg{}
	if err := cke.unmarshal(msgBody); err != nil {
		return h.fatal(alertDecodeError, err)
	}
	preMaster, err := h.ka.processClientKeyExchange(h.c.config, h.cert, cke, h.clientHello.vers)
	if err != nil {
		return h.fatal(alertDecryptError, err)
	}

	h.masterSecret = masterSecretFromPreMaster(h.c.version, h.c.suite, preMaster, h.clientHello.random, h.serverRandom)
	kb := deriveKeyBlock(h.c.version, h.c.suite, h.masterSecret, h.clientHello.random, h.serverRandom)
	h.c.pendingReadParams = newCryptoParams(h.c.version, h.c.suite, kb.clientKey, kb.clientIV, kb.clientMAC, true)
	h.c.writeParams = newCryptoParams(h.c.version, h.c.suite, kb.serverKey, kb.serverIV, kb.serverMAC, false)
	return nil
}

// readClientChangeCipherSpec activates the pending read params once the
// client signals it (its own checkpoint, per readClientKeyExchange).
func (h *serverHandshake) readClientChangeCipherSpec() error {
	if h.ccsReceived {
		return nil
	}
	typ, _, err := h.c.readRecord()
	if err != nil {
		return err
	}
	if typ != recordTypeChangeCipherSpec {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected ChangeCipherSpec"))
	}
	h.c.readParams = h.c.pendingReadParams
	h.ccsReceived = true
	return nil
}

// readClientFinished verifies the client's Finished message, its own
// checkpoint so the server's own CCS/Finished flush below is never
// reached by re-reading an already-consumed Finished.
func (h *serverHandshake) readClientFinished() error {
	if h.clientFinVerified {
		return nil
	}
	typ, body, err := h.c.readRecord()
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
	expected := finishedHash(h.c.version, h.c.suite, h.masterSecret, clientFinishedLabel, h.transcript().sum())
	fin := &finishedMsg{}
	if err := fin.unmarshal(msgBody); err != nil {
		return h.fatal(alertDecodeError, err)
	}
	if !constantTimeEqual(expected, fin.verifyData) {
		return h.fatal(alertDecryptError, errors.New("tlsconn: client Finished verification failed"))
	}
	h.transcript().Write(body)
	h.clientFinVerified = true
	return nil
}

// sendServerChangeCipherSpecAndFinished sends the server's own CCS and
// Finished. serverFinSent is latched immediately before the Finished is
// sealed, so a blocked flush afterward can never cause a resumed call
// to seal (and sequence-number-increment) a second Finished.
func (h *serverHandshake) sendServerChangeCipherSpecAndFinished() error {
	if h.serverFinSent {
		return nil
	}
	if err := h.c.flush(plainRecord(recordTypeChangeCipherSpec, h.c.recordVersion(), []byte{1})); err != nil {
		return err
	}
	serverFin := (&finishedMsg{verifyData: finishedHash(h.c.version, h.c.suite, h.masterSecret, serverFinishedLabel, h.transcript().sum())}).marshal()
	h.transcript().Write(serverFin)
	sealed := h.c.writeParams.seal(recordTypeHandshake, h.c.recordVersion(), serverFin)
	h.serverFinSent = true
	return h.c.flush(sealed)
}

func (h *serverHandshake) tls13SendServerFlight() error {
	ee := (&encryptedExtensionsMsg{alpnProtocol: h.c.negotiatedALPN}).marshal()
	h.c.transcript.Write(ee)
	if err := h.c.flush(h.c.writeParams.seal(recordTypeHandshake, recordLayerVersionTLS13, ee)); err != nil {
		return err
	}

	cm := (&certificateMsg{certificates: certChainBytes(h.cert)}).marshal()
	h.c.transcript.Write(cm)
	if err := h.c.flush(h.c.writeParams.seal(recordTypeHandshake, recordLayerVersionTLS13, cm)); err != nil {
		return err
	}

	cv, err := signTLS13CertificateVerify(h.cert, h.c.transcript.sum(), true)
	if err != nil {
		return h.fatal(alertInternalError, err)
	}
	cvMsg := cv.marshal()
	h.c.transcript.Write(cvMsg)
	if err := h.c.flush(h.c.writeParams.seal(recordTypeHandshake, recordLayerVersionTLS13, cvMsg)); err != nil {
		return err
	}

	finMsg := (&finishedMsg{verifyData: h.sched13.finishedVerifyData(h.serverHSSecret, h.c.transcript.sum())}).marshal()
	h.c.transcript.Write(finMsg)
	if err := h.c.flush(h.c.writeParams.seal(recordTypeHandshake, recordLayerVersionTLS13, finMsg)); err != nil {
		return err
	}

	h.sched13.extractMasterSecret()
	capp, sapp := h.sched13.applicationTrafficSecrets(h.c.transcript.sum())
	keyLen := h.c.suite13.keyLen
	ckey, civ := h.sched13.trafficKeyAndIV(capp, keyLen)
	skey, siv := h.sched13.trafficKeyAndIV(sapp, keyLen)
	h.c.pendingReadParams = newCryptoParamsTLS13(h.c.suite13, ckey, civ)
	h.c.pendingWriteParams = newCryptoParamsTLS13(h.c.suite13, skey, siv)
	h.c.writeParams = h.c.pendingWriteParams
	return nil
}

func (h *serverHandshake) tls13ReadClientFinished() error {
	typ, body, err := h.c.readRecord()
	if err != nil {
		return err
	}
	if typ != recordTypeHandshake {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected client Finished"))
	}
	msgType, msgBody, err := splitHandshakeHeader(body)
	if err != nil || msgType != handshakeTypeFinished {
		return h.fatal(alertUnexpectedMessage, errors.New("tlsconn: expected Finished message"))
	}
	expected := h.sched13.finishedVerifyData(h.clientHSSecret, h.c.transcript.sum())
	fin := &finishedMsg{}
	if err := fin.unmarshal(msgBody); err != nil {
		return h.fatal(alertDecodeError, err)
	}
	if !constantTimeEqual(expected, fin.verifyData) {
		return h.fatal(alertDecryptError, errors.New("tlsconn: client Finished verification failed"))
	}
	h.c.transcript.Write(body)
	h.c.readParams = h.c.pendingReadParams
	return nil
}

func negotiateVersion(cfg *Config, ch *clientHelloMsg) uint16 {
	offered := ch.supportedVersions
	if len(offered) == 0 {
		offered = []uint16{ch.vers}
	}
	for _, want := range cfg.supportedVersions() {
		for _, got := range offered {
			if want == got {
				return want
			}
		}
	}
	return 0
}

func downgradeSentinelFor(negotiated uint16) []byte {
	if negotiated == VersionTLS12 {
		return []byte{0x44, 0x4f, 0x57, 0x4e, 0x47, 0x52, 0x44, 0x01}
	}
	return []byte{0x44, 0x4f, 0x57, 0x4e, 0x47, 0x52, 0x44, 0x00}
}

func pickTLS13Suite(offered []uint16) *cipherSuiteTLS13 {
	for _, s := range cipherSuitesTLS13 {
		for _, id := range offered {
			if id == s.id {
				return s
			}
		}
	}
	return nil
}

func pickLegacySuite(cfg *Config, offered []uint16, cert *Certificate) uint16 {
	isECDSA := isECDSACert(cert)
	for _, s := range cipherSuites {
		if s.flags&suiteDefaultOff != 0 {
			continue
		}
		if s.flags&suiteECDSA != 0 && !isECDSA {
			continue
		}
		if s.flags&suiteECDSA == 0 && s.flags&suiteECDHE != 0 && isECDSA {
			continue
		}
		for _, id := range offered {
			if id == s.id {
				return s.id
			}
		}
	}
	return 0
}

func isECDSACert(cert *Certificate) bool {
	if cert == nil {
		return false
	}
	_, ok := cert.privateKey.(*ecdsa.PrivateKey)
	return ok
}

// pickKEMShare selects a KEM key_share the client offered, walking the
// server's own preference list first (spec §8's KEM selection
// scenarios, mirroring selectALPNProtocol's server-preference-wins
// rule).
func pickKEMShare(cfg *Config, ch *clientHelloMsg) (KEMScheme, []byte, bool) {
	for _, want := range cfg.KEMPreferences {
		group := groupForKEMScheme(want)
		for i, g := range ch.keyShareGroups {
			if g == group {
				return want, ch.keyShareData[i], true
			}
		}
	}
	return "", nil, false
}

func pickX25519Share(ch *clientHelloMsg) (namedGroup, []byte, bool) {
	for i, g := range ch.keyShareGroups {
		if g == groupX25519 {
			return g, ch.keyShareData[i], true
		}
	}
	return 0, nil, false
}

func certChainBytes(cert *Certificate) [][]byte {
	return cert.rawChain
}
