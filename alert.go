// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

// alertLevel is the first byte of an alert record body (spec §4.4,
// GLOSSARY "Alert").
type alertLevel uint8

const (
	alertLevelWarning alertLevel = 1
	alertLevelFatal   alertLevel = 2
)

// alertDescription is the second byte of an alert record body.
type alertDescription uint8

const (
	alertCloseNotify            alertDescription = 0
	alertUnexpectedMessage      alertDescription = 10
	alertBadRecordMAC           alertDescription = 20
	alertDecryptionFailed       alertDescription = 21
	alertRecordOverflow         alertDescription = 22
	alertDecompressionFailure   alertDescription = 30
	alertHandshakeFailure       alertDescription = 40
	alertBadCertificate         alertDescription = 42
	alertUnsupportedCertificate alertDescription = 43
	alertCertificateExpired     alertDescription = 45
	alertCertificateUnknown     alertDescription = 46
	alertIllegalParameter       alertDescription = 47
	alertUnknownCA              alertDescription = 48
	alertAccessDenied           alertDescription = 49
	alertDecodeError            alertDescription = 50
	alertDecryptError           alertDescription = 51
	alertProtocolVersion        alertDescription = 70
	alertInsufficientSecurity   alertDescription = 71
	alertInternalError          alertDescription = 80
	alertInappropriateFallback  alertDescription = 86
	alertUserCanceled           alertDescription = 90
	alertNoRenegotiation        alertDescription = 100
	alertMissingExtension       alertDescription = 109
	alertUnsupportedExtension   alertDescription = 110
	alertNoApplicationProtocol  alertDescription = 120
)

func (a alertDescription) String() string {
	switch a {
	case alertCloseNotify:
		return "close_notify"
	case alertUnexpectedMessage:
		return "unexpected_message"
	case alertBadRecordMAC:
		return "bad_record_mac"
	case alertDecryptionFailed:
		return "decryption_failed"
	case alertRecordOverflow:
		return "record_overflow"
	case alertHandshakeFailure:
		return "handshake_failure"
	case alertBadCertificate:
		return "bad_certificate"
	case alertUnsupportedCertificate:
		return "unsupported_certificate"
	case alertCertificateExpired:
		return "certificate_expired"
	case alertCertificateUnknown:
		return "certificate_unknown"
	case alertIllegalParameter:
		return "illegal_parameter"
	case alertUnknownCA:
		return "unknown_ca"
	case alertAccessDenied:
		return "access_denied"
	case alertDecodeError:
		return "decode_error"
	case alertDecryptError:
		return "decrypt_error"
	case alertProtocolVersion:
		return "protocol_version"
	case alertInsufficientSecurity:
		return "insufficient_security"
	case alertInternalError:
		return "internal_error"
	case alertInappropriateFallback:
		return "inappropriate_fallback"
	case alertUserCanceled:
		return "user_canceled"
	case alertNoRenegotiation:
		return "no_renegotiation"
	case alertMissingExtension:
		return "missing_extension"
	case alertUnsupportedExtension:
		return "unsupported_extension"
	case alertNoApplicationProtocol:
		return "no_application_protocol"
	default:
		return "unknown_alert"
	}
}

// isFatalByDefault reports whether sending this alert with no level
// specified should be treated as fatal. close_notify is the one alert
// that is conventionally a warning; every other alert this package emits
// is fatal.
func (a alertDescription) isFatalByDefault() bool {
	return a != alertCloseNotify
}

// alertQueue is a tiny fixed-capacity queue of pending 2-byte alert
// bodies (spec §3: "two independent alert queues"). Connections keep one
// for alerts read from the peer and one for alerts queued to send.
type alertQueue struct {
	pending []byte // level,description pairs, 2 bytes each
}

func (q *alertQueue) push(level alertLevel, desc alertDescription) {
	q.pending = append(q.pending, byte(level), byte(desc))
}

func (q *alertQueue) empty() bool { return len(q.pending) == 0 }

// peek returns the oldest queued alert without removing it.
func (q *alertQueue) peek() (alertLevel, alertDescription, bool) {
	if q.empty() {
		return 0, 0, false
	}
	return alertLevel(q.pending[0]), alertDescription(q.pending[1]), true
}

func (q *alertQueue) pop() {
	if len(q.pending) >= 2 {
		q.pending = q.pending[2:]
	}
}
