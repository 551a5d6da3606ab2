// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"fmt"

	"golang.org/x/text/language"
)

// Direction names one side of a duplex transport (spec §5, §6).
type Direction uint8

const (
	DirectionRead Direction = iota + 1
	DirectionWrite
)

func (d Direction) String() string {
	switch d {
	case DirectionRead:
		return "read"
	case DirectionWrite:
		return "write"
	default:
		return "unknown"
	}
}

// ErrorCategory partitions every error this package returns, per spec §6's
// "top-bit encoding" description: each category constant occupies its own
// band of the uint32 value space (its index shifted left by categoryShift)
// so a caller can classify an error without a type switch over every
// possible sentinel.
type ErrorCategory uint32

const (
	categoryShift = 24

	CategoryBlocked       ErrorCategory = 1 << categoryShift
	CategoryClosed        ErrorCategory = 2 << categoryShift
	CategoryProtocol      ErrorCategory = 3 << categoryShift
	CategoryUsage         ErrorCategory = 4 << categoryShift
	CategoryAlertSent     ErrorCategory = 5 << categoryShift
	CategoryAlertReceived ErrorCategory = 6 << categoryShift
	CategoryInternal      ErrorCategory = 7 << categoryShift
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryBlocked:
		return "blocked"
	case CategoryClosed:
		return "closed"
	case CategoryProtocol:
		return "protocol"
	case CategoryUsage:
		return "usage"
	case CategoryAlertSent:
		return "alert-sent"
	case CategoryAlertReceived:
		return "alert-received"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the single error type every public Connection method returns
// (spec §7's propagation policy: "every public entry point catches and
// surfaces the first error"). It wraps an underlying cause and, where
// applicable, the TLS alert that was or will be sent.
type Error struct {
	Category  ErrorCategory
	Direction Direction // meaningful only for CategoryBlocked
	Alert     alertDescription
	hasAlert  bool
	Err       error
}

func (e *Error) Error() string {
	if e.hasAlert {
		return fmt.Sprintf("tlsconn: %s: %s: %v", e.Category, e.Alert, e.Err)
	}
	return fmt.Sprintf("tlsconn: %s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(cat ErrorCategory, err error) *Error {
	return &Error{Category: cat, Err: err}
}

func newAlertError(cat ErrorCategory, desc alertDescription, err error) *Error {
	return &Error{Category: cat, Alert: desc, hasAlert: true, Err: err}
}

func newBlockedError(dir Direction) *Error {
	return &Error{Category: CategoryBlocked, Direction: dir, Err: errWouldBlockFor(dir)}
}

func errWouldBlockFor(dir Direction) error {
	return fmt.Errorf("tlsconn: would block on %s: %w", dir, ErrWouldBlock)
}

// IsBlocked reports whether err indicates a transient would-block
// condition the caller should retry after polling the transport (spec
// §4.6: "All calls are re-entrant on blocked").
func IsBlocked(err error) bool {
	var e *Error
	if as(err, &e) {
		return e.Category == CategoryBlocked
	}
	return false
}

// BlockedDirection returns the transport direction a blocked error is
// waiting on, and whether err was in fact a blocked error.
func BlockedDirection(err error) (Direction, bool) {
	var e *Error
	if as(err, &e) && e.Category == CategoryBlocked {
		return e.Direction, true
	}
	return 0, false
}

// IsClosed reports whether err indicates the connection has been closed,
// gracefully or otherwise.
func IsClosed(err error) bool {
	var e *Error
	if as(err, &e) {
		return e.Category == CategoryClosed
	}
	return false
}

// as walks err's Unwrap chain by hand looking for an *Error, the search
// errors.As performs for this one target type. It does not follow errors
// whose Unwrap returns a []error.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// errorStrings is the "EN" translation table for spec §6's human-readable
// error-string function. Only language tag "en" (any region) is
// supported; any other tag, or one golang.org/x/text/language cannot
// parse, returns the sentinel string.
var errorStrings = map[alertDescription]string{
	alertCloseNotify:            "the connection is closing normally",
	alertUnexpectedMessage:      "an unexpected handshake message was received",
	alertBadRecordMAC:           "a record failed authentication",
	alertDecryptionFailed:       "a record could not be decrypted",
	alertRecordOverflow:         "a record exceeded the maximum allowed length",
	alertHandshakeFailure:       "the handshake could not be completed with the offered parameters",
	alertBadCertificate:         "the peer's certificate was malformed or invalid",
	alertUnsupportedCertificate: "the peer's certificate type is not supported",
	alertCertificateExpired:     "the peer's certificate has expired",
	alertCertificateUnknown:     "the peer's certificate could not be processed",
	alertIllegalParameter:       "a handshake field had an illegal value",
	alertUnknownCA:              "the peer's certificate was issued by an unrecognized authority",
	alertAccessDenied:           "the peer refused to authenticate for this connection",
	alertDecodeError:            "a handshake message could not be decoded",
	alertDecryptError:           "a cryptographic operation failed during the handshake",
	alertProtocolVersion:        "the peer does not support an acceptable protocol version",
	alertInsufficientSecurity:   "no cipher suite strong enough to satisfy policy was offered",
	alertInternalError:          "an internal error prevented the handshake from continuing",
	alertInappropriateFallback:  "a protocol downgrade was detected and rejected",
	alertUserCanceled:           "the handshake was canceled by the peer",
	alertNoRenegotiation:        "renegotiation is not supported",
	alertMissingExtension:       "a required extension was missing",
	alertUnsupportedExtension:   "an extension was present that is not valid for this message",
	alertNoApplicationProtocol:  "no mutually supported application protocol was found",
}

const untranslatedErrorString = "tlsconn: no translation available"

// TranslateError returns a human-readable string for a protocol alert
// under the given BCP 47 language tag, per spec §6. Only English ("en",
// "en-US", etc.) is supported; anything else — including tags
// golang.org/x/text/language fails to parse — yields the sentinel string.
func TranslateError(tag string, desc alertDescription) string {
	parsed, err := language.Parse(tag)
	if err != nil {
		return untranslatedErrorString
	}
	base, conf := parsed.Base()
	if conf == language.No || base.String() != "en" {
		return untranslatedErrorString
	}
	if s, ok := errorStrings[desc]; ok {
		return s
	}
	return untranslatedErrorString
}
