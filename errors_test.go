// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"errors"
	"fmt"
	"testing"
)

func TestTranslateErrorKnownAlertInEnglish(t *testing.T) {
	for _, tag := range []string{"en", "en-US", "en-GB"} {
		got := TranslateError(tag, alertBadRecordMAC)
		if got != errorStrings[alertBadRecordMAC] {
			t.Fatalf("TranslateError(%q, alertBadRecordMAC) = %q, want %q", tag, got, errorStrings[alertBadRecordMAC])
		}
	}
}

func TestTranslateErrorUnsupportedLanguage(t *testing.T) {
	if got := TranslateError("fr", alertBadRecordMAC); got != untranslatedErrorString {
		t.Fatalf("TranslateError(fr, ...) = %q, want sentinel", got)
	}
}

func TestTranslateErrorUnparseableTag(t *testing.T) {
	if got := TranslateError("not a bcp47 tag!!", alertBadRecordMAC); got != untranslatedErrorString {
		t.Fatalf("TranslateError(garbage tag, ...) = %q, want sentinel", got)
	}
}

func TestTranslateErrorUnknownAlertDescription(t *testing.T) {
	if got := TranslateError("en", alertDescription(250)); got != untranslatedErrorString {
		t.Fatalf("TranslateError(en, unknown alert) = %q, want sentinel", got)
	}
}

func TestIsBlockedAndBlockedDirection(t *testing.T) {
	err := newBlockedError(DirectionWrite)
	if !IsBlocked(err) {
		t.Fatal("IsBlocked(blocked error) = false")
	}
	dir, ok := BlockedDirection(err)
	if !ok || dir != DirectionWrite {
		t.Fatalf("BlockedDirection = (%v, %v), want (DirectionWrite, true)", dir, ok)
	}

	protocolErr := newError(CategoryProtocol, errors.New("bad record"))
	if IsBlocked(protocolErr) {
		t.Fatal("IsBlocked(protocol error) = true")
	}
	if _, ok := BlockedDirection(protocolErr); ok {
		t.Fatal("BlockedDirection(protocol error) = true")
	}
}

func TestIsClosed(t *testing.T) {
	closedErr := newError(CategoryClosed, errors.New("connection closed"))
	if !IsClosed(closedErr) {
		t.Fatal("IsClosed(closed error) = false")
	}
	if IsClosed(newError(CategoryInternal, errors.New("oops"))) {
		t.Fatal("IsClosed(internal error) = true")
	}
}

func TestErrorPredicatesSeeThroughWrapping(t *testing.T) {
	blocked := newBlockedError(DirectionRead)
	wrapped := fmt.Errorf("while reading: %w", blocked)
	if !IsBlocked(wrapped) {
		t.Fatal("IsBlocked did not see through fmt.Errorf wrapping")
	}
	dir, ok := BlockedDirection(wrapped)
	if !ok || dir != DirectionRead {
		t.Fatalf("BlockedDirection(wrapped) = (%v, %v), want (DirectionRead, true)", dir, ok)
	}
}

func TestErrorUnwrapAndErrorString(t *testing.T) {
	cause := errors.New("underlying cause")
	e := newAlertError(CategoryAlertSent, alertHandshakeFailure, cause)
	if errors.Unwrap(e) != cause {
		t.Fatal("Error.Unwrap did not return the wrapped cause")
	}
	if e.Error() == "" {
		t.Fatal("Error.Error() returned an empty string")
	}
}

func TestDirectionString(t *testing.T) {
	if DirectionRead.String() != "read" {
		t.Fatalf("DirectionRead.String() = %q", DirectionRead.String())
	}
	if DirectionWrite.String() != "write" {
		t.Fatalf("DirectionWrite.String() = %q", DirectionWrite.String())
	}
	if Direction(99).String() != "unknown" {
		t.Fatalf("Direction(99).String() = %q", Direction(99).String())
	}
}
