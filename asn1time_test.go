// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import "testing"

func TestParseASN1TimeGeneralizedTime(t *testing.T) {
	got, err := ParseASN1Time("20150131235959Z")
	if err != nil {
		t.Fatalf("ParseASN1Time: %v", err)
	}
	want := int64(1422748799) * 1e9
	if got != want {
		t.Fatalf("ParseASN1Time = %d, want %d", got, want)
	}
}

func TestParseASN1TimeUTCTime(t *testing.T) {
	got, err := ParseASN1Time("150131235959Z")
	if err != nil {
		t.Fatalf("ParseASN1Time: %v", err)
	}
	want := int64(1422748799) * 1e9
	if got != want {
		t.Fatalf("ParseASN1Time = %d, want %d", got, want)
	}
}

func TestParseASN1TimeRejectsInvalidMonth(t *testing.T) {
	if _, err := ParseASN1Time("20151331000000Z"); err == nil {
		t.Fatal("ParseASN1Time accepted month 13, want error")
	}
}

func TestParseASN1TimeRejectsWrongLength(t *testing.T) {
	if _, err := ParseASN1Time("2015013123595Z"); err == nil {
		t.Fatal("ParseASN1Time accepted a malformed-length string, want error")
	}
}

func TestParseASN1TimeRejectsMissingZSuffix(t *testing.T) {
	if _, err := ParseASN1Time("20150131235959"); err == nil {
		t.Fatal("ParseASN1Time accepted a string without the Z suffix, want error")
	}
}
