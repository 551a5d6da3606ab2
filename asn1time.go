// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"fmt"
	"time"
)

// ParseASN1Time parses an ASN.1 UTCTime ("YYMMDDHHMMSSZ") or
// GeneralizedTime ("YYYYMMDDHHMMSSZ") string, as found in a certificate's
// notBefore/notAfter fields, and returns Unix epoch nanoseconds.
//
// This does not reproduce the local-timezone DST correction some
// certificate-time parsers apply to non-"Z" ASN.1 times; every time this
// package accepts is UTC ("Z"-suffixed), matching the wire format every
// CA in practice emits (see the Open Question decision in DESIGN.md).
func ParseASN1Time(s string) (int64, error) {
	var t time.Time
	var err error
	switch len(s) {
	case 13: // YYMMDDHHMMSSZ
		t, err = time.Parse("060102150405Z0700", s)
	case 15: // YYYYMMDDHHMMSSZ
		t, err = time.Parse("20060102150405Z0700", s)
	default:
		return 0, fmt.Errorf("tlsconn: malformed ASN.1 time %q", s)
	}
	if err != nil {
		return 0, fmt.Errorf("tlsconn: malformed ASN.1 time %q: %w", s, err)
	}
	return t.UnixNano(), nil
}
