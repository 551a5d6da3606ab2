// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"fmt"
	"io"
)

// Role distinguishes which side of the handshake a Connection plays
// (spec §4.4's per-role state machines).
type Role int

const (
	RoleClient Role = iota + 1
	RoleServer
)

// handshakeStatus tracks Negotiate's progress across repeated calls that
// may each return a blocked error (spec §3's cooperative-suspension
// model: Negotiate is re-entrant and resumes from where it left off).
type handshakeStatus int

const (
	handshakeNotStarted handshakeStatus = iota
	handshakeInProgress
	handshakeComplete
)

// Connection is the public façade over the record and handshake layers
// (spec §4.6). It owns the active and pending crypto-parameter banks,
// the two alert queues, and the buffers the record codec reads and
// writes through.
type Connection struct {
	role   Role
	config *Config

	transport Transport

	serverName        string
	alpnProtocols     []string
	negotiatedALPN    string
	statusRequestType uint8
	maxFragmentLength uint8

	version uint16
	suite   *cipherSuite
	suite13 *cipherSuiteTLS13

	readParams, pendingReadParams   *cryptoParams
	writeParams, pendingWriteParams *cryptoParams

	transcript *transcriptHash

	readAlerts, writeAlerts alertQueue

	in, out         *byteBuffer
	headerIn        *byteBuffer
	pendingOutgoing []byte // bytes already sealed, awaiting a successful Transport.Write

	// readRecord's own checkpoint: once the 5-byte header has been read
	// and parsed, its fields are stashed here so a resumed call skips
	// straight to filling the body instead of re-reading header bytes
	// out of what is by then mid-body transport data.
	haveRecordHeader     bool
	pendingRecordType    recordType
	pendingRecordVersion uint16
	pendingRecordLen     int

	status handshakeStatus
	hs     interface{ resume() error }

	closing bool
	closed  bool

	bytesSent, bytesReceived uint64
}

// New creates a Connection for the given role (spec §4.6's Connection
// Object: "New(role)").
func New(role Role) *Connection {
	return &Connection{
		role:        role,
		in:          newGrowableBuffer(maxRecordLen),
		out:         newGrowableBuffer(maxRecordLen),
		headerIn:    newGrowableBuffer(recordHeaderLen),
		readParams:  newNullCryptoParams(),
		writeParams: newNullCryptoParams(),
	}
}

// SetConfig attaches shared configuration, freezing it on first attach
// (spec §3's ownership/lifecycle rule).
func (c *Connection) SetConfig(cfg *Config) {
	cfg.freeze()
	c.config = cfg
}

// SetTransport installs the nonblocking transport this Connection reads
// and writes through (spec's "set_fd" renamed to fit the Transport
// interface design in transport.go).
func (c *Connection) SetTransport(t Transport) { c.transport = t }

// SetServerName sets the SNI value a client sends, or the value a server
// matches a certificate against (spec §4.6).
func (c *Connection) SetServerName(name string) { c.serverName = name }

// SetProtocolPreferences sets the ALPN protocol list, in preference
// order (spec §4.6; selection algorithm in handshake_messages.go).
func (c *Connection) SetProtocolPreferences(protocols []string) {
	c.alpnProtocols = append([]string{}, protocols...)
}

// SetStatusRequestType sets the OCSP status request a client sends: 0
// disables it, 1 adds a status_request extension asking for OCSP to the
// ClientHello (spec §4.6 / RFC 6066 §8). A server does not consult it
// and sends no OCSP response.
func (c *Connection) SetStatusRequestType(t uint8) { c.statusRequestType = t }

// NegotiatedProtocol returns the ALPN protocol chosen during the
// handshake, or "" if none was negotiated.
func (c *Connection) NegotiatedProtocol() string { return c.negotiatedALPN }

// Version returns the negotiated protocol version; zero before
// Negotiate completes.
func (c *Connection) Version() uint16 { return c.version }

// Negotiate drives the handshake state machine forward. It returns nil
// on completion, an *Error wrapping ErrWouldBlock (see transport.go) if
// the underlying Transport would block, and any other error fatally
// (spec §4.4's "blocked(direction)" re-entrant negotiation loop).
func (c *Connection) Negotiate() error {
	if c.status == handshakeComplete {
		return nil
	}
	if c.transport == nil {
		return newError(CategoryUsage, fmt.Errorf("tlsconn: no transport installed"))
	}
	if c.config == nil {
		return newError(CategoryUsage, fmt.Errorf("tlsconn: no config installed"))
	}

	if c.hs == nil {
		switch c.role {
		case RoleClient:
			c.hs = newClientHandshake(c)
		case RoleServer:
			c.hs = newServerHandshake(c)
		default:
			return newError(CategoryUsage, fmt.Errorf("tlsconn: invalid role"))
		}
		c.status = handshakeInProgress
	}

	if err := c.hs.resume(); err != nil {
		return err
	}
	c.status = handshakeComplete
	c.hs = nil
	return nil
}

// Send encrypts and transmits application data once the handshake is
// complete, fragmenting per chooseFragmentLength (spec §4.6 "Send").
func (c *Connection) Send(payload []byte) (int, error) {
	if c.status != handshakeComplete {
		return 0, newError(CategoryUsage, fmt.Errorf("tlsconn: Send before handshake complete"))
	}
	if c.closing {
		return 0, newError(CategoryClosed, fmt.Errorf("tlsconn: connection is closing"))
	}

	sent := 0
	for sent < len(payload) {
		n := chooseFragmentLength(len(payload)-sent, int(maxFragmentLengthFromCode(c.maxFragmentLength)))
		record := c.writeParams.seal(recordTypeApplicationData, c.recordVersion(), payload[sent:sent+n])
		if err := c.flush(record); err != nil {
			return sent, err
		}
		sent += n
	}
	c.bytesSent += uint64(sent)
	return sent, nil
}

// Recv reads and decrypts the next chunk of application data into buf
// (spec §4.6 "Recv").
func (c *Connection) Recv(buf []byte) (int, error) {
	if c.status != handshakeComplete {
		return 0, newError(CategoryUsage, fmt.Errorf("tlsconn: Recv before handshake complete"))
	}
	for {
		typ, payload, err := c.readRecord()
		if err != nil {
			return 0, err
		}
		switch typ {
		case recordTypeApplicationData:
			n := copy(buf, payload)
			c.bytesReceived += uint64(n)
			return n, nil
		case recordTypeAlert:
			if err := c.handleAlert(payload); err != nil {
				return 0, err
			}
			if c.closed {
				return 0, newError(CategoryClosed, nil)
			}
		default:
			return 0, newError(CategoryProtocol, fmt.Errorf("tlsconn: unexpected record type %s during Recv", typ))
		}
	}
}

// Shutdown sends a close_notify alert (spec §4.6 "Shutdown"; RFC 5246
// §7.2.1's "both parties are required to issue a close_notify").
func (c *Connection) Shutdown() error {
	if c.closing {
		return nil
	}
	c.closing = true
	record := c.writeParams.seal(recordTypeAlert, c.recordVersion(), []byte{byte(alertLevelWarning), byte(alertCloseNotify)})
	return c.flush(record)
}

// Free zeroes and releases the inbound, outbound and header record
// buffers (spec §4.6 "Free"). It does not wipe the keys held in the
// cipher state of the active or pending crypto-parameter banks.
func (c *Connection) Free() {
	c.in.free()
	c.out.free()
	c.headerIn.free()
}

func (c *Connection) recordVersion() uint16 {
	if c.version == VersionTLS13 {
		return recordLayerVersionTLS13
	}
	return c.version
}

// flush hands a sealed record to the Transport, honoring ErrWouldBlock
// by retaining the unwritten suffix for the next call (spec §3's
// "blocked(write)" discipline).
func (c *Connection) flush(record []byte) error {
	buf := append(c.pendingOutgoing, record...)
	c.pendingOutgoing = nil
	for len(buf) > 0 {
		n, err := c.transport.Write(buf)
		if n > 0 {
			buf = buf[n:]
		}
		if err != nil {
			if err == ErrWouldBlock {
				c.pendingOutgoing = buf
				return newBlockedError(DirectionWrite)
			}
			return newError(CategoryInternal, err)
		}
	}
	return nil
}

// readRecord reads, reassembles, and decrypts one full record from the
// transport, reporting blocked(read) if the transport has no more bytes
// yet (spec §3/§4.2). It is safe to call again after a blocked(read):
// the header and body each fill through fillFromTransport's own
// resumable progress, and haveRecordHeader keeps a resumed call from
// re-reading header bytes out of what by then is mid-body data.
func (c *Connection) readRecord() (recordType, []byte, error) {
	if !c.haveRecordHeader {
		if err := c.fillFromTransport(c.headerIn, recordHeaderLen); err != nil {
			return 0, nil, err
		}
		header := c.headerIn.store[:recordHeaderLen]
		typ, version, length, err := parseRecordHeader(header)
		if err != nil {
			return 0, nil, newError(CategoryProtocol, err)
		}
		c.headerIn.reset()
		c.in.reset()
		c.pendingRecordType = typ
		c.pendingRecordVersion = version
		c.pendingRecordLen = length
		c.haveRecordHeader = true
	}

	if err := c.fillFromTransport(c.in, c.pendingRecordLen); err != nil {
		return 0, nil, err
	}
	fragment := c.in.store[:c.pendingRecordLen]
	c.in.reset()
	c.haveRecordHeader = false

	outType, plaintext, err := c.readParams.open(c.pendingRecordType, c.pendingRecordVersion, fragment)
	if err != nil {
		return 0, nil, newAlertError(CategoryProtocol, alertBadRecordMAC, err)
	}
	return outType, plaintext, nil
}

// fillFromTransport reads until buf's write cursor reaches n, growing
// buf if needed, returning blocked(read) if the Transport runs dry
// first. Progress lives in buf.writeCursor rather than a local
// variable, so a call that blocks partway through can be resumed by
// calling again with the same buf and n: it picks up exactly where the
// previous call left off instead of re-reading from byte 0.
func (c *Connection) fillFromTransport(buf *byteBuffer, n int) error {
	if n > buf.writeCursor {
		if err := buf.reserve(n - buf.writeCursor); err != nil {
			return newError(CategoryInternal, err)
		}
		buf.ensureLen(n)
	}
	for buf.writeCursor < n {
		read, err := c.transport.Read(buf.store[buf.writeCursor:n])
		buf.writeCursor += read
		if err == io.EOF || (read == 0 && err == nil) {
			if buf.writeCursor >= n {
				return nil
			}
			if c.status == handshakeComplete {
				return newError(CategoryClosed, ErrClosedWithoutNotify)
			}
			return newError(CategoryClosed, ErrClosedEarly)
		}
		if err != nil {
			if err == ErrWouldBlock {
				return newBlockedError(DirectionRead)
			}
			return newError(CategoryInternal, err)
		}
	}
	return nil
}

// handleAlert records a received alert and, for fatal alerts or
// close_notify, transitions the connection to closed (spec §4.4's
// "[Alert handling]": fatal -> CLOSED, warning recorded, close_notify
// triggers a graceful shutdown).
func (c *Connection) handleAlert(payload []byte) error {
	if len(payload) != 2 {
		return newError(CategoryProtocol, fmt.Errorf("tlsconn: malformed alert"))
	}
	level, desc := alertLevel(payload[0]), alertDescription(payload[1])
	c.readAlerts.push(level, desc)

	if desc == alertCloseNotify {
		c.closed = true
		return nil
	}
	if level == alertLevelFatal {
		c.closed = true
		return newAlertError(CategoryAlertReceived, desc, fmt.Errorf("tlsconn: received fatal alert: %s", desc))
	}
	return nil
}

// sendFatalAlert seals and flushes a fatal alert, for use by the
// handshake state machines on protocol violations (spec §4.4's alert
// handling).
func (c *Connection) sendFatalAlert(desc alertDescription) error {
	c.writeAlerts.push(alertLevelFatal, desc)
	record := c.writeParams.seal(recordTypeAlert, c.recordVersion(), []byte{byte(alertLevelFatal), byte(desc)})
	_ = c.flush(record) // best-effort; the caller's error is what matters
	c.closed = true
	return nil
}
