// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"encoding/binary"
	"errors"
)

// Buffer errors, per spec §4.1's failure-mode list.
var (
	ErrBufferOutOfData  = errors.New("tlsconn: buffer: out of data")
	ErrBufferFull       = errors.New("tlsconn: buffer: full")
	ErrBufferNotGrowable = errors.New("tlsconn: buffer: resize disallowed")
	ErrBufferNull       = errors.New("tlsconn: buffer: null payload")
)

// byteBuffer is a linear byte arena with a read cursor, a write cursor, a
// high-water mark, and taint/growable/mlocked flags. All wire I/O and all
// cryptographic input/output in this package go through one of these.
//
// Invariant: 0 <= readCursor <= writeCursor <= highWater <= len(store) <= cap(store).
type byteBuffer struct {
	store     []byte
	readCursor  int
	writeCursor int
	highWater   int

	growable bool
	tainted  bool
	mlocked  bool
}

// newStaticBuffer wraps caller memory without copying. The result is
// read-only: growable=false, tainted=true, matching spec §4.1's
// "read-only buffer aliases caller memory" rule.
func newStaticBuffer(mem []byte) *byteBuffer {
	return &byteBuffer{
		store:       mem,
		writeCursor: len(mem),
		highWater:   len(mem),
		growable:    false,
		tainted:     true,
	}
}

// newReadOnlyBufferFromString is the string-sourced sibling of
// newStaticBuffer; it copies once (strings are immutable, but the
// conversion to []byte is not) and is otherwise identical.
func newReadOnlyBufferFromString(s string) *byteBuffer {
	return newStaticBuffer([]byte(s))
}

// newGrowableBuffer allocates owned, growable storage with the given
// initial capacity.
func newGrowableBuffer(initial int) *byteBuffer {
	return &byteBuffer{
		store:    make([]byte, 0, initial),
		growable: true,
	}
}

func (b *byteBuffer) len() int { return b.writeCursor - b.readCursor }

// reserve grows the backing store to hold at least n more bytes past
// writeCursor, if growable; otherwise it is a failure.
func (b *byteBuffer) reserve(n int) error {
	need := b.writeCursor + n
	if need <= cap(b.store) {
		return nil
	}
	if !b.growable || b.tainted {
		return ErrBufferNotGrowable
	}
	grown := make([]byte, len(b.store), need*2+64)
	copy(grown, b.store)
	b.store = grown
	return nil
}

func (b *byteBuffer) ensureLen(n int) {
	if n > len(b.store) {
		b.store = b.store[:n]
	}
}

// writeBytes appends p, growing if permitted and necessary.
func (b *byteBuffer) writeBytes(p []byte) error {
	if p == nil {
		return ErrBufferNull
	}
	if err := b.reserve(len(p)); err != nil {
		if b.writeCursor+len(p) > cap(b.store) {
			return err
		}
	}
	b.ensureLen(b.writeCursor + len(p))
	copy(b.store[b.writeCursor:], p)
	b.writeCursor += len(p)
	if b.writeCursor > b.highWater {
		b.highWater = b.writeCursor
	}
	return nil
}

func (b *byteBuffer) writeU8(v uint8) error { return b.writeBytes([]byte{v}) }

func (b *byteBuffer) writeU16(v uint16) error {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return b.writeBytes(tmp[:])
}

func (b *byteBuffer) writeU24(v uint32) error {
	if v > 0xFFFFFF {
		return errors.New("tlsconn: buffer: u24 overflow")
	}
	return b.writeBytes([]byte{byte(v >> 16), byte(v >> 8), byte(v)})
}

func (b *byteBuffer) writeU32(v uint32) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return b.writeBytes(tmp[:])
}

func (b *byteBuffer) writeU64(v uint64) error {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return b.writeBytes(tmp[:])
}

// readBytes consumes and returns a copy of the next n bytes.
func (b *byteBuffer) readBytes(n int) ([]byte, error) {
	if b.readCursor+n > b.writeCursor {
		return nil, ErrBufferOutOfData
	}
	out := make([]byte, n)
	copy(out, b.store[b.readCursor:b.readCursor+n])
	b.readCursor += n
	return out, nil
}

func (b *byteBuffer) readU8() (uint8, error) {
	p, err := b.readBytes(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (b *byteBuffer) readU16() (uint16, error) {
	p, err := b.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (b *byteBuffer) readU24() (uint32, error) {
	p, err := b.readBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2]), nil
}

func (b *byteBuffer) readU32() (uint32, error) {
	p, err := b.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (b *byteBuffer) readU64() (uint64, error) {
	p, err := b.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

// rawRead returns a zero-copy window into the next n unread bytes and
// advances the read cursor past them. Handing out this window taints the
// buffer: a tainted buffer can never be grown again, because growth may
// reallocate the backing store and invalidate the window.
func (b *byteBuffer) rawRead(n int) ([]byte, error) {
	if b.readCursor+n > b.writeCursor {
		return nil, ErrBufferOutOfData
	}
	window := b.store[b.readCursor : b.readCursor+n : b.readCursor+n]
	b.readCursor += n
	b.tainted = true
	return window, nil
}

// rawWrite returns a zero-copy window of n bytes at the current write
// cursor for the caller to fill in place (used for fixed-size crypto
// outputs such as digests and signatures). Like rawRead, this taints the
// buffer.
func (b *byteBuffer) rawWrite(n int) ([]byte, error) {
	if err := b.reserve(n); err != nil {
		if b.writeCursor+n > cap(b.store) {
			return nil, err
		}
	}
	b.ensureLen(b.writeCursor + n)
	window := b.store[b.writeCursor : b.writeCursor+n : b.writeCursor+n]
	b.writeCursor += n
	if b.writeCursor > b.highWater {
		b.highWater = b.writeCursor
	}
	b.tainted = true
	return window, nil
}

func (b *byteBuffer) skipRead(n int) error {
	if b.readCursor+n > b.writeCursor {
		return ErrBufferOutOfData
	}
	b.readCursor += n
	return nil
}

func (b *byteBuffer) skipWrite(n int) error {
	if err := b.reserve(n); err != nil {
		if b.writeCursor+n > cap(b.store) {
			return err
		}
	}
	b.ensureLen(b.writeCursor + n)
	for i := b.writeCursor; i < b.writeCursor+n; i++ {
		b.store[i] = 0
	}
	b.writeCursor += n
	if b.writeCursor > b.highWater {
		b.highWater = b.writeCursor
	}
	return nil
}

// reset rewinds both cursors to the start without touching storage; used
// between records on a long-lived buffer.
func (b *byteBuffer) reset() {
	b.readCursor = 0
	b.writeCursor = 0
}

// wipe zeroes [0, highWater) and resets both cursors, without releasing
// the backing store. Used between handshake messages that carried key
// material through this buffer.
func (b *byteBuffer) wipe() {
	for i := 0; i < b.highWater; i++ {
		b.store[i] = 0
	}
	b.readCursor = 0
	b.writeCursor = 0
	b.highWater = 0
}

// free zeroes the entire owned backing store (capacity included) and
// releases it. Calling any other method afterward is a usage error.
func (b *byteBuffer) free() {
	full := b.store[:cap(b.store)]
	for i := range full {
		full[i] = 0
	}
	if b.mlocked {
		munlockBestEffort(full)
		b.mlocked = false
	}
	b.store = nil
	b.readCursor = 0
	b.writeCursor = 0
	b.highWater = 0
}

// lockMemory best-effort mlocks the buffer's backing store so that key
// material in it is never written to swap. Safe to call multiple times;
// a no-op on platforms without mlock support (see mlock_*.go).
func (b *byteBuffer) lockMemory() {
	if b.mlocked || cap(b.store) == 0 {
		return
	}
	if mlockBestEffort(b.store[:cap(b.store)]) {
		b.mlocked = true
	}
}
