// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsconn

import (
	"crypto/aes"
	"crypto/cipher"

	"gitlab.com/yawning/bsaes.git"
)

// aesNewCipher returns the platform-accelerated stdlib AES block cipher.
// Only the AES-GCM suites use it (AEAD suites wrap the MAC into a single
// authenticated operation and so have no comparable padding-oracle timing
// channel); CBC-mode suites, the channel most exposed to Lucky-13-class
// timing attacks, get aesNewConstantTimeCipher instead.
func aesNewCipher(key []byte) (cipher.Block, error) {
	return aes.NewCipher(key)
}

// aesNewConstantTimeCipher returns a bitsliced, branch-free AES block
// cipher. cipherAES in cipher_suites.go builds every AES-CBC cipher with
// this instead of aesNewCipher.
func aesNewConstantTimeCipher(key []byte) (cipher.Block, error) {
	return bsaes.NewCipher(key)
}
