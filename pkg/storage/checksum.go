package storage

import "golang.org/x/crypto/blake2b"

// checksumSize is the width of a blake2b-256 digest.
const checksumSize = 32

// checksum returns the blake2b-256 digest of payload. Every page file
// trails its serialized body with this digest; a mismatch on read is
// reported as a KindIO error (corruption), never silently ignored.
func checksum(payload []byte) [checksumSize]byte {
	return blake2b.Sum256(payload)
}
