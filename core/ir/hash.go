package ir

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashBytes computes the BLAKE3-256 hash of bytes as a hex string.
func HashBytes(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashString computes the BLAKE3-256 hash of a string as a hex string.
func HashString(s string) string {
	return HashBytes([]byte(s))
}
