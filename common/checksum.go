package common

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

// ChecksumWriter hashes everything written to it.
type ChecksumWriter struct {
	hash hash.Hash
}

func NewChecksumWriter() *ChecksumWriter {
	return &ChecksumWriter{hash: sha256.New()}
}

func (w *ChecksumWriter) Write(p []byte) (int, error) {
	return w.hash.Write(p)
}

// Sum returns the hex encoded SHA-256 digest of all written bytes.
func (w *ChecksumWriter) Sum() string {
	return hex.EncodeToString(w.hash.Sum(nil))
}

// ChecksumMatches compares two hex digests, ignoring case and surrounding whitespace.
// A sha256sum style line "<digest>  <file>" is accepted as expected value.
func ChecksumMatches(expected string, actual string) bool {
	fields := strings.Fields(expected)
	if len(fields) == 0 {
		return false
	}
	return strings.EqualFold(fields[0], strings.TrimSpace(actual))
}
