package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Checksum returns the hex-encoded SHA-256 of data.
func Checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ChecksumReader hashes r in streaming fashion.
func ChecksumReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
