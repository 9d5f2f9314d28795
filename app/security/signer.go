package security

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrInvalidSignature = errors.New("invalid signature")

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}

// Signer produces RSA-PSS/SHA-256 signatures over feed bytes.
type Signer struct {
	key *rsa.PrivateKey
}

func NewSigner(key *rsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// Sign returns the hex-encoded signature of data.
func (s *Signer) Sign(data []byte) (string, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return "", fmt.Errorf("failed to sign content: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// Verify checks a hex-encoded signature produced by a Signer. Any mismatch,
// including malformed hex, wraps ErrInvalidSignature.
func Verify(key *rsa.PublicKey, data []byte, signature string) error {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed hex: %v", ErrInvalidSignature, err)
	}

	digest := sha256.Sum256(data)
	if err := rsa.VerifyPSS(key, crypto.SHA256, digest[:], sig, pssOptions); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
