package database

import (
	"time"
)

type Archive struct {
	ID         string     `json:"id"`
	Version    string     `json:"version"`
	Content    string     `json:"content,omitempty"`
	Checksum   string     `json:"checksum"`
	Signature  string     `json:"signature,omitempty"`
	SizeBytes  int64      `json:"size_bytes"`
	Tampered   bool       `json:"tampered"`
	CreatedAt  time.Time  `json:"created_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// IntegrityReport summarizes one VerifyIntegrity pass.
type IntegrityReport struct {
	Checked     int
	Tampered    []string
	CompletedAt time.Time
}
