package database

import (
	"time"
)

// ArchiveStore is the archive persistence surface used by tasks and the API.
type ArchiveStore interface {
	CreateArchive(version string, content []byte, signature string, now time.Time) (*Archive, error)
	GetArchive(id string) (*Archive, error)
	FindByChecksum(checksum string) (*Archive, error)
	ListArchives(limit int) ([]Archive, error)
	GetArchiveCount() (int, error)

	VerifyIntegrity(now time.Time) (*IntegrityReport, error)
}
