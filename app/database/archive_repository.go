package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/atf-feed/app/feed"
)

const defaultListLimit = 100

var (
	ErrArchiveNotFound  = errors.New("archive not found")
	ErrDuplicateArchive = errors.New("archive with identical content already exists")
)

// ArchiveRepository handles database operations for archived feed versions
type ArchiveRepository struct {
	db *DB
}

// NewArchiveRepository creates a new archive repository
func NewArchiveRepository(db *DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// CreateArchive stores content under a new ID. Content whose checksum is
// already archived is rejected with ErrDuplicateArchive, alongside the
// existing archive.
func (r *ArchiveRepository) CreateArchive(version string, content []byte, signature string, now time.Time) (*Archive, error) {
	archive := &Archive{
		ID:        uuid.NewString(),
		Version:   version,
		Content:   string(content),
		Checksum:  feed.Checksum(content),
		Signature: signature,
		SizeBytes: int64(len(content)),
		CreatedAt: now.UTC(),
	}

	result, err := r.db.Exec(`
		INSERT INTO archives (id, version, content, checksum, signature, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(checksum) DO NOTHING
	`, archive.ID, archive.Version, archive.Content, archive.Checksum, archive.Signature,
		archive.SizeBytes, archive.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store archive: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to store archive: %w", err)
	}
	if inserted == 0 {
		existing, err := r.FindByChecksum(archive.Checksum)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: checksum %s", ErrDuplicateArchive, archive.Checksum)
		}
		return existing, fmt.Errorf("%w: %s", ErrDuplicateArchive, existing.ID)
	}

	return archive, nil
}

func (r *ArchiveRepository) GetArchive(id string) (*Archive, error) {
	row := r.db.QueryRow(`
		SELECT id, version, content, checksum, signature, size_bytes, tampered, created_at, verified_at
		FROM archives
		WHERE id = ?
	`, id)

	archive, err := scanArchive(row)
	if err == sql.ErrNoRows {
		return nil, ErrArchiveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive: %w", err)
	}
	return archive, nil
}

// FindByChecksum returns nil without error when no archive matches.
func (r *ArchiveRepository) FindByChecksum(checksum string) (*Archive, error) {
	row := r.db.QueryRow(`
		SELECT id, version, content, checksum, signature, size_bytes, tampered, created_at, verified_at
		FROM archives
		WHERE checksum = ?
		LIMIT 1
	`, checksum)

	archive, err := scanArchive(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find archive by checksum: %w", err)
	}
	return archive, nil
}

// ListArchives returns archive metadata, newest first, without content.
func (r *ArchiveRepository) ListArchives(limit int) ([]Archive, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.Query(`
		SELECT id, version, '', checksum, signature, size_bytes, tampered, created_at, verified_at
		FROM archives
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	defer rows.Close()

	archives := []Archive{}
	for rows.Next() {
		archive, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		archives = append(archives, *archive)
	}

	return archives, rows.Err()
}

func (r *ArchiveRepository) GetArchiveCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM archives`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count archives: %w", err)
	}
	return count, nil
}

// VerifyIntegrity recomputes the checksum of every archive, flags rows whose
// content no longer matches and stamps verified_at on all of them.
func (r *ArchiveRepository) VerifyIntegrity(now time.Time) (*IntegrityReport, error) {
	type stored struct {
		id, content, checksum string
	}

	rows, err := r.db.Query(`SELECT id, content, checksum FROM archives ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load archives: %w", err)
	}

	var all []stored
	for rows.Next() {
		var s stored
		if err := rows.Scan(&s.id, &s.content, &s.checksum); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		all = append(all, s)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report := &IntegrityReport{Checked: len(all), Tampered: []string{}, CompletedAt: now.UTC()}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, s := range all {
		tampered := feed.Checksum([]byte(s.content)) != s.checksum
		if tampered {
			report.Tampered = append(report.Tampered, s.id)
		}
		if _, err := tx.Exec(`UPDATE archives SET tampered = ?, verified_at = ? WHERE id = ?`,
			tampered, report.CompletedAt, s.id); err != nil {
			return nil, fmt.Errorf("failed to update archive %s: %w", s.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit verification: %w", err)
	}

	return report, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchive(row rowScanner) (*Archive, error) {
	var archive Archive
	var verifiedAt sql.NullTime

	err := row.Scan(&archive.ID, &archive.Version, &archive.Content, &archive.Checksum,
		&archive.Signature, &archive.SizeBytes, &archive.Tampered, &archive.CreatedAt, &verifiedAt)
	if err != nil {
		return nil, err
	}

	if verifiedAt.Valid {
		archive.VerifiedAt = &verifiedAt.Time
	}
	return &archive, nil
}
