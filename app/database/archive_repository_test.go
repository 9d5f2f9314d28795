package database

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupRepository(t *testing.T) (*DB, *ArchiveRepository) {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "archives", "atf.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("Expected clean migration version 1, got %d (dirty: %v)", version, dirty)
	}

	return db, NewArchiveRepository(db)
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db, _ := setupRepository(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected second migration run to succeed, got: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected version 1, got %d (dirty: %v)", version, dirty)
	}
}

func TestCreateAndGetArchive(t *testing.T) {
	_, repo := setupRepository(t)

	content := []byte(`<atf version="1.0"></atf>`)
	created, err := repo.CreateArchive("2025.06", content, "abcd", testNow)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	if created.ID == "" {
		t.Error("Expected archive ID to be assigned")
	}
	if created.SizeBytes != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), created.SizeBytes)
	}

	got, err := repo.GetArchive(created.ID)
	if err != nil {
		t.Fatalf("Failed to get archive: %v", err)
	}
	if got.Content != string(content) {
		t.Errorf("Expected content to round trip, got: %s", got.Content)
	}
	if got.Version != "2025.06" || got.Signature != "abcd" {
		t.Errorf("Unexpected archive metadata: %+v", got)
	}
	if got.Checksum != created.Checksum {
		t.Errorf("Expected checksum %s, got %s", created.Checksum, got.Checksum)
	}
	if !got.CreatedAt.Equal(testNow) {
		t.Errorf("Expected created_at %v, got %v", testNow, got.CreatedAt)
	}
	if got.Tampered || got.VerifiedAt != nil {
		t.Errorf("Expected fresh archive to be unverified and untampered, got %+v", got)
	}
}

func TestGetArchiveNotFound(t *testing.T) {
	_, repo := setupRepository(t)

	_, err := repo.GetArchive("missing")
	if !errors.Is(err, ErrArchiveNotFound) {
		t.Errorf("Expected ErrArchiveNotFound, got: %v", err)
	}
}

func TestCreateArchiveDuplicate(t *testing.T) {
	_, repo := setupRepository(t)

	content := []byte("<atf/>")
	first, err := repo.CreateArchive("1", content, "", testNow)
	if err != nil {
		t.Fatal(err)
	}

	existing, err := repo.CreateArchive("2", content, "", testNow.Add(time.Hour))
	if !errors.Is(err, ErrDuplicateArchive) {
		t.Fatalf("Expected ErrDuplicateArchive, got: %v", err)
	}
	if existing == nil || existing.ID != first.ID {
		t.Errorf("Expected existing archive %s to be returned, got %+v", first.ID, existing)
	}

	count, err := repo.GetArchiveCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected 1 archive, got %d", count)
	}
}

func TestCreateArchiveConcurrentDuplicates(t *testing.T) {
	_, repo := setupRepository(t)

	content := []byte("<atf><channel/></atf>")
	const workers = 8

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.CreateArchive("1", content, "", testNow)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDuplicateArchive):
		default:
			t.Errorf("Expected nil or ErrDuplicateArchive, got: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("Expected exactly 1 archive created, got %d", created)
	}

	count, err := repo.GetArchiveCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected 1 stored archive, got %d", count)
	}
}

func TestFindByChecksum(t *testing.T) {
	_, repo := setupRepository(t)

	missing, err := repo.FindByChecksum("nothing")
	if err != nil || missing != nil {
		t.Errorf("Expected nil archive and nil error, got %+v, %v", missing, err)
	}

	created, err := repo.CreateArchive("1", []byte("feed"), "", testNow)
	if err != nil {
		t.Fatal(err)
	}
	found, err := repo.FindByChecksum(created.Checksum)
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != created.ID {
		t.Errorf("Expected archive %s, got %+v", created.ID, found)
	}
}

func TestListArchives(t *testing.T) {
	_, repo := setupRepository(t)

	for i, body := range []string{"one", "two", "three"} {
		if _, err := repo.CreateArchive(body, []byte(body), "", testNow.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	archives, err := repo.ListArchives(2)
	if err != nil {
		t.Fatalf("Failed to list archives: %v", err)
	}
	if len(archives) != 2 {
		t.Fatalf("Expected 2 archives, got %d", len(archives))
	}
	if archives[0].Version != "three" || archives[1].Version != "two" {
		t.Errorf("Expected newest first, got %s, %s", archives[0].Version, archives[1].Version)
	}
	if archives[0].Content != "" {
		t.Error("Expected list to omit content")
	}

	all, err := repo.ListArchives(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("Expected default limit to return all 3 archives, got %d", len(all))
	}
}

func TestVerifyIntegrity(t *testing.T) {
	db, repo := setupRepository(t)

	intact, err := repo.CreateArchive("1", []byte("intact"), "", testNow)
	if err != nil {
		t.Fatal(err)
	}
	modified, err := repo.CreateArchive("2", []byte("original"), "", testNow.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := db.Exec(`UPDATE archives SET content = 'altered' WHERE id = ?`, modified.ID); err != nil {
		t.Fatal(err)
	}

	verifiedAt := testNow.Add(time.Hour)
	report, err := repo.VerifyIntegrity(verifiedAt)
	if err != nil {
		t.Fatalf("Failed to verify integrity: %v", err)
	}
	if report.Checked != 2 {
		t.Errorf("Expected 2 archives checked, got %d", report.Checked)
	}
	if len(report.Tampered) != 1 || report.Tampered[0] != modified.ID {
		t.Errorf("Expected %s to be reported as tampered, got %v", modified.ID, report.Tampered)
	}

	got, err := repo.GetArchive(modified.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Tampered {
		t.Error("Expected modified archive to be flagged")
	}
	if got.VerifiedAt == nil || !got.VerifiedAt.Equal(verifiedAt) {
		t.Errorf("Expected verified_at %v, got %v", verifiedAt, got.VerifiedAt)
	}

	clean, err := repo.GetArchive(intact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if clean.Tampered {
		t.Error("Expected intact archive not to be flagged")
	}
}
