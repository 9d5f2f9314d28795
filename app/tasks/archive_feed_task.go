package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/atf-feed/app/database"
)

// ArchiveFeedTask stores one validated feed version in the archive.
type ArchiveFeedTask struct {
	Task
	content     []byte
	signature   string
	archiveRepo database.ArchiveStore
}

func NewArchiveFeedTask(version string, content []byte, signature string, archiveRepo database.ArchiveStore) *ArchiveFeedTask {
	return &ArchiveFeedTask{
		Task:        NewTask(TaskTypeArchiveFeed, version),
		content:     content,
		signature:   signature,
		archiveRepo: archiveRepo,
	}
}

func (t *ArchiveFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	archive, err := t.archiveRepo.CreateArchive(t.Target, t.content, t.signature, time.Now())
	if errors.Is(err, database.ErrDuplicateArchive) {
		slog.Info("Archive already exists, skipping",
			"version", t.Target,
			"archive_id", archive.ID,
			"checksum", archive.Checksum)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to archive feed: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"version", t.Target,
		"archive_id", archive.ID,
		"size_bytes", archive.SizeBytes,
		"duration", t.GetDuration())

	return nil
}
