package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/TGLookupBot/internal/database"
)

// SnapshotUploader stores a copy of the data file off-site.
type SnapshotUploader interface {
	UploadSnapshot(ctx context.Context, data []byte) (string, error)
}

type SnapshotService struct {
	store    *database.Store
	uploader SnapshotUploader
	log      *slog.Logger
}

func NewSnapshotService(store *database.Store, uploader SnapshotUploader, log *slog.Logger) *SnapshotService {
	return &SnapshotService{store: store, uploader: uploader, log: log}
}

// Upload copies the current data file to the uploader.
func (s *SnapshotService) Upload(ctx context.Context) (string, error) {
	data, err := s.store.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	key, err := s.uploader.UploadSnapshot(ctx, data)
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return key, nil
}

// Run uploads a snapshot every interval until ctx is done.
func (s *SnapshotService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			key, err := s.Upload(ctx)
			if err != nil {
				s.log.Error("snapshot upload failed", "err", err)
				continue
			}
			s.log.Info("snapshot uploaded", "key", key)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
