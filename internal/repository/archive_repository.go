package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/TGLookupBot/internal/models"
)

// ArchiveRepository keeps the full query and error history in MySQL.
type ArchiveRepository struct {
	db *sql.DB
}

func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

func (r *ArchiveRepository) ArchiveQuery(ctx context.Context, entry models.QueryEntry) error {
	const query = `
INSERT INTO query_archive (user_id, service, query, created_at)
VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, entry.UserID, entry.Service, entry.Query, entry.Timestamp.UTC()); err != nil {
		return fmt.Errorf("insert query archive: %w", err)
	}
	return nil
}

func (r *ArchiveRepository) ArchiveError(ctx context.Context, entry models.ErrorEntry) error {
	const query = `
INSERT INTO error_archive (error_id, message, context, created_at)
VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.Message, entry.Context, entry.Timestamp.UTC()); err != nil {
		return fmt.Errorf("insert error archive: %w", err)
	}
	return nil
}
