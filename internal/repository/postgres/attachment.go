package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/emailmind/emailmind/internal/domain"
)

// AttachmentRepo persists attachment metadata. Blobs live in S3.
type AttachmentRepo struct{ db *sql.DB }

// NewAttachmentRepo creates an attachment repository.
func NewAttachmentRepo(db *sql.DB) *AttachmentRepo { return &AttachmentRepo{db: db} }

func (r *AttachmentRepo) Create(ctx context.Context, a *domain.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attachments (id, email_id, filename, content_type, size_bytes, storage_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, a.ID, a.EmailID, a.Filename, a.ContentType, a.SizeBytes, a.StoragePath)
	if err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// ListByEmail returns attachment metadata for one email, with ownership
// enforced through the account join.
func (r *AttachmentRepo) ListByEmail(ctx context.Context, userID, emailID string) ([]domain.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.email_id, a.filename, a.content_type, a.size_bytes, COALESCE(a.storage_path, ''), a.created_at
		FROM attachments a
		JOIN emails e ON e.id = a.email_id
		JOIN email_accounts acc ON acc.id = e.email_account_id
		WHERE a.email_id = $1 AND acc.user_id = $2
		ORDER BY a.created_at
	`, emailID, userID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.EmailID, &a.Filename, &a.ContentType, &a.SizeBytes, &a.StoragePath, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
