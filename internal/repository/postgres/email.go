package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/service/mailbox"
)

// EmailRepo implements mailbox.EmailRepository against PostgreSQL.
type EmailRepo struct{ db *sql.DB }

// NewEmailRepo creates a Postgres-backed email repository.
func NewEmailRepo(db *sql.DB) *EmailRepo { return &EmailRepo{db: db} }

const emailColumns = `e.id, e.email_account_id, e.message_id, COALESCE(e.thread_id,''),
	COALESCE(e.subject,''), COALESCE(e.sender_email,''), COALESCE(e.sender_name,''),
	COALESCE(e.recipient_emails,'{}'), COALESCE(e.cc_emails,'{}'), COALESCE(e.bcc_emails,'{}'),
	COALESCE(e.body_text,''), COALESCE(e.body_html,''), COALESCE(e.snippet,''),
	e.sent_date, e.received_date, COALESCE(e.labels,'{}'),
	e.is_read, e.is_replied, e.is_important, e.is_archived, e.has_attachments,
	e.response_time_minutes,
	COALESCE(e.ai_category,''), e.ai_importance_score, COALESCE(e.ai_sentiment,''), e.ai_sentiment_score,
	COALESCE(e.ai_summary,''), COALESCE(e.ai_action_items,'{}'), e.ai_confidence,
	e.is_processed, COALESCE(e.processing_error,''), e.processed_at,
	e.created_at, e.updated_at`

func scanEmail(row interface{ Scan(...any) error }) (*domain.Email, error) {
	e := &domain.Email{}
	err := row.Scan(
		&e.ID, &e.AccountID, &e.MessageID, &e.ThreadID,
		&e.Subject, &e.SenderEmail, &e.SenderName,
		pq.Array(&e.Recipients), pq.Array(&e.CC), pq.Array(&e.BCC),
		&e.BodyText, &e.BodyHTML, &e.Snippet,
		&e.SentDate, &e.ReceivedDate, pq.Array(&e.Labels),
		&e.IsRead, &e.IsReplied, &e.IsImportant, &e.IsArchived, &e.HasAttachments,
		&e.ResponseTimeMinutes,
		&e.AICategory, &e.AIImportanceScore, &e.AISentiment, &e.AISentimentScore,
		&e.AISummary, pq.Array(&e.AIActionItems), &e.AIConfidence,
		&e.IsProcessed, &e.ProcessingError, &e.ProcessedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, mailbox.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan email: %w", err)
	}
	return e, nil
}

const maxPageSize = 100

// List returns the user's emails, newest first, excluding archived ones.
func (r *EmailRepo) List(ctx context.Context, userID string, f mailbox.ListFilter) ([]domain.Email, error) {
	limit := f.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	query := `SELECT ` + emailColumns + `
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.is_archived = false AND e.deleted_at IS NULL`
	args := []any{userID}

	if f.Category != "" {
		args = append(args, f.Category)
		query += fmt.Sprintf(" AND e.ai_category = $%d", len(args))
	}
	if f.MinImportance != nil {
		args = append(args, *f.MinImportance)
		query += fmt.Sprintf(" AND e.ai_importance_score >= $%d", len(args))
	}
	if f.UnreadOnly {
		query += " AND e.is_read = false"
	}

	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY e.received_date DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	var out []domain.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Get returns a single email, enforcing ownership through the account join.
func (r *EmailRepo) Get(ctx context.Context, userID, id string) (*domain.Email, error) {
	return scanEmail(r.db.QueryRowContext(ctx, `
		SELECT `+emailColumns+`
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE e.id = $1 AND a.user_id = $2 AND e.deleted_at IS NULL
	`, id, userID))
}

// ExistsByMessageID reports whether a provider message was already ingested
// for the account. Used for sync dedup.
func (r *EmailRepo) ExistsByMessageID(ctx context.Context, accountID, messageID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM emails WHERE email_account_id = $1 AND message_id = $2)`,
		accountID, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check message exists: %w", err)
	}
	return exists, nil
}

func (r *EmailRepo) Create(ctx context.Context, e *domain.Email) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO emails (id, email_account_id, message_id, thread_id,
			subject, sender_email, sender_name, recipient_emails, cc_emails, bcc_emails,
			body_text, body_html, snippet, sent_date, received_date, labels,
			is_read, is_replied, is_important, has_attachments,
			created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, NOW(), NOW())
	`, e.ID, e.AccountID, e.MessageID, e.ThreadID,
		e.Subject, e.SenderEmail, e.SenderName,
		pq.Array(e.Recipients), pq.Array(e.CC), pq.Array(e.BCC),
		e.BodyText, e.BodyHTML, e.Snippet, e.SentDate, e.ReceivedDate, pq.Array(e.Labels),
		e.IsRead, e.IsReplied, e.IsImportant, e.HasAttachments)
	if err != nil {
		return fmt.Errorf("create email: %w", err)
	}
	return nil
}

// SetAnnotations stores the AI analysis result and marks the message processed.
func (r *EmailRepo) SetAnnotations(ctx context.Context, id string, a domain.EmailAnalysis) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE emails
		SET ai_category = $1, ai_importance_score = $2, ai_sentiment = $3, ai_sentiment_score = $4,
			ai_summary = $5, ai_action_items = $6, ai_confidence = $7,
			is_processed = true, processing_error = '', processed_at = NOW(), updated_at = NOW()
		WHERE id = $8
	`, a.Category, a.ImportanceScore(), a.Sentiment, a.SentimentScore,
		a.Summary, pq.Array(a.ActionItems()), a.Confidence, id)
	if err != nil {
		return fmt.Errorf("set annotations: %w", err)
	}
	return nil
}

// MarkFailed records a processing error so the daily reprocess job can retry.
func (r *EmailRepo) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE emails
		SET is_processed = false, processing_error = $1, updated_at = NOW()
		WHERE id = $2
	`, reason, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ListFailedSince returns unprocessed messages that errored in the window,
// for the daily reprocess sweep.
func (r *EmailRepo) ListFailedSince(ctx context.Context, since time.Time, limit int) ([]domain.Email, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+emailColumns+`
		FROM emails e
		WHERE e.is_processed = false AND e.processing_error <> '' AND e.updated_at >= $1 AND e.deleted_at IS NULL
		ORDER BY e.updated_at
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed emails: %w", err)
	}
	defer rows.Close()

	var out []domain.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *EmailRepo) SetRead(ctx context.Context, userID, id string, read bool) error {
	return r.setFlag(ctx, userID, id, "is_read", read)
}

func (r *EmailRepo) SetImportant(ctx context.Context, userID, id string, important bool) error {
	return r.setFlag(ctx, userID, id, "is_important", important)
}

func (r *EmailRepo) SetArchived(ctx context.Context, userID, id string, archived bool) error {
	return r.setFlag(ctx, userID, id, "is_archived", archived)
}

func (r *EmailRepo) setFlag(ctx context.Context, userID, id, column string, value bool) error {
	// column comes from a fixed caller set, never user input.
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE emails SET %s = $1, updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
		  AND email_account_id IN (SELECT id FROM email_accounts WHERE user_id = $3)
	`, column), value, id, userID)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return mailbox.ErrNotFound
	}
	return nil
}

// SoftDelete hides the message from all listings without destroying the row.
func (r *EmailRepo) SoftDelete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE emails SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		  AND email_account_id IN (SELECT id FROM email_accounts WHERE user_id = $2)
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete email: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return mailbox.ErrNotFound
	}
	return nil
}

func (r *EmailRepo) Stats(ctx context.Context, userID string) (*mailbox.Stats, error) {
	s := &mailbox.Stats{ByCategory: map[string]int{}}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE NOT e.is_read),
			COUNT(*) FILTER (WHERE e.is_important),
			COUNT(*) FILTER (WHERE e.is_processed),
			COUNT(*) FILTER (WHERE e.received_date >= NOW() - INTERVAL '24 hours')
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.is_archived = false AND e.deleted_at IS NULL
	`, userID).Scan(&s.Total, &s.Unread, &s.Important, &s.Processed, &s.Last24Hours)
	if err != nil {
		return nil, fmt.Errorf("email stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT e.ai_category, COUNT(*)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.is_archived = false AND e.deleted_at IS NULL
		  AND e.ai_category IS NOT NULL AND e.ai_category <> ''
		GROUP BY e.ai_category
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("email stats by category: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		s.ByCategory[cat] = n
	}
	return s, rows.Err()
}

// UpsertThread creates or refreshes the conversation row for a provider thread.
func (r *EmailRepo) UpsertThread(ctx context.Context, t *domain.Thread) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_threads (id, user_id, provider_thread_id, subject, participants, message_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, NOW(), NOW())
		ON CONFLICT (user_id, provider_thread_id) DO UPDATE
		SET message_count = email_threads.message_count + 1,
			participants = (
				SELECT ARRAY(SELECT DISTINCT unnest(email_threads.participants || EXCLUDED.participants))
			),
			updated_at = NOW()
	`, t.ID, t.UserID, t.ProviderThreadID, t.Subject, pq.Array(t.Participants))
	if err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}
	return nil
}
