package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/service/mailbox"
)

// AccountRepo implements mailbox.AccountRepository against PostgreSQL.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed email account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `id, user_id, provider, email_address, COALESCE(display_name,''),
	COALESCE(access_token,''), COALESCE(refresh_token,''), token_expires_at,
	COALESCE(imap_server,''), COALESCE(imap_port,0), COALESCE(imap_username,''), COALESCE(imap_password,''),
	is_active, last_sync_at, sync_from_date, total_emails, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*domain.EmailAccount, error) {
	a := &domain.EmailAccount{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.Provider, &a.EmailAddress, &a.DisplayName,
		&a.AccessToken, &a.RefreshToken, &a.TokenExpiresAt,
		&a.IMAPServer, &a.IMAPPort, &a.IMAPUsername, &a.IMAPPassword,
		&a.IsActive, &a.LastSyncAt, &a.SyncFromDate, &a.TotalEmails, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, mailbox.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) Get(ctx context.Context, userID, id string) (*domain.EmailAccount, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM email_accounts WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *AccountRepo) ListByUser(ctx context.Context, userID string) ([]domain.EmailAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM email_accounts WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListActiveByUser returns the user's accounts eligible for syncing.
func (r *AccountRepo) ListActiveByUser(ctx context.Context, userID string) ([]domain.EmailAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM email_accounts WHERE user_id = $1 AND is_active = true ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *AccountRepo) Create(ctx context.Context, a *domain.EmailAccount) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_accounts (id, user_id, provider, email_address, display_name,
			access_token, refresh_token, token_expires_at,
			imap_server, imap_port, imap_username, imap_password,
			is_active, sync_from_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true, $13, NOW(), NOW())
	`, a.ID, a.UserID, a.Provider, a.EmailAddress, a.DisplayName,
		a.AccessToken, a.RefreshToken, a.TokenExpiresAt,
		a.IMAPServer, a.IMAPPort, a.IMAPUsername, a.IMAPPassword, a.SyncFromDate)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// UpdateTokens stores refreshed OAuth tokens.
func (r *AccountRepo) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_accounts
		SET access_token = $1, refresh_token = $2, token_expires_at = $3, updated_at = NOW()
		WHERE id = $4
	`, accessToken, refreshToken, expiresAt, id)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	return nil
}

// OwnerOf returns the user ID that owns an account.
func (r *AccountRepo) OwnerOf(ctx context.Context, id string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM email_accounts WHERE id = $1`, id).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", mailbox.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("account owner: %w", err)
	}
	return userID, nil
}

// MarkSynced updates the sync bookkeeping after a successful fetch.
func (r *AccountRepo) MarkSynced(ctx context.Context, id string, added int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_accounts
		SET last_sync_at = NOW(), total_emails = total_emails + $1, updated_at = NOW()
		WHERE id = $2
	`, added, id)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (r *AccountRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM email_accounts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return mailbox.ErrNotFound
	}
	return nil
}
