package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emailmind/emailmind/internal/domain"
)

// ErrNotFound is returned when a row does not exist or belongs to another user.
var ErrNotFound = errors.New("not found")

// UserRepo implements user persistence against PostgreSQL.
type UserRepo struct{ db *sql.DB }

// NewUserRepo creates a Postgres-backed user repository.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, hashed_password, COALESCE(full_name,''), is_active, is_verified,
	subscription_tier, COALESCE(stripe_customer_id,''), subscription_end_date,
	emails_processed, api_calls_this_month, last_email_sync, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.HashedPassword, &u.FullName, &u.IsActive, &u.IsVerified,
		&u.Tier, &u.StripeCustomerID, &u.SubscriptionEndDate,
		&u.EmailsProcessed, &u.APICallsThisMonth, &u.LastEmailSync, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepo) GetByStripeCustomer(ctx context.Context, customerID string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, customerID))
}

// Create inserts a new user. The tier defaults to free_trial when unset.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Tier == "" {
		u.Tier = domain.TierFreeTrial
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, hashed_password, full_name, is_active, is_verified,
			subscription_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, false, $5, NOW(), NOW())
	`, u.ID, u.Email, u.HashedPassword, u.FullName, u.Tier)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// SetTier updates the user's tier, typically from a billing webhook.
func (r *UserRepo) SetTier(ctx context.Context, id string, tier domain.SubscriptionTier, endDate *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET subscription_tier = $1, subscription_end_date = $2, updated_at = NOW()
		WHERE id = $3
	`, tier, endDate, id)
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStripeCustomer records the Stripe customer ID created for the user.
func (r *UserRepo) SetStripeCustomer(ctx context.Context, id, customerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET stripe_customer_id = $1, updated_at = NOW() WHERE id = $2
	`, customerID, id)
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	return nil
}

// IncrementAPICalls bumps the monthly API call counter.
func (r *UserRepo) IncrementAPICalls(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET api_calls_this_month = api_calls_this_month + 1 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment api calls: %w", err)
	}
	return nil
}

// AddEmailsProcessed bumps the lifetime processed counter after a sync batch.
func (r *UserRepo) AddEmailsProcessed(ctx context.Context, id string, n int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET emails_processed = emails_processed + $1, updated_at = NOW() WHERE id = $2
	`, n, id)
	if err != nil {
		return fmt.Errorf("add emails processed: %w", err)
	}
	return nil
}

// TouchEmailSync records when the user's accounts were last swept.
func (r *UserRepo) TouchEmailSync(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_email_sync = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("touch email sync: %w", err)
	}
	return nil
}

// ResetMonthlyAPICounters zeroes every user's monthly counter. Run by the
// worker on the first of each month.
func (r *UserRepo) ResetMonthlyAPICounters(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET api_calls_this_month = 0, updated_at = NOW()
		WHERE api_calls_this_month > 0
	`)
	if err != nil {
		return 0, fmt.Errorf("reset monthly counters: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListActive returns active users, oldest first. Used by the weekly
// report pass.
func (r *UserRepo) ListActive(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active = true
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// ListSyncDue returns active users whose last sweep is older than staleAfter.
func (r *UserRepo) ListSyncDue(ctx context.Context, staleAfter time.Duration, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active = true
		  AND (last_email_sync IS NULL OR last_email_sync < NOW() - $1::interval)
		ORDER BY last_email_sync NULLS FIRST
		LIMIT $2
	`, fmt.Sprintf("%d seconds", int(staleAfter.Seconds())), limit)
	if err != nil {
		return nil, fmt.Errorf("list sync due: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}
